// Package ymf262 implements the synthesis core of the Yamaha YMF262 (OPL3)
// FM sound chip: 18 two-operator channels (pairable into four-operator
// channels), 8 waveforms, a rhythm mode, tremolo/vibrato modulation, and a
// linear-interpolation resampler from the chip's native rate to an arbitrary
// output rate. The package is consumed through a narrow surface (Reset,
// WriteReg, the Generate family, Cycles) and performs no validation of its
// own; callers are expected to pass checked register addresses, correctly
// sized buffers, and sample rates of at least MinSampleRate.
package ymf262

// NativeRate is the chip's native output rate in Hz: the 14.318 MHz master
// clock divided by 288 (one sample per 36 slots x 8 clocks).
const NativeRate = 49716

// rsmFrac is the fixed-point fraction width of the resampler ratio.
const rsmFrac = 10

// MinSampleRate is the lowest output rate the resampler can be bound to.
// Below it the fixed-point ratio of sampleRate to NativeRate truncates to
// zero and resampled generation cannot make progress.
const MinSampleRate = (NativeRate >> rsmFrac) + 1

// noiseSeed is the power-on value of the 23-bit rhythm noise LFSR.
const noiseSeed = 0x306600

// Slot key-on sources. A slot sounds while any source bit is set.
const (
	keyNormal = 0x01 // Channel KON bit (register 0xB0 bit 5)
	keyRhythm = 0x02 // Rhythm key bit (register 0xBD bits 0-4)
)

// slotOffsets maps the low 5 bits of a slot register address to a slot index
// within one bank. Offsets 0x06, 0x07, 0x0E and 0x0F do not address a slot.
var slotOffsets = [0x16]int{
	0, 1, 2, 3, 4, 5, -1, -1,
	6, 7, 8, 9, 10, 11, -1, -1,
	12, 13, 14, 15, 16, 17,
}

// slot holds decoded register state for one of the 36 operator slots.
type slot struct {
	// Register fields
	am   bool  // Tremolo enable (register 0x20 bit 7)
	vib  bool  // Vibrato enable (bit 6)
	egt  bool  // Envelope type: true = sustaining, false = percussive (bit 5)
	ksr  bool  // Key scale rate (bit 4)
	mult uint8 // Frequency multiplier (4-bit)
	ksl  uint8 // Key scale level (2-bit)
	tl   uint8 // Total level / attenuation (6-bit, 0 = loudest)
	ar   uint8 // Attack rate (4-bit)
	dr   uint8 // Decay rate (4-bit)
	sl   uint8 // Sustain level (stored 5-bit: register value 15 maps to 31)
	rr   uint8 // Release rate (4-bit)
	wf   uint8 // Waveform select (masked to 0-3 unless OPL3 mode is on)

	// Envelope generator state
	egState uint8
	egLevel uint16 // 9-bit attenuation (0 = full volume, 0x1FF = silent)
	keyBits uint8  // keyNormal | keyRhythm

	// Phase generator state
	phase    uint32 // 19-bit phase accumulator
	phaseOut uint16 // 10-bit phase index for the current sample

	// Output history (for feedback)
	prevOut [2]int16

	ch int // Owning channel index (fixed wiring)
}

// channel holds decoded register state for one of the 18 channels.
type channel struct {
	fnum  uint16 // 10-bit F-number
	block uint8  // 3-bit octave
	fb    uint8  // 3-bit feedback depth
	cnt   bool   // Connection: false = FM (op1 modulates op2), true = additive

	// Output routing (register 0xC0 bits 4-7). Only honored in OPL3 mode;
	// compat mode routes every channel to A+B (see routeChannel).
	chA bool
	chB bool
	chC bool
	chD bool

	ksv     uint8 // Key scale value: (block << 1) | F-number MSB per NTS
	kslBase uint8 // KSL attenuation before the per-slot shift

	slots [2]int // Global indices of the channel's two slots (fixed wiring)
}

// Chip is one emulated YMF262.
type Chip struct {
	sampleRate int

	slot [36]slot
	ch   [18]channel

	// Global register state
	newm    bool  // OPL3 mode (bank 1 register 0x05 bit 0)
	nts     uint8 // Note select (register 0x08 bit 6)
	connSel uint8 // Four-op connection select (bank 1 register 0x04, 6 bits)
	regBD   uint8 // Rhythm control (register 0xBD)

	// Tremolo (amplitude) and vibrato (frequency) modulation
	tremoloShift uint8 // 2 when DAM is set, 4 otherwise
	vibShift     uint8 // 0 when DVB is set, 1 otherwise
	tremoloPos   uint8 // Position in the 210-step triangle
	tremolo      uint8 // Current tremolo attenuation
	vibPos       uint8 // Vibrato position (0-7)

	noise uint32 // 23-bit rhythm noise LFSR

	timer     uint64 // Native frame counter driving the modulation clocks
	egCounter uint16 // 12-bit global envelope counter

	// Native frame output accumulators, unclipped (A, B, C, D)
	frame    [4]int32
	oldFrame [4]int32 // Previous frame, kept for resampler interpolation

	// Resampler state (native rate -> sampleRate, rsmFrac fixed point)
	rateRatio int32
	sampleCnt int32

	cycles uint64 // Native frames generated since reset
}

// New creates a YMF262 producing resampled output at sampleRate Hz.
// Native-rate generation is unaffected by sampleRate.
func New(sampleRate int) *Chip {
	c := &Chip{}
	c.Reset(sampleRate)
	return c
}

// Reset returns the chip to power-on state and rebinds the output sample
// rate. All register, envelope, phase, and resampler state is discarded.
func (c *Chip) Reset(sampleRate int) {
	*c = Chip{
		sampleRate:   sampleRate,
		noise:        noiseSeed,
		tremoloShift: 4,
		vibShift:     1,
		rateRatio:    int32((int64(sampleRate) << rsmFrac) / NativeRate),
	}
	for i := range c.slot {
		s := &c.slot[i]
		s.egState = egRelease
		s.egLevel = 0x1FF // Silent
		s.ch = slotChannel(i)
	}
	for i := range c.ch {
		first := slotForChannel(i)
		c.ch[i].slots = [2]int{first, first + 3}
	}
}

// slotChannel returns the owning channel index for a global slot index.
// Within a bank, slots are laid out in three groups of six: the first three
// of a group are the op1 slots of three consecutive channels, the second
// three their op2 slots.
func slotChannel(slot int) int {
	bank := slot / 18
	group := (slot % 18) / 6
	pos := slot % 6
	return bank*9 + group*3 + pos%3
}

// slotForChannel returns the global index of a channel's first (op1) slot.
func slotForChannel(ch int) int {
	bank := ch / 9
	local := ch % 9
	return bank*18 + (local/3)*6 + local%3
}

// --- Register interface ---

// WriteReg decodes a register write. reg is a 9-bit address: 0x000-0x0FF
// select bank 0, 0x100-0x1FF bank 1. Addresses that do not map to a
// register are ignored, matching hardware.
func (c *Chip) WriteReg(reg uint16, val uint8) {
	bank := int(reg>>8) & 0x01
	addr := uint8(reg)
	switch {
	case addr < 0x20:
		c.writeGlobalRegister(bank, addr, val)
	case addr < 0xA0:
		c.writeSlotRegister(bank, addr, val)
	case addr < 0xC0:
		c.writeChannelRegister(bank, addr, val)
	case addr < 0xE0:
		c.writeConnectionRegister(bank, addr, val)
	default:
		c.writeSlotRegister(bank, addr, val)
	}
}

// writeGlobalRegister handles addresses 0x00-0x1F of either bank.
func (c *Chip) writeGlobalRegister(bank int, addr, val uint8) {
	if bank == 1 {
		switch addr {
		case 0x04:
			// Four-op connection select: bits 0-2 pair channels 0-2 with
			// 3-5, bits 3-5 pair channels 9-11 with 12-14.
			c.connSel = val & 0x3F
		case 0x05:
			c.newm = val&0x01 != 0
		}
		return
	}
	switch addr {
	case 0x01:
		// Test register / OPL2 waveform-select enable. No modeled effect:
		// waveform select is always available here, as on the YMF262.
	case 0x02, 0x03, 0x04:
		// Timer registers. The chip's timers only matter through the status
		// port, which this interface does not expose; accepted and ignored.
	case 0x08:
		// NTS affects the key scale value of subsequent frequency writes.
		c.nts = (val >> 6) & 0x01
	}
}

// writeSlotRegister handles the per-slot register families
// (0x20, 0x40, 0x60, 0x80, 0xE0).
func (c *Chip) writeSlotRegister(bank int, addr, val uint8) {
	idx := slotIndex(bank, addr)
	if idx < 0 {
		return
	}
	s := &c.slot[idx]
	switch addr & 0xE0 {
	case 0x20:
		s.am = val&0x80 != 0
		s.vib = val&0x40 != 0
		s.egt = val&0x20 != 0
		s.ksr = val&0x10 != 0
		s.mult = val & 0x0F
	case 0x40:
		s.ksl = (val >> 6) & 0x03
		s.tl = val & 0x3F
	case 0x60:
		s.ar = (val >> 4) & 0x0F
		s.dr = val & 0x0F
	case 0x80:
		s.sl = (val >> 4) & 0x0F
		if s.sl == 0x0F {
			// SL=15 means -93dB, one notch past the 3dB-per-step ladder
			s.sl = 0x1F
		}
		s.rr = val & 0x0F
	case 0xE0:
		if c.newm {
			s.wf = val & 0x07
		} else {
			s.wf = val & 0x03
		}
	}
}

// slotIndex resolves a slot register address to a global slot index,
// or -1 when the offset does not address a slot.
func slotIndex(bank int, addr uint8) int {
	off := addr & 0x1F
	if off >= uint8(len(slotOffsets)) {
		return -1
	}
	s := slotOffsets[off]
	if s < 0 {
		return -1
	}
	return s + bank*18
}

// writeChannelRegister handles the 0xA0 and 0xB0 families plus the rhythm
// register 0xBD.
func (c *Chip) writeChannelRegister(bank int, addr, val uint8) {
	if addr == 0xBD && bank == 0 {
		c.writeRhythmRegister(val)
		return
	}
	chOff := int(addr & 0x0F)
	if chOff > 8 {
		return
	}
	chIdx := chOff + bank*9
	ch := &c.ch[chIdx]
	switch {
	case addr < 0xA9:
		// F-Number low 8 bits
		ch.fnum = (ch.fnum & 0x300) | uint16(val)
		c.updateKeyScale(chIdx)
	case addr >= 0xB0 && addr < 0xB9:
		// KON / block / F-Number high 2 bits
		ch.fnum = (ch.fnum & 0x0FF) | uint16(val&0x03)<<8
		ch.block = (val >> 2) & 0x07
		c.updateKeyScale(chIdx)
		kon := val&0x20 != 0
		c.setSlotKey(ch.slots[0], keyNormal, kon)
		c.setSlotKey(ch.slots[1], keyNormal, kon)
	}
}

// writeConnectionRegister handles the 0xC0 family: output routing,
// feedback depth, and the connection bit.
func (c *Chip) writeConnectionRegister(bank int, addr, val uint8) {
	chOff := int(addr & 0x0F)
	if chOff > 8 {
		return
	}
	ch := &c.ch[chOff+bank*9]
	ch.chA = val&0x10 != 0
	ch.chB = val&0x20 != 0
	ch.chC = val&0x40 != 0
	ch.chD = val&0x80 != 0
	ch.fb = (val >> 1) & 0x07
	ch.cnt = val&0x01 != 0
}

// writeRhythmRegister handles register 0xBD: tremolo/vibrato depth, rhythm
// mode enable, and the five percussion key bits.
func (c *Chip) writeRhythmRegister(val uint8) {
	c.regBD = val
	if val&0x80 != 0 {
		c.tremoloShift = 2 // DAM: 4.8dB tremolo depth
	} else {
		c.tremoloShift = 4 // 1dB
	}
	if val&0x40 != 0 {
		c.vibShift = 0 // DVB: 14 cent vibrato depth
	} else {
		c.vibShift = 1 // 7 cent
	}
	if val&0x20 != 0 {
		c.setSlotKey(12, keyRhythm, val&0x10 != 0) // Bass drum (both slots)
		c.setSlotKey(15, keyRhythm, val&0x10 != 0)
		c.setSlotKey(16, keyRhythm, val&0x08 != 0) // Snare drum
		c.setSlotKey(14, keyRhythm, val&0x04 != 0) // Tom-tom
		c.setSlotKey(17, keyRhythm, val&0x02 != 0) // Top cymbal
		c.setSlotKey(13, keyRhythm, val&0x01 != 0) // Hi-hat
	} else {
		for i := 12; i <= 17; i++ {
			c.setSlotKey(i, keyRhythm, false)
		}
	}
}

// setSlotKey sets or clears one key-on source for a slot. The slot keys on
// when its first source appears (phase reset + attack) and releases when the
// last source disappears.
func (c *Chip) setSlotKey(idx int, mask uint8, on bool) {
	s := &c.slot[idx]
	prev := s.keyBits
	if on {
		s.keyBits |= mask
	} else {
		s.keyBits &^= mask
	}
	if prev == 0 && s.keyBits != 0 {
		s.phase = 0
		s.egState = egAttack
		// Rate 60+ attack is instantaneous
		if c.effectiveRate(s.ar, s) >= 60 {
			s.egLevel = 0
			s.egState = egDecay
		}
	} else if prev != 0 && s.keyBits == 0 {
		s.egState = egRelease
	}
}

// --- Sample generation ---

// generateFrame produces one native-rate frame into c.frame, rotating the
// previous frame into c.oldFrame for the resampler.
func (c *Chip) generateFrame() {
	c.stepModulation()
	c.stepEnvelopes()
	c.stepPhases()

	c.oldFrame = c.frame
	var mix [4]int32
	rhythm := c.regBD&0x20 != 0
	for chIdx := 0; chIdx < 18; chIdx++ {
		if c.fourOpSecondary(chIdx) {
			continue
		}
		var out int32
		switch {
		case rhythm && chIdx == 6:
			// Bass drum: a normal two-op voice with doubled output
			out = c.evalChannel2Op(6) * 2
		case rhythm && chIdx == 7:
			// Hi-hat (slot 13) + snare drum (slot 16), both carriers
			hh := c.slotOut(&c.slot[13], 0)
			sd := c.slotOut(&c.slot[16], 0)
			out = (int32(hh) + int32(sd)) * 2
		case rhythm && chIdx == 8:
			// Tom-tom (slot 14) + top cymbal (slot 17), both carriers
			tom := c.slotOut(&c.slot[14], 0)
			tc := c.slotOut(&c.slot[17], 0)
			out = (int32(tom) + int32(tc)) * 2
		case c.fourOpPrimary(chIdx):
			out = c.evalChannel4Op(chIdx)
		default:
			out = c.evalChannel2Op(chIdx)
		}
		c.routeChannel(&mix, chIdx, out)
	}
	c.frame = mix
	c.cycles++
}

// pairBit returns the connection-select bit controlling the four-op pair
// whose primary is the given channel, or 0 for non-primary channels.
func pairBit(chIdx int) uint8 {
	switch {
	case chIdx < 3:
		return 1 << uint(chIdx)
	case chIdx >= 9 && chIdx < 12:
		return 1 << uint(chIdx-6)
	}
	return 0
}

// fourOpPrimary reports whether the channel heads an active four-op pair.
func (c *Chip) fourOpPrimary(chIdx int) bool {
	if !c.newm {
		return false
	}
	b := pairBit(chIdx)
	return b != 0 && c.connSel&b != 0
}

// fourOpSecondary reports whether the channel is consumed as the second
// half of an active four-op pair.
func (c *Chip) fourOpSecondary(chIdx int) bool {
	switch {
	case chIdx >= 3 && chIdx < 6, chIdx >= 12 && chIdx < 15:
		return c.fourOpPrimary(chIdx - 3)
	}
	return false
}

// routeChannel adds a channel's output to the four mix accumulators
// according to its routing bits. In compat mode (NEW clear) there is no
// stereo register: every channel drives A and B, and the auxiliary pair
// stays silent.
func (c *Chip) routeChannel(mix *[4]int32, chIdx int, out int32) {
	ch := &c.ch[chIdx]
	a, b, cc, d := ch.chA, ch.chB, ch.chC, ch.chD
	if !c.newm {
		a, b, cc, d = true, true, false, false
	}
	if a {
		mix[0] += out
	}
	if b {
		mix[1] += out
	}
	if cc {
		mix[2] += out
	}
	if d {
		mix[3] += out
	}
}

// Generate produces one native-rate stereo frame into buf[0] (left) and
// buf[1] (right). The stereo pair folds the auxiliary channels in (A+C,
// B+D), matching how the chip's four DAC outputs are wired to two jacks.
func (c *Chip) Generate(buf []int16) {
	c.generateFrame()
	buf[0] = int16(clampInt32(c.frame[0]+c.frame[2], -32768, 32767))
	buf[1] = int16(clampInt32(c.frame[1]+c.frame[3], -32768, 32767))
}

// Generate4Ch produces one native-rate four-channel frame into buf[0:4]
// (A, B, C, D).
func (c *Chip) Generate4Ch(buf []int16) {
	c.generateFrame()
	for i := 0; i < 4; i++ {
		buf[i] = int16(clampInt32(c.frame[i], -32768, 32767))
	}
}

// GenerateResampled produces one stereo frame at the bound sample rate.
func (c *Chip) GenerateResampled(buf []int16) {
	var out [4]int32
	c.resampleFrame(&out)
	buf[0] = int16(clampInt32(out[0]+out[2], -32768, 32767))
	buf[1] = int16(clampInt32(out[1]+out[3], -32768, 32767))
}

// Generate4ChResampled produces one four-channel frame at the bound
// sample rate.
func (c *Chip) Generate4ChResampled(buf []int16) {
	var out [4]int32
	c.resampleFrame(&out)
	for i := 0; i < 4; i++ {
		buf[i] = int16(clampInt32(out[i], -32768, 32767))
	}
}

// resampleFrame advances the chip by as many native frames as the rate
// ratio requires and linearly interpolates one output frame.
func (c *Chip) resampleFrame(out *[4]int32) {
	for c.sampleCnt >= c.rateRatio {
		c.generateFrame()
		c.sampleCnt -= c.rateRatio
	}
	for i := range out {
		out[i] = (c.oldFrame[i]*(c.rateRatio-c.sampleCnt) +
			c.frame[i]*c.sampleCnt) / c.rateRatio
	}
	c.sampleCnt += 1 << rsmFrac
}

// Cycles returns the number of native frames generated since reset.
func (c *Chip) Cycles() uint64 {
	return c.cycles
}

// clampInt32 clamps v to the range [min, max].
func clampInt32(v, min, max int32) int32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// --- Introspection (for testing) ---

// GetSlotTL returns a slot's total level field (for testing).
func (c *Chip) GetSlotTL(slot int) uint8 {
	return c.slot[slot].tl
}

// GetSlotWaveform returns a slot's waveform select field (for testing).
func (c *Chip) GetSlotWaveform(slot int) uint8 {
	return c.slot[slot].wf
}

// GetChannelKeyOn reports whether a channel's KON bit is set (for testing).
func (c *Chip) GetChannelKeyOn(ch int) bool {
	return c.slot[c.ch[ch].slots[0]].keyBits&keyNormal != 0
}

// GetOPL3Mode reports whether the NEW bit is set (for testing).
func (c *Chip) GetOPL3Mode() bool {
	return c.newm
}

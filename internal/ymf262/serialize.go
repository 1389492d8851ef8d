package ymf262

import (
	"encoding/binary"
	"errors"
)

// Serialized chip layout, little endian throughout:
//
//	version   1 byte
//	slots     36 * slotSerializeSize bytes
//	channels  18 * channelSerializeSize bytes
//	globals   globalSerializeSize bytes
//
// The output sample rate and resampler ratio are deliberately not part of
// the state: they describe the consumer, not the chip, and are rebound by
// whoever restores a snapshot.
const (
	serializeVersion = 1

	// am, vib, egt, ksr, mult, ksl, tl, ar, dr, sl, rr, wf: 1 byte each.
	// egState 1, keyBits 1, egLevel 2, phase 4, phaseOut 2, prevOut 2*2.
	slotSerializeSize = 12 + 1 + 1 + 2 + 4 + 2 + 4

	// fnum 2, block 1, fb 1, cnt 1, chA-chD 1 each, ksv 1, kslBase 1.
	channelSerializeSize = 2 + 1 + 1 + 1 + 4 + 1 + 1

	// newm 1, nts 1, connSel 1, regBD 1, tremoloShift 1, vibShift 1,
	// tremoloPos 1, tremolo 1, vibPos 1, noise 4, timer 8, egCounter 2,
	// frame 4*4, oldFrame 4*4, sampleCnt 4, cycles 8.
	globalSerializeSize = 9 + 4 + 8 + 2 + 16 + 16 + 4 + 8
)

// SerializeSize is the exact byte length of a serialized chip.
const SerializeSize = 1 + 36*slotSerializeSize + 18*channelSerializeSize + globalSerializeSize

// Serialize writes the chip state into buf, which must hold at least
// SerializeSize bytes.
func (c *Chip) Serialize(buf []byte) error {
	if len(buf) < SerializeSize {
		return errors.New("ymf262: serialize buffer too small")
	}
	buf[0] = serializeVersion
	off := 1
	for i := range c.slot {
		off = serializeSlot(buf, off, &c.slot[i])
	}
	for i := range c.ch {
		off = serializeChannel(buf, off, &c.ch[i])
	}
	serializeGlobals(buf, off, c)
	return nil
}

// Deserialize restores chip state from buf. The bound sample rate and the
// fixed slot/channel wiring are left untouched.
func (c *Chip) Deserialize(buf []byte) error {
	if len(buf) < SerializeSize {
		return errors.New("ymf262: deserialize buffer too small")
	}
	if buf[0] != serializeVersion {
		return errors.New("ymf262: unsupported state version")
	}
	off := 1
	for i := range c.slot {
		off = deserializeSlot(buf, off, &c.slot[i])
	}
	for i := range c.ch {
		off = deserializeChannel(buf, off, &c.ch[i])
	}
	deserializeGlobals(buf, off, c)
	return nil
}

func serializeSlot(buf []byte, off int, s *slot) int {
	buf[off+0] = boolByte(s.am)
	buf[off+1] = boolByte(s.vib)
	buf[off+2] = boolByte(s.egt)
	buf[off+3] = boolByte(s.ksr)
	buf[off+4] = s.mult
	buf[off+5] = s.ksl
	buf[off+6] = s.tl
	buf[off+7] = s.ar
	buf[off+8] = s.dr
	buf[off+9] = s.sl
	buf[off+10] = s.rr
	buf[off+11] = s.wf
	buf[off+12] = s.egState
	buf[off+13] = s.keyBits
	binary.LittleEndian.PutUint16(buf[off+14:], s.egLevel)
	binary.LittleEndian.PutUint32(buf[off+16:], s.phase)
	binary.LittleEndian.PutUint16(buf[off+20:], s.phaseOut)
	binary.LittleEndian.PutUint16(buf[off+22:], uint16(s.prevOut[0]))
	binary.LittleEndian.PutUint16(buf[off+24:], uint16(s.prevOut[1]))
	return off + slotSerializeSize
}

func deserializeSlot(buf []byte, off int, s *slot) int {
	s.am = byteBool(buf[off+0])
	s.vib = byteBool(buf[off+1])
	s.egt = byteBool(buf[off+2])
	s.ksr = byteBool(buf[off+3])
	s.mult = buf[off+4]
	s.ksl = buf[off+5]
	s.tl = buf[off+6]
	s.ar = buf[off+7]
	s.dr = buf[off+8]
	s.sl = buf[off+9]
	s.rr = buf[off+10]
	s.wf = buf[off+11]
	s.egState = buf[off+12]
	s.keyBits = buf[off+13]
	s.egLevel = binary.LittleEndian.Uint16(buf[off+14:])
	s.phase = binary.LittleEndian.Uint32(buf[off+16:])
	s.phaseOut = binary.LittleEndian.Uint16(buf[off+20:])
	s.prevOut[0] = int16(binary.LittleEndian.Uint16(buf[off+22:]))
	s.prevOut[1] = int16(binary.LittleEndian.Uint16(buf[off+24:]))
	return off + slotSerializeSize
}

func serializeChannel(buf []byte, off int, ch *channel) int {
	binary.LittleEndian.PutUint16(buf[off+0:], ch.fnum)
	buf[off+2] = ch.block
	buf[off+3] = ch.fb
	buf[off+4] = boolByte(ch.cnt)
	buf[off+5] = boolByte(ch.chA)
	buf[off+6] = boolByte(ch.chB)
	buf[off+7] = boolByte(ch.chC)
	buf[off+8] = boolByte(ch.chD)
	buf[off+9] = ch.ksv
	buf[off+10] = ch.kslBase
	return off + channelSerializeSize
}

func deserializeChannel(buf []byte, off int, ch *channel) int {
	ch.fnum = binary.LittleEndian.Uint16(buf[off+0:])
	ch.block = buf[off+2]
	ch.fb = buf[off+3]
	ch.cnt = byteBool(buf[off+4])
	ch.chA = byteBool(buf[off+5])
	ch.chB = byteBool(buf[off+6])
	ch.chC = byteBool(buf[off+7])
	ch.chD = byteBool(buf[off+8])
	ch.ksv = buf[off+9]
	ch.kslBase = buf[off+10]
	return off + channelSerializeSize
}

func serializeGlobals(buf []byte, off int, c *Chip) {
	buf[off+0] = boolByte(c.newm)
	buf[off+1] = c.nts
	buf[off+2] = c.connSel
	buf[off+3] = c.regBD
	buf[off+4] = c.tremoloShift
	buf[off+5] = c.vibShift
	buf[off+6] = c.tremoloPos
	buf[off+7] = c.tremolo
	buf[off+8] = c.vibPos
	binary.LittleEndian.PutUint32(buf[off+9:], c.noise)
	binary.LittleEndian.PutUint64(buf[off+13:], c.timer)
	binary.LittleEndian.PutUint16(buf[off+21:], c.egCounter)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(buf[off+23+i*4:], uint32(c.frame[i]))
		binary.LittleEndian.PutUint32(buf[off+39+i*4:], uint32(c.oldFrame[i]))
	}
	binary.LittleEndian.PutUint32(buf[off+55:], uint32(c.sampleCnt))
	binary.LittleEndian.PutUint64(buf[off+59:], c.cycles)
}

func deserializeGlobals(buf []byte, off int, c *Chip) {
	c.newm = byteBool(buf[off+0])
	c.nts = buf[off+1]
	c.connSel = buf[off+2]
	c.regBD = buf[off+3]
	c.tremoloShift = buf[off+4]
	c.vibShift = buf[off+5]
	c.tremoloPos = buf[off+6]
	c.tremolo = buf[off+7]
	c.vibPos = buf[off+8]
	c.noise = binary.LittleEndian.Uint32(buf[off+9:])
	c.timer = binary.LittleEndian.Uint64(buf[off+13:])
	c.egCounter = binary.LittleEndian.Uint16(buf[off+21:])
	for i := 0; i < 4; i++ {
		c.frame[i] = int32(binary.LittleEndian.Uint32(buf[off+23+i*4:]))
		c.oldFrame[i] = int32(binary.LittleEndian.Uint32(buf[off+39+i*4:]))
	}
	c.sampleCnt = int32(binary.LittleEndian.Uint32(buf[off+55:]))
	c.cycles = binary.LittleEndian.Uint64(buf[off+59:])
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func byteBool(b uint8) bool {
	return b != 0
}

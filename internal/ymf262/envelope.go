package ymf262

// Envelope generator states. Each slot walks attack -> decay -> sustain,
// then release on key-off. Percussive envelopes (EGT clear) decay through
// sustain at the release rate instead of holding.
const (
	egAttack uint8 = iota
	egDecay
	egSustain
	egRelease
)

// egIncrementTable gives the per-step envelope increment for effective
// rates below 48. Row (rate&3)+1 is indexed by the envelope counter; row 0
// is the all-zero row.
var egIncrementTable = [5][8]uint8{
	{0, 0, 0, 0, 0, 0, 0, 0},
	{0, 1, 0, 1, 0, 1, 0, 1},
	{0, 1, 0, 1, 1, 1, 0, 1},
	{0, 1, 1, 1, 0, 1, 1, 1},
	{0, 1, 1, 1, 1, 1, 1, 1},
}

// egHighRateTable gives the increment for effective rates 48-63, which run
// on every envelope step with increments growing from 1 to 8.
var egHighRateTable = [16][8]uint8{
	{1, 1, 1, 1, 1, 1, 1, 1}, // 48
	{1, 1, 1, 2, 1, 1, 1, 2}, // 49
	{1, 2, 1, 2, 1, 2, 1, 2}, // 50
	{1, 2, 2, 2, 1, 2, 2, 2}, // 51
	{2, 2, 2, 2, 2, 2, 2, 2}, // 52
	{2, 2, 2, 4, 2, 2, 2, 4}, // 53
	{2, 4, 2, 4, 2, 4, 2, 4}, // 54
	{2, 4, 4, 4, 2, 4, 4, 4}, // 55
	{4, 4, 4, 4, 4, 4, 4, 4}, // 56
	{4, 4, 4, 8, 4, 4, 4, 8}, // 57
	{4, 8, 4, 8, 4, 8, 4, 8}, // 58
	{4, 8, 8, 8, 4, 8, 8, 8}, // 59
	{8, 8, 8, 8, 8, 8, 8, 8}, // 60
	{8, 8, 8, 8, 8, 8, 8, 8}, // 61
	{8, 8, 8, 8, 8, 8, 8, 8}, // 62
	{8, 8, 8, 8, 8, 8, 8, 8}, // 63
}

// kslRom maps the F-number's top 4 bits to a base attenuation, combined
// with the block in updateKeyScale.
var kslRom = [16]uint8{0, 32, 40, 45, 48, 51, 53, 55, 56, 58, 59, 60, 61, 62, 63, 64}

// kslShift scales the KSL base attenuation per the 2-bit KSL field:
// off, 3dB/oct, 1.5dB/oct, 6dB/oct.
var kslShift = [4]uint8{8, 1, 2, 0}

// stepEnvelopes advances the global envelope counter and every slot's
// envelope by one sample. The counter wraps 4095 -> 1 so that the slowest
// rates don't all fire on a shared zero crossing.
func (c *Chip) stepEnvelopes() {
	c.egCounter++
	if c.egCounter >= 4096 {
		c.egCounter = 1
	}
	for i := range c.slot {
		c.stepOperatorEnvelope(&c.slot[i])
	}
}

func (c *Chip) stepOperatorEnvelope(s *slot) {
	switch s.egState {
	case egAttack:
		if s.egLevel == 0 {
			s.egState = egDecay
			break
		}
		// Attack is exponential: the step shrinks as the level
		// approaches full volume
		incr := c.envelopeIncrement(s.ar, s)
		if incr > 0 {
			level := int32(s.egLevel) + ((^int32(s.egLevel) * int32(incr)) >> 3)
			if level < 0 {
				level = 0
			}
			s.egLevel = uint16(level)
		}
	case egDecay:
		if s.egLevel >= c.sustainTarget(s) {
			s.egState = egSustain
			break
		}
		s.egLevel = capLevel(s.egLevel + uint16(c.envelopeIncrement(s.dr, s)))
	case egSustain:
		if s.egt {
			break // Sustaining type holds until key-off
		}
		s.egLevel = capLevel(s.egLevel + uint16(c.envelopeIncrement(s.rr, s)))
	case egRelease:
		s.egLevel = capLevel(s.egLevel + uint16(c.envelopeIncrement(s.rr, s)))
	}
}

// envelopeIncrement returns the envelope step for a 4-bit register rate,
// scaled by the slot's key scaling. Rate 0 never advances. Rates below 48
// are gated by the envelope counter; rates 48+ step every sample.
func (c *Chip) envelopeIncrement(rate uint8, s *slot) uint8 {
	r := c.effectiveRate(rate, s)
	if r == 0 {
		return 0
	}
	if r >= 48 {
		return egHighRateTable[r-48][c.egCounter&0x07]
	}
	shift := uint(11 - r>>2)
	if c.egCounter&((1<<shift)-1) != 0 {
		return 0
	}
	return egIncrementTable[(r&0x03)+1][(c.egCounter>>shift)&0x07]
}

// effectiveRate combines a 4-bit register rate with the channel's key
// scale value: rate*4 + ksv, capped at 63. KSR clear divides the key
// scale contribution by 4.
func (c *Chip) effectiveRate(rate uint8, s *slot) uint8 {
	if rate == 0 {
		return 0
	}
	ksv := c.ch[s.ch].ksv
	if !s.ksr {
		ksv >>= 2
	}
	r := rate*4 + ksv
	if r > 63 {
		r = 63
	}
	return r
}

// sustainTarget returns the envelope level at which decay hands over to
// sustain, in envelope units (SL is 3dB per step).
func (c *Chip) sustainTarget(s *slot) uint16 {
	return uint16(s.sl) << 4
}

// capLevel clamps an envelope level to the 9-bit silent floor.
func capLevel(level uint16) uint16 {
	if level > 0x1FF {
		return 0x1FF
	}
	return level
}

// updateKeyScale recomputes a channel's key scale value (for rate scaling)
// and KSL base attenuation (for level scaling) after a frequency write.
func (c *Chip) updateKeyScale(chIdx int) {
	ch := &c.ch[chIdx]
	ch.ksv = ch.block<<1 | uint8(ch.fnum>>(9-c.nts))&0x01

	ksl := int16(kslRom[ch.fnum>>6])<<2 - int16(8-ch.block)<<5
	if ksl < 0 {
		ksl = 0
	}
	ch.kslBase = uint8(ksl)
}

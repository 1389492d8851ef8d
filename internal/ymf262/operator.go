package ymf262

import "math"

// The YMF262 computes operator output in the log domain: a quarter-wave
// log-sine ROM indexed by the phase generator, attenuation added to it
// (log-domain addition is linear-domain multiplication), then an exponent
// ROM converting back to a linear 13-bit magnitude. Both ROMs are
// reconstructed here from the functions the hardware tables encode.

// logSinTable[i] = -log2(sin((i + 0.5) * pi / 512)) in 1/256th units,
// covering the first quarter of the sine period.
var logSinTable [256]uint16

// expTable[i] holds the fractional part of 2^((255-i)/256) scaled to 10
// bits, with the leading 1024 folded in.
var expTable [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		logSinTable[i] = uint16(math.Round(-math.Log2(math.Sin((float64(i)+0.5)*math.Pi/512)) * 256))
		expTable[i] = uint16(math.Round((math.Pow(2, float64(255-i)/256)-1)*1024)) + 1024
	}
}

// expOut converts a log-domain attenuation level to a linear magnitude.
// The low 8 bits index the exponent table, the high bits shift the result
// down: each 256 steps of level halve the output.
func expOut(level uint32) int32 {
	if level > 0x1FFF {
		level = 0x1FFF
	}
	return int32(uint32(expTable[level&0xFF]) << 1 >> (level >> 8))
}

// logSinLookup reads the quarter-wave log-sine table for a 9-bit half
// period, mirroring the second quarter.
func logSinLookup(phase uint16) uint16 {
	if phase&0x100 != 0 {
		return logSinTable[(phase&0xFF)^0xFF]
	}
	return logSinTable[phase&0xFF]
}

// waveOutput computes one operator sample for a 10-bit phase and a total
// attenuation, selecting one of the chip's 8 waveforms. Negative halves are
// ones' complemented, as on hardware (so "silent" negative output is -1,
// not 0).
func waveOutput(wf uint8, phase uint16, atten uint16) int16 {
	phase &= 0x3FF
	env := uint32(atten) << 3
	neg := false
	var level uint16

	switch wf {
	case 0: // Sine
		neg = phase&0x200 != 0
		level = logSinLookup(phase)
	case 1: // Half sine: negative half flattened to zero
		if phase&0x200 != 0 {
			level = 0x1000
		} else {
			level = logSinLookup(phase)
		}
	case 2: // Absolute sine
		level = logSinLookup(phase)
	case 3: // Pulse sine: rising quarters only
		if phase&0x100 != 0 {
			level = 0x1000
		} else {
			level = logSinTable[phase&0xFF]
		}
	case 4: // Alternating sine: double-frequency sine in the first half
		neg = phase&0x300 == 0x100
		switch {
		case phase&0x200 != 0:
			level = 0x1000
		case phase&0x80 != 0:
			level = logSinTable[((phase^0xFF)<<1)&0xFF]
		default:
			level = logSinTable[(phase<<1)&0xFF]
		}
	case 5: // Camel sine: double-frequency absolute sine in the first half
		switch {
		case phase&0x200 != 0:
			level = 0x1000
		case phase&0x80 != 0:
			level = logSinTable[((phase^0xFF)<<1)&0xFF]
		default:
			level = logSinTable[(phase<<1)&0xFF]
		}
	case 6: // Square
		neg = phase&0x200 != 0
		level = 0
	case 7: // Derived (logarithmic) sawtooth
		if phase&0x200 != 0 {
			neg = true
			phase = (phase & 0x1FF) ^ 0x1FF
		}
		return negOut(expOut(uint32(phase)<<3+env), neg)
	}
	return negOut(expOut(uint32(level)+env), neg)
}

// negOut applies the hardware's ones' complement sign inversion.
func negOut(v int32, neg bool) int16 {
	if neg {
		return int16(^v)
	}
	return int16(v)
}

// slotAttenuation sums a slot's attenuation sources: envelope level, total
// level (in 0.75dB units), key scale level, and tremolo when enabled.
func (c *Chip) slotAttenuation(s *slot) uint16 {
	atten := s.egLevel + uint16(s.tl)<<2 +
		uint16(c.ch[s.ch].kslBase>>kslShift[s.ksl])
	if s.am {
		atten += uint16(c.tremolo)
	}
	return atten
}

// slotOut computes a slot's output for the current sample with the given
// phase modulation input, and rotates its output history for feedback.
func (c *Chip) slotOut(s *slot, mod int32) int16 {
	out := waveOutput(s.wf, s.phaseOut+uint16(mod), c.slotAttenuation(s))
	s.prevOut[1] = s.prevOut[0]
	s.prevOut[0] = out
	return out
}

// feedbackMod computes the self-modulation input of a channel's first slot
// from its previous two outputs. fb=0 disables feedback entirely; fb=7 is
// the deepest setting at (out[-1] + out[-2]) >> 2.
func feedbackMod(fb uint8, s *slot) int32 {
	if fb == 0 {
		return 0
	}
	return (int32(s.prevOut[0]) + int32(s.prevOut[1])) >> (9 - fb)
}

// evalChannel2Op produces one sample for a two-operator channel. CNT clear
// chains op1 into op2 (FM); CNT set sums the two operators.
func (c *Chip) evalChannel2Op(chIdx int) int32 {
	ch := &c.ch[chIdx]
	s0 := &c.slot[ch.slots[0]]
	s1 := &c.slot[ch.slots[1]]
	o0 := c.slotOut(s0, feedbackMod(ch.fb, s0))
	if ch.cnt {
		return int32(o0) + int32(c.slotOut(s1, 0))
	}
	return int32(c.slotOut(s1, int32(o0)))
}

// evalChannel4Op produces one sample for a four-operator pair headed by the
// given primary channel. The CNT bits of the primary and secondary channel
// select one of four algorithms:
//
//	0 (0,0): op1 -> op2 -> op3 -> op4
//	1 (0,1): (op1 -> op2) + (op3 -> op4)
//	2 (1,0): op1 + (op2 -> op3 -> op4)
//	3 (1,1): op1 + (op2 -> op3) + op4
//
// Feedback applies to op1 only.
func (c *Chip) evalChannel4Op(chIdx int) int32 {
	pri := &c.ch[chIdx]
	sec := &c.ch[chIdx+3]
	s0 := &c.slot[pri.slots[0]]
	s1 := &c.slot[pri.slots[1]]
	s2 := &c.slot[sec.slots[0]]
	s3 := &c.slot[sec.slots[1]]

	alg := 0
	if pri.cnt {
		alg |= 0x02
	}
	if sec.cnt {
		alg |= 0x01
	}

	o0 := c.slotOut(s0, feedbackMod(pri.fb, s0))
	switch alg {
	case 0:
		o1 := c.slotOut(s1, int32(o0))
		o2 := c.slotOut(s2, int32(o1))
		return int32(c.slotOut(s3, int32(o2)))
	case 1:
		o1 := c.slotOut(s1, int32(o0))
		o2 := c.slotOut(s2, 0)
		return int32(o1) + int32(c.slotOut(s3, int32(o2)))
	case 2:
		o1 := c.slotOut(s1, 0)
		o2 := c.slotOut(s2, int32(o1))
		return int32(o0) + int32(c.slotOut(s3, int32(o2)))
	default:
		o1 := c.slotOut(s1, 0)
		o2 := c.slotOut(s2, int32(o1))
		return int32(o0) + int32(o2) + int32(c.slotOut(s3, 0))
	}
}

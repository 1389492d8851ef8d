package ymf262

// multTable holds the doubled frequency multipliers for the 4-bit MULT
// field; the phase step computation shifts the doubling back out. Entries
// 11 and 13 repeat their predecessors and 15 caps at x15, as on hardware.
var multTable = [16]uint32{1, 2, 4, 6, 8, 10, 12, 14, 16, 18, 20, 20, 24, 24, 30, 30}

// stepPhases advances every slot's 19-bit phase accumulator by one sample
// and derives the 10-bit phase outputs, substituting the rhythm phases and
// clocking the noise generator when rhythm mode is active.
func (c *Chip) stepPhases() {
	for i := range c.slot {
		s := &c.slot[i]
		ch := &c.ch[s.ch]
		fnum := int32(ch.fnum)
		if s.vib {
			fnum += c.vibratoDelta(ch.fnum)
		}
		inc := (uint32(fnum) << ch.block >> 1) * multTable[s.mult] >> 1
		s.phase = (s.phase + inc) & 0x7FFFF
		s.phaseOut = uint16(s.phase >> 9)
	}

	if c.regBD&0x20 != 0 {
		c.substituteRhythmPhases()
	}

	// 23-bit noise LFSR, clocked once per sample
	nBit := ((c.noise >> 14) ^ c.noise) & 0x01
	c.noise = c.noise>>1 | nBit<<22
}

// substituteRhythmPhases replaces the phase outputs of the hi-hat (slot
// 13), snare drum (slot 16) and top cymbal (slot 17) with values derived
// from the hi-hat and cymbal phase counters and the noise bit. The bass
// drum and tom-tom keep their melodic phases.
func (c *Chip) substituteRhythmPhases() {
	hh := c.slot[13].phaseOut
	tc := c.slot[17].phaseOut

	hhBit2 := hh >> 2 & 0x01
	hhBit3 := hh >> 3 & 0x01
	hhBit7 := hh >> 7 & 0x01
	hhBit8 := hh >> 8 & 0x01
	tcBit3 := tc >> 3 & 0x01
	tcBit5 := tc >> 5 & 0x01

	rmXor := (hhBit2 ^ hhBit7) | (hhBit3 ^ tcBit5) | (tcBit3 ^ tcBit5)
	nBit := uint16(c.noise & 0x01)

	if rmXor^nBit != 0 {
		c.slot[13].phaseOut = rmXor<<9 | 0xD0
	} else {
		c.slot[13].phaseOut = rmXor<<9 | 0x34
	}
	c.slot[16].phaseOut = hhBit8<<9 | (hhBit8^nBit)<<8
	c.slot[17].phaseOut = rmXor<<9 | 0x80
}

// vibratoDelta returns the signed F-number offset for a vibrato-enabled
// slot. The depth tracks the F-number's top 3 bits and the 8-step vibrato
// position traces a coarse sine.
func (c *Chip) vibratoDelta(fnum uint16) int32 {
	rng := int32(fnum >> 7 & 0x07)
	switch {
	case c.vibPos&0x03 == 0:
		rng = 0
	case c.vibPos&0x01 != 0:
		rng >>= 1
	}
	rng >>= c.vibShift
	if c.vibPos&0x04 != 0 {
		rng = -rng
	}
	return rng
}

// stepModulation advances the tremolo and vibrato clocks: the tremolo
// triangle steps every 64 samples over a 210-step period, the vibrato
// position every 1024 samples.
func (c *Chip) stepModulation() {
	if c.timer&0x3F == 0x3F {
		c.tremoloPos = (c.tremoloPos + 1) % 210
	}
	if c.tremoloPos < 105 {
		c.tremolo = c.tremoloPos >> c.tremoloShift
	} else {
		c.tremolo = (210 - c.tremoloPos) >> c.tremoloShift
	}
	if c.timer&0x3FF == 0x3FF {
		c.vibPos = (c.vibPos + 1) & 0x07
	}
	c.timer++
}

// Package opl3 emulates the Yamaha YMF262 (OPL3) FM synthesis chip.
//
// The YMF262 is programmed through 9-bit register addresses: 0x000-0x0FF
// select the first register bank, 0x100-0x1FF the second. Each bank
// controls 9 two-operator channels built from 18 operator slots, for 18
// channels and 36 slots in all. The OPL3 features (the second bank's
// channels, stereo routing, four-operator channel pairing, waveforms 4-7)
// unlock when the NEW bit (register 0x105 bit 0) is set; with NEW clear
// the chip behaves like its OPL2 predecessor, routing every channel to
// both outputs and masking waveform selects to 0-3.
//
// Register writes come in two flavors. WriteRegister takes effect
// immediately, before the next generated sample. WriteRegisterBuffered
// queues the write instead: queued writes are applied in order during
// sample generation, spaced a couple of samples apart the way a driver
// feeding the real chip's ports would space them. Queued writes only
// drain while samples are being generated.
//
// Sound is pulled from the chip one frame or one buffer at a time. The
// Generate, Generate4Ch, GenerateStream and Generate4ChStream calls
// produce samples at the chip's native rate (NativeSampleRate);
// GenerateResampled and Generate4ChResampled interpolate single frames
// down (or up) to the rate the chip was created with. The stereo calls
// fold the chip's four output channels to two (A+C left, B+D right); the
// 4Ch calls keep them separate.
package opl3

import (
	"fmt"

	"github.com/user-none/go-chip-opl3/internal/ymf262"
)

// NativeSampleRate is the YMF262's native output rate in Hz.
const NativeSampleRate = ymf262.NativeRate

// MinSampleRate is the lowest sample rate New and Reset accept. The
// resampler tracks the native rate with a fixed-point ratio that rounds
// to zero below this, which would stall resampled generation.
const MinSampleRate = ymf262.MinSampleRate

const (
	// maxRegister is the highest valid register address.
	maxRegister = 0x1FF

	// minGenerateLen is the smallest output buffer accepted by the
	// single-frame generate calls.
	minGenerateLen = 4

	// writeSettleFrames is the number of native frames a buffered write
	// blocks the queue for once applied.
	writeSettleFrames = 2
)

// registerWrite is one queued register write.
type registerWrite struct {
	register uint16
	value    uint8
}

// Chip is one emulated YMF262. It is not safe for concurrent use.
type Chip struct {
	engine     *ymf262.Chip
	sampleRate int

	// Buffered writes waiting to be applied during generation
	pending  []registerWrite
	cooldown uint32 // Native frames until the next queued write may apply
}

// New creates a chip producing resampled output at sampleRate Hz, which
// must be at least MinSampleRate. The rate only affects GenerateResampled
// and Generate4ChResampled; the other generate calls always run at
// NativeSampleRate.
func New(sampleRate int) (*Chip, error) {
	if sampleRate < MinSampleRate {
		return nil, fmt.Errorf("%w: sample rate %d Hz (minimum %d)", ErrInvalidConfiguration, sampleRate, MinSampleRate)
	}
	return &Chip{
		engine:     ymf262.New(sampleRate),
		sampleRate: sampleRate,
	}, nil
}

// Reset returns the chip to power-on state and rebinds the output sample
// rate. All register state, queued writes, and generation progress are
// discarded.
func (c *Chip) Reset(sampleRate int) error {
	if sampleRate < MinSampleRate {
		return fmt.Errorf("%w: sample rate %d Hz (minimum %d)", ErrInvalidConfiguration, sampleRate, MinSampleRate)
	}
	c.engine.Reset(sampleRate)
	c.sampleRate = sampleRate
	c.pending = nil
	c.cooldown = 0
	return nil
}

// WriteRegister applies a register write immediately. register is a 9-bit
// address (0x000-0x1FF); value takes the register's full 8 bits.
// Addresses in range that don't map to a chip register are accepted and
// ignored, as on hardware.
func (c *Chip) WriteRegister(register uint16, value uint8) error {
	if register > maxRegister {
		return fmt.Errorf("%w: address 0x%03X (valid range 0x000-0x1FF)", ErrInvalidRegister, register)
	}
	c.engine.WriteReg(register, value)
	return nil
}

// WriteRegisterBuffered queues a register write to be applied during
// sample generation. Queued writes drain in order, one per
// writeSettleFrames native frames, so a burst of writes lands the way it
// would on the real chip's ports. An invalid address is rejected without
// enqueuing anything.
func (c *Chip) WriteRegisterBuffered(register uint16, value uint8) error {
	if register > maxRegister {
		return fmt.Errorf("%w: address 0x%03X (valid range 0x000-0x1FF)", ErrInvalidRegister, register)
	}
	c.pending = append(c.pending, registerWrite{register: register, value: value})
	return nil
}

// PendingWrites returns the number of buffered register writes not yet
// applied.
func (c *Chip) PendingWrites() int {
	return len(c.pending)
}

// SampleRate returns the output rate of the resampled generate calls.
func (c *Chip) SampleRate() int {
	return c.sampleRate
}

// Generate produces one native-rate stereo frame into buf[0] (left) and
// buf[1] (right). buf must hold at least 4 elements; elements past the
// frame are left untouched.
func (c *Chip) Generate(buf []int16) error {
	if err := checkGenerateBuffer(buf); err != nil {
		return err
	}
	c.applyDueWrite()
	c.engine.Generate(buf[:2])
	c.advanceScheduler(1)
	return nil
}

// GenerateResampled produces one stereo frame at the chip's bound sample
// rate into buf[0] and buf[1]. buf must hold at least 4 elements;
// elements past the frame are left untouched.
func (c *Chip) GenerateResampled(buf []int16) error {
	if err := checkGenerateBuffer(buf); err != nil {
		return err
	}
	c.applyDueWrite()
	before := c.engine.Cycles()
	c.engine.GenerateResampled(buf[:2])
	c.advanceScheduler(c.engine.Cycles() - before)
	return nil
}

// Generate4Ch produces one native-rate four-channel frame into buf[0:4]
// (outputs A, B, C, D). buf must hold at least 4 elements.
func (c *Chip) Generate4Ch(buf []int16) error {
	if err := checkGenerateBuffer(buf); err != nil {
		return err
	}
	c.applyDueWrite()
	c.engine.Generate4Ch(buf[:4])
	c.advanceScheduler(1)
	return nil
}

// Generate4ChResampled produces one four-channel frame at the chip's
// bound sample rate into buf[0:4]. buf must hold at least 4 elements.
func (c *Chip) Generate4ChResampled(buf []int16) error {
	if err := checkGenerateBuffer(buf); err != nil {
		return err
	}
	c.applyDueWrite()
	before := c.engine.Cycles()
	c.engine.Generate4ChResampled(buf[:4])
	c.advanceScheduler(c.engine.Cycles() - before)
	return nil
}

// GenerateStream fills buf with native-rate stereo frames, interleaved
// left then right. len(buf) must be positive and even. Buffered register
// writes drain while the stream is generated.
func (c *Chip) GenerateStream(buf []int16) error {
	if len(buf) == 0 {
		return fmt.Errorf("%w: stream buffer is empty", ErrBufferTooSmall)
	}
	if len(buf)%2 != 0 {
		return fmt.Errorf("%w: %d elements (stereo frames need a multiple of 2)", ErrBufferUnaligned, len(buf))
	}
	for off := 0; off < len(buf); off += 2 {
		c.applyDueWrite()
		c.engine.Generate(buf[off : off+2])
		c.advanceScheduler(1)
	}
	return nil
}

// Generate4ChStream fills two equal-length buffers with native-rate
// frames: buf1 carries outputs A and B interleaved, buf2 outputs C and D.
// Both lengths must be positive, equal, and even. Buffered register
// writes drain while the stream is generated.
func (c *Chip) Generate4ChStream(buf1, buf2 []int16) error {
	if len(buf1) != len(buf2) {
		return fmt.Errorf("%w: %d vs %d elements", ErrBufferMismatch, len(buf1), len(buf2))
	}
	if len(buf1) == 0 {
		return fmt.Errorf("%w: stream buffers are empty", ErrBufferTooSmall)
	}
	if len(buf1)%2 != 0 {
		return fmt.Errorf("%w: %d elements (stereo frames need a multiple of 2)", ErrBufferUnaligned, len(buf1))
	}
	var frame [4]int16
	for off := 0; off < len(buf1); off += 2 {
		c.applyDueWrite()
		c.engine.Generate4Ch(frame[:])
		c.advanceScheduler(1)
		buf1[off] = frame[0]
		buf1[off+1] = frame[1]
		buf2[off] = frame[2]
		buf2[off+1] = frame[3]
	}
	return nil
}

// checkGenerateBuffer validates an output buffer for the single-frame
// generate calls.
func checkGenerateBuffer(buf []int16) error {
	if len(buf) < minGenerateLen {
		return fmt.Errorf("%w: %d elements (minimum %d)", ErrBufferTooSmall, len(buf), minGenerateLen)
	}
	return nil
}

// applyDueWrite applies the oldest buffered write if the settle window
// from the previous one has passed. At most one write applies per native
// frame.
func (c *Chip) applyDueWrite() {
	if c.cooldown > 0 || len(c.pending) == 0 {
		return
	}
	w := c.pending[0]
	c.pending = c.pending[1:]
	c.engine.WriteReg(w.register, w.value)
	c.cooldown = writeSettleFrames
}

// advanceScheduler credits generated native frames against the settle
// window of the most recently applied buffered write.
func (c *Chip) advanceScheduler(frames uint64) {
	if uint64(c.cooldown) > frames {
		c.cooldown -= uint32(frames)
	} else {
		c.cooldown = 0
	}
}

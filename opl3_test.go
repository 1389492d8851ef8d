package opl3

import (
	"errors"
	"strings"
	"testing"
)

// programSquareCarrier configures channel 0 to output a constant 4084 on
// output A from the first generated frame: full-volume square carrier,
// instant attack, envelope held at sustain.
func programSquareCarrier(t *testing.T, c *Chip) {
	t.Helper()
	writes := []struct {
		reg uint16
		val uint8
	}{
		{0x105, 0x01}, // OPL3 mode (waveform 6, stereo routing)
		{0x023, 0x20}, // carrier: sustaining envelope
		{0x063, 0xF0}, // carrier: instant attack
		{0x0E3, 0x06}, // carrier: square wave
		{0x0C0, 0x11}, // output A, additive (modulator stays silent)
		{0x0B0, 0x20}, // key on
	}
	for _, w := range writes {
		if err := c.WriteRegister(w.reg, w.val); err != nil {
			t.Fatalf("write 0x%03X: %v", w.reg, err)
		}
	}
}

func mustNew(t *testing.T, rate int) *Chip {
	t.Helper()
	c, err := New(rate)
	if err != nil {
		t.Fatalf("New(%d): %v", rate, err)
	}
	return c
}

// --- Construction and configuration ---

func TestNew_RejectsBadRate(t *testing.T) {
	// Nonpositive rates and rates too low for the resampler ratio
	for _, rate := range []int{0, -5, 10, MinSampleRate - 1} {
		c, err := New(rate)
		if !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("New(%d): got %v, want ErrInvalidConfiguration", rate, err)
		}
		if c != nil {
			t.Errorf("New(%d): got a chip alongside the error", rate)
		}
	}
}

func TestNew_MinimumSampleRate(t *testing.T) {
	// The lowest accepted rate must still make resampling progress: its
	// fixed-point ratio is 1, so each output frame past the first drains
	// a full ratio step of native frames.
	c := mustNew(t, MinSampleRate)
	if c.SampleRate() != MinSampleRate {
		t.Errorf("SampleRate: got %d, want %d", c.SampleRate(), MinSampleRate)
	}
	buf := make([]int16, 4)
	for i := 0; i < 3; i++ {
		if err := c.GenerateResampled(buf); err != nil {
			t.Fatalf("GenerateResampled %d: %v", i, err)
		}
	}
	if got := c.engine.Cycles(); got != 2048 {
		t.Errorf("native frames after 3 calls: got %d, want 2048", got)
	}
}

func TestNew_BindsRate(t *testing.T) {
	c := mustNew(t, 44100)
	if c.SampleRate() != 44100 {
		t.Errorf("SampleRate: got %d, want 44100", c.SampleRate())
	}
}

func TestReset_Validation(t *testing.T) {
	c := mustNew(t, 44100)
	if err := c.Reset(0); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("Reset(0): got %v, want ErrInvalidConfiguration", err)
	}
	if err := c.Reset(MinSampleRate - 1); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("Reset(%d): got %v, want ErrInvalidConfiguration", MinSampleRate-1, err)
	}
	if c.SampleRate() != 44100 {
		t.Errorf("failed Reset changed the rate to %d", c.SampleRate())
	}
	if err := c.Reset(22050); err != nil {
		t.Fatalf("Reset(22050): %v", err)
	}
	if c.SampleRate() != 22050 {
		t.Errorf("SampleRate after Reset: got %d, want 22050", c.SampleRate())
	}
}

func TestReset_DiscardsQueuedWrites(t *testing.T) {
	c := mustNew(t, NativeSampleRate)
	c.WriteRegisterBuffered(0x43, 0x01)
	c.WriteRegisterBuffered(0x43, 0x02)
	if err := c.Reset(NativeSampleRate); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if c.PendingWrites() != 0 {
		t.Errorf("pending after Reset: got %d, want 0", c.PendingWrites())
	}
}

// --- Register validation ---

func TestWriteRegister_AddressRange(t *testing.T) {
	c := mustNew(t, NativeSampleRate)

	if err := c.WriteRegister(0x1FF, 0xFF); err != nil {
		t.Errorf("write to 0x1FF: %v", err)
	}
	err := c.WriteRegister(0x200, 0x00)
	if !errors.Is(err, ErrInvalidRegister) {
		t.Fatalf("write to 0x200: got %v, want ErrInvalidRegister", err)
	}
	if !strings.Contains(err.Error(), "0x200") {
		t.Errorf("error should name the address: %q", err)
	}
	if err := c.WriteRegister(0xFFFF, 0x00); !errors.Is(err, ErrInvalidRegister) {
		t.Errorf("write to 0xFFFF: got %v, want ErrInvalidRegister", err)
	}
}

func TestWriteRegisterBuffered_InvalidNotQueued(t *testing.T) {
	c := mustNew(t, NativeSampleRate)
	if err := c.WriteRegisterBuffered(0x200, 0x00); !errors.Is(err, ErrInvalidRegister) {
		t.Fatalf("got %v, want ErrInvalidRegister", err)
	}
	if c.PendingWrites() != 0 {
		t.Errorf("rejected write was queued: pending %d", c.PendingWrites())
	}
}

// --- Immediate vs buffered writes ---

func TestWriteRegister_TakesEffectImmediately(t *testing.T) {
	c := mustNew(t, NativeSampleRate)
	programSquareCarrier(t, c)

	// The first frame already carries the configured voice
	buf := []int16{0, 0, 0x7EFE, 0x7EFE}
	if err := c.Generate(buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if buf[0] != 4084 || buf[1] != 0 {
		t.Errorf("first frame: got % d, want [4084 0 ...]", buf[:2])
	}
	if buf[2] != 0x7EFE || buf[3] != 0x7EFE {
		t.Errorf("elements past the frame were touched: % d", buf[2:])
	}
}

func TestWriteRegister_BypassesQueue(t *testing.T) {
	c := mustNew(t, NativeSampleRate)
	c.WriteRegisterBuffered(0x40, 0x15)
	c.WriteRegister(0x43, 0x2A)

	if got := c.engine.GetSlotTL(3); got != 0x2A {
		t.Errorf("immediate write: got TL 0x%02X, want 0x2A", got)
	}
	if got := c.engine.GetSlotTL(0); got != 0 {
		t.Errorf("buffered write applied early: TL 0x%02X", got)
	}
	if c.PendingWrites() != 1 {
		t.Errorf("pending: got %d, want 1", c.PendingWrites())
	}
}

func TestWriteRegister_WaveformSelect(t *testing.T) {
	c := mustNew(t, NativeSampleRate)

	// With NEW clear the chip keeps only the four OPL2 waveforms
	if err := c.WriteRegister(0x0E3, 0x07); err != nil {
		t.Fatalf("waveform write: %v", err)
	}
	if got := c.engine.GetSlotWaveform(3); got != 3 {
		t.Errorf("compat-mode waveform: got %d, want 3", got)
	}

	if err := c.WriteRegister(0x105, 0x01); err != nil {
		t.Fatalf("NEW write: %v", err)
	}
	if err := c.WriteRegister(0x0E3, 0x07); err != nil {
		t.Fatalf("waveform write: %v", err)
	}
	if got := c.engine.GetSlotWaveform(3); got != 7 {
		t.Errorf("OPL3-mode waveform: got %d, want 7", got)
	}
}

func TestWriteRegisterBuffered_HeldUntilGeneration(t *testing.T) {
	c := mustNew(t, NativeSampleRate)
	c.WriteRegisterBuffered(0x43, 0x01)
	c.WriteRegisterBuffered(0x43, 0x02)
	c.WriteRegisterBuffered(0x43, 0x03)

	if got := c.engine.GetSlotTL(3); got != 0 {
		t.Fatalf("queued write applied without generation: TL 0x%02X", got)
	}
	if c.PendingWrites() != 3 {
		t.Fatalf("pending: got %d, want 3", c.PendingWrites())
	}
}

func TestWriteRegisterBuffered_DrainsInOrderWithSettle(t *testing.T) {
	c := mustNew(t, NativeSampleRate)
	c.WriteRegisterBuffered(0x43, 0x01)
	c.WriteRegisterBuffered(0x43, 0x02)
	c.WriteRegisterBuffered(0x43, 0x03)

	// One write lands per two generated frames
	wantTL := []uint8{1, 1, 2, 2, 3}
	wantPending := []int{2, 2, 1, 1, 0}
	buf := make([]int16, 4)
	for i := range wantTL {
		if err := c.Generate(buf); err != nil {
			t.Fatalf("Generate %d: %v", i, err)
		}
		if got := c.engine.GetSlotTL(3); got != wantTL[i] {
			t.Errorf("after frame %d: TL got %d, want %d", i+1, got, wantTL[i])
		}
		if got := c.PendingWrites(); got != wantPending[i] {
			t.Errorf("after frame %d: pending got %d, want %d", i+1, got, wantPending[i])
		}
	}
}

func TestGenerateStream_DrainsQueue(t *testing.T) {
	c := mustNew(t, NativeSampleRate)
	for v := uint8(1); v <= 5; v++ {
		c.WriteRegisterBuffered(0x43, v)
	}

	// Ten frames are enough for five writes at one per two frames
	if err := c.GenerateStream(make([]int16, 20)); err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if got := c.engine.GetSlotTL(3); got != 5 {
		t.Errorf("TL after drain: got %d, want 5", got)
	}
	if c.PendingWrites() != 0 {
		t.Errorf("pending after drain: got %d, want 0", c.PendingWrites())
	}
}

func TestGenerateResampled_SchedulerFollowsNativeFrames(t *testing.T) {
	// At half the native rate each output frame consumes two native
	// frames, so consecutive queued writes land on consecutive calls.
	c := mustNew(t, 24858)
	c.WriteRegisterBuffered(0x43, 0x01)
	c.WriteRegisterBuffered(0x43, 0x02)

	buf := make([]int16, 4)
	wantTL := []uint8{1, 1, 2}
	for i, want := range wantTL {
		if err := c.GenerateResampled(buf); err != nil {
			t.Fatalf("GenerateResampled %d: %v", i, err)
		}
		if got := c.engine.GetSlotTL(3); got != want {
			t.Errorf("after call %d: TL got %d, want %d", i+1, got, want)
		}
	}
}

// --- Single-frame buffer contract ---

func TestGenerate_BufferTooSmall(t *testing.T) {
	c := mustNew(t, NativeSampleRate)
	c.WriteRegisterBuffered(0x43, 0x01)

	for length := 0; length < 4; length++ {
		buf := make([]int16, length)
		if err := c.Generate(buf); !errors.Is(err, ErrBufferTooSmall) {
			t.Errorf("Generate with %d elements: got %v, want ErrBufferTooSmall", length, err)
		}
	}
	// The failed calls must not have generated or drained anything
	if c.engine.Cycles() != 0 {
		t.Errorf("failed calls advanced the chip by %d frames", c.engine.Cycles())
	}
	if c.PendingWrites() != 1 {
		t.Errorf("failed calls drained the queue: pending %d", c.PendingWrites())
	}

	// Exactly four elements is the minimum and succeeds
	if err := c.Generate(make([]int16, 4)); err != nil {
		t.Errorf("Generate with 4 elements: %v", err)
	}
}

func TestGenerate_VariantsShareBufferContract(t *testing.T) {
	c := mustNew(t, 44100)
	short := make([]int16, 3)
	if err := c.GenerateResampled(short); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("GenerateResampled: got %v, want ErrBufferTooSmall", err)
	}
	if err := c.Generate4Ch(short); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("Generate4Ch: got %v, want ErrBufferTooSmall", err)
	}
	if err := c.Generate4ChResampled(short); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("Generate4ChResampled: got %v, want ErrBufferTooSmall", err)
	}

	ok := make([]int16, 4)
	if err := c.GenerateResampled(ok); err != nil {
		t.Errorf("GenerateResampled: %v", err)
	}
	if err := c.Generate4Ch(ok); err != nil {
		t.Errorf("Generate4Ch: %v", err)
	}
	if err := c.Generate4ChResampled(ok); err != nil {
		t.Errorf("Generate4ChResampled: %v", err)
	}
}

func TestGenerate4Ch_WritesAllFour(t *testing.T) {
	c := mustNew(t, NativeSampleRate)
	programSquareCarrier(t, c)
	c.WriteRegister(0xC0, 0xF1) // route everywhere

	buf := []int16{-1, -1, -1, -1}
	if err := c.Generate4Ch(buf); err != nil {
		t.Fatalf("Generate4Ch: %v", err)
	}
	for ch, v := range buf {
		if v != 4084 {
			t.Errorf("output %d: got %d, want 4084", ch, v)
		}
	}
}

// --- Streams ---

func TestGenerateStream_Validation(t *testing.T) {
	c := mustNew(t, NativeSampleRate)
	c.WriteRegisterBuffered(0x43, 0x01)

	if err := c.GenerateStream(nil); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("empty stream: got %v, want ErrBufferTooSmall", err)
	}
	if err := c.GenerateStream(make([]int16, 5)); !errors.Is(err, ErrBufferUnaligned) {
		t.Errorf("odd stream: got %v, want ErrBufferUnaligned", err)
	}

	// Rejected calls generate nothing and leave the queue alone
	if got := c.engine.Cycles(); got != 0 {
		t.Errorf("failed calls advanced the chip by %d frames", got)
	}
	if got := c.PendingWrites(); got != 1 {
		t.Errorf("failed calls touched the queue: pending %d", got)
	}
}

func TestGenerateStream_FillsWholeBuffer(t *testing.T) {
	c := mustNew(t, NativeSampleRate)
	buf := make([]int16, 32)
	for i := range buf {
		buf[i] = 0x7EFE
	}
	if err := c.GenerateStream(buf); err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	// A freshly reset chip is silent, so every element must now be zero
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("element %d: got %d, want 0", i, v)
		}
	}
	if got := c.engine.Cycles(); got != 16 {
		t.Errorf("frames generated: got %d, want 16", got)
	}
}

func TestGenerate4ChStream_Validation(t *testing.T) {
	c := mustNew(t, NativeSampleRate)
	c.WriteRegisterBuffered(0x43, 0x01)

	// Length mismatch wins over alignment
	if err := c.Generate4ChStream(make([]int16, 8), make([]int16, 7)); !errors.Is(err, ErrBufferMismatch) {
		t.Errorf("mismatched buffers: got %v, want ErrBufferMismatch", err)
	}
	if err := c.Generate4ChStream(make([]int16, 7), make([]int16, 7)); !errors.Is(err, ErrBufferUnaligned) {
		t.Errorf("odd buffers: got %v, want ErrBufferUnaligned", err)
	}
	if err := c.Generate4ChStream(nil, nil); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("empty buffers: got %v, want ErrBufferTooSmall", err)
	}

	// Rejected calls generate nothing and leave the queue alone
	if got := c.engine.Cycles(); got != 0 {
		t.Errorf("failed calls advanced the chip by %d frames", got)
	}
	if got := c.PendingWrites(); got != 1 {
		t.Errorf("failed calls touched the queue: pending %d", got)
	}
}

func TestGenerate4ChStream_SplitsOutputPairs(t *testing.T) {
	c := mustNew(t, NativeSampleRate)
	programSquareCarrier(t, c) // routed to output A only

	buf1 := make([]int16, 8)
	buf2 := make([]int16, 8)
	if err := c.Generate4ChStream(buf1, buf2); err != nil {
		t.Fatalf("Generate4ChStream: %v", err)
	}
	for i := 0; i < len(buf1); i += 2 {
		if buf1[i] != 4084 || buf1[i+1] != 0 {
			t.Errorf("frame %d: A/B got %d/%d, want 4084/0", i/2, buf1[i], buf1[i+1])
		}
		if buf2[i] != 0 || buf2[i+1] != 0 {
			t.Errorf("frame %d: C/D got %d/%d, want 0/0", i/2, buf2[i], buf2[i+1])
		}
	}
}

// --- Determinism ---

func TestChip_DeterministicAcrossInstances(t *testing.T) {
	run := func() []int16 {
		c := mustNew(t, NativeSampleRate)
		programSquareCarrier(t, c)
		c.WriteRegisterBuffered(0x43, 0x02)
		c.WriteRegisterBuffered(0x40, 0x08)

		out := make([]int16, 100)
		if err := c.GenerateStream(out); err != nil {
			t.Fatalf("GenerateStream: %v", err)
		}
		return out
	}

	a := run()
	b := run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("element %d diverged: %d vs %d", i, a[i], b[i])
		}
	}
}

// --- End-to-end tour ---

func TestChip_PlaybackTour(t *testing.T) {
	c := mustNew(t, NativeSampleRate)

	// A two-op FM voice on channel 0, all writes immediate
	writes := []struct {
		reg uint16
		val uint8
	}{
		{0x001, 0x20}, // accepted and ignored
		{0x020, 0x01},
		{0x023, 0x01},
		{0x040, 0x10},
		{0x043, 0x00},
		{0x060, 0xF0},
		{0x063, 0xF0},
		{0x080, 0x77},
		{0x083, 0x77},
		{0x0A0, 0x44},
		{0x0B0, 0x32}, // key on
	}
	for _, w := range writes {
		if err := c.WriteRegister(w.reg, w.val); err != nil {
			t.Fatalf("write 0x%03X: %v", w.reg, err)
		}
	}

	buf := make([]int16, 4)
	heard := false
	for i := 0; i < 8 && !heard; i++ {
		if err := c.Generate(buf); err != nil {
			t.Fatalf("Generate: %v", err)
		}
		heard = buf[0] != 0
	}
	if !heard {
		t.Fatal("keyed-on voice produced no output")
	}

	// An undersized buffer fails without disturbing playback
	cyclesBefore := c.engine.Cycles()
	if err := c.Generate(make([]int16, 3)); !errors.Is(err, ErrBufferTooSmall) {
		t.Fatalf("short buffer: got %v, want ErrBufferTooSmall", err)
	}
	if c.engine.Cycles() != cyclesBefore {
		t.Fatal("failed Generate advanced the chip")
	}

	// Fade the modulator via the buffered path while audio keeps flowing
	c.WriteRegisterBuffered(0x40, 0x3F)
	if err := c.GenerateStream(make([]int16, 8)); err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if c.PendingWrites() != 0 {
		t.Errorf("pending after stream: got %d, want 0", c.PendingWrites())
	}

	// Key off and drain the release
	if err := c.WriteRegister(0x0B0, 0x12); err != nil {
		t.Fatalf("key off: %v", err)
	}
	if err := c.GenerateStream(make([]int16, 2048)); err != nil {
		t.Fatalf("release stream: %v", err)
	}
}

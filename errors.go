package opl3

import "errors"

// Sentinel errors returned by the package. Errors carrying context (the
// offending address, length, or rate) wrap these, so callers should match
// with errors.Is.
var (
	// ErrInvalidConfiguration reports a rejected chip configuration,
	// such as a non-positive sample rate.
	ErrInvalidConfiguration = errors.New("opl3: invalid configuration")

	// ErrInvalidRegister reports a register address outside the chip's
	// two banks (0x000-0x1FF).
	ErrInvalidRegister = errors.New("opl3: invalid register")

	// ErrBufferTooSmall reports an output buffer with too few elements
	// for the requested generation call.
	ErrBufferTooSmall = errors.New("opl3: buffer too small")

	// ErrBufferMismatch reports paired output buffers of different
	// lengths.
	ErrBufferMismatch = errors.New("opl3: buffer length mismatch")

	// ErrBufferUnaligned reports a stream buffer whose length is not a
	// whole number of stereo frames.
	ErrBufferUnaligned = errors.New("opl3: buffer not frame aligned")
)

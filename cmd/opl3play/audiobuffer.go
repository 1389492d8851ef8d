package main

import (
	"io"
	"sync"
)

// pcmBuffer is a bounded FIFO of PCM bytes between the render loop and
// oto's playback goroutine. The render loop appends with Write; oto
// pulls through the io.Reader side. A full buffer discards its oldest
// audio so the writer never blocks, and a reader on an empty buffer
// waits until audio arrives or Close is called.
type pcmBuffer struct {
	mu       sync.Mutex
	nonEmpty *sync.Cond
	data     []byte
	head     int // Index of the oldest byte
	size     int // Bytes buffered; writes land at (head+size)%len(data)
	done     bool
}

func newPCMBuffer(capacity int) *pcmBuffer {
	b := &pcmBuffer{data: make([]byte, capacity)}
	b.nonEmpty = sync.NewCond(&b.mu)
	return b
}

// Write appends p without blocking, discarding the oldest buffered
// audio if p does not fit.
func (b *pcmBuffer) Write(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done || len(p) == 0 {
		return
	}

	if len(p) >= len(b.data) {
		// p alone fills the buffer; everything queued is stale anyway
		copy(b.data, p[len(p)-len(b.data):])
		b.head = 0
		b.size = len(b.data)
		b.nonEmpty.Signal()
		return
	}

	if excess := b.size + len(p) - len(b.data); excess > 0 {
		b.head = (b.head + excess) % len(b.data)
		b.size -= excess
	}
	tail := (b.head + b.size) % len(b.data)
	n := copy(b.data[tail:], p)
	copy(b.data, p[n:])
	b.size += len(p)
	b.nonEmpty.Signal()
}

// Read hands out up to len(p) buffered bytes, blocking while the buffer
// is empty. After Close it drains what remains and then reports io.EOF.
func (b *pcmBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.size == 0 {
		if b.done {
			return 0, io.EOF
		}
		b.nonEmpty.Wait()
	}

	want := len(p)
	if want > b.size {
		want = b.size
	}
	n := copy(p[:want], b.data[b.head:])
	copy(p[n:want], b.data)
	b.head = (b.head + want) % len(b.data)
	b.size -= want
	return want, nil
}

// Buffered returns how many bytes are queued.
func (b *pcmBuffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Close wakes blocked readers. Writes become no-ops.
func (b *pcmBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done = true
	b.nonEmpty.Broadcast()
}

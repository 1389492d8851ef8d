package main

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/user-none/go-chip-opl3"
)

// speakerBufferBytes sizes the PCM hand-off buffer: a third of a second
// of native-rate stereo 16-bit audio.
const speakerBufferBytes = opl3.NativeSampleRate * 4 / 3

// speaker pushes rendered frames to the audio device. oto pulls PCM
// bytes from a pcmBuffer on its own goroutine; the render loop keeps
// the buffer topped up.
type speaker struct {
	out     *oto.Player
	pcm     *pcmBuffer
	scratch []byte
}

// openSpeaker starts the audio device at the chip's native rate, so
// played frames need no resampling.
func openSpeaker(volume float64) (*speaker, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   opl3.NativeSampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   50 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("audio device unavailable: %w", err)
	}
	<-ready

	s := &speaker{pcm: newPCMBuffer(speakerBufferBytes)}
	s.out = ctx.NewPlayer(s.pcm)
	s.out.SetVolume(volume)
	s.out.Play()
	return s, nil
}

// play queues interleaved stereo frames for the device.
func (s *speaker) play(frames []int16) {
	if len(frames)*2 > cap(s.scratch) {
		s.scratch = make([]byte, len(frames)*2)
	}
	raw := s.scratch[:len(frames)*2]
	for i, v := range frames {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(v))
	}
	s.pcm.Write(raw)
}

// buffered returns the bytes queued but not yet played, counting both
// the hand-off buffer and oto's own.
func (s *speaker) buffered() int {
	return s.pcm.Buffered() + s.out.BufferedSize()
}

func (s *speaker) close() {
	s.pcm.Close()
	s.out.Close()
}

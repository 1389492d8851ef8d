// Command opl3play renders a short built-in tune on the emulated YMF262
// and either plays it through the default audio device or writes it to a
// WAV file. It exists to exercise the chip end to end: immediate register
// writes program the voices, buffered writes drive the note events, and
// the stream generator renders the result at the chip's native rate.
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/user-none/go-chip-opl3"
)

func main() {
	wavPath := flag.String("wav", "", "write the tune to a WAV file instead of playing it")
	seconds := flag.Float64("seconds", 8, "length of audio to render")
	volume := flag.Float64("volume", 0.8, "playback volume (0.0 to 1.0)")
	flag.Parse()

	if *seconds <= 0 {
		log.Fatalf("Invalid length: %gs", *seconds)
	}

	chip, err := opl3.New(opl3.NativeSampleRate)
	if err != nil {
		log.Fatalf("Failed to create chip: %v", err)
	}

	if err := setupChip(chip); err != nil {
		log.Fatalf("Failed to program voices: %v", err)
	}

	samples, err := renderTune(chip, *seconds)
	if err != nil {
		log.Fatalf("Failed to render: %v", err)
	}

	if *wavPath != "" {
		data := encodeWAV(samples, opl3.NativeSampleRate, 2)
		if err := os.WriteFile(*wavPath, data, 0644); err != nil {
			log.Fatalf("Failed to write WAV: %v", err)
		}
		return
	}

	if err := playSamples(samples, *volume); err != nil {
		log.Fatalf("Playback failed: %v", err)
	}
}

// voice is a two-operator FM patch. Field values are raw register bytes
// for the modulator and carrier slot register families.
type voice struct {
	modChar, carChar       uint8 // 0x20: AM/VIB/EGT/KSR/MULT
	modLevel, carLevel     uint8 // 0x40: KSL/TL
	modAttack, carAttack   uint8 // 0x60: AR/DR
	modSustain, carSustain uint8 // 0x80: SL/RR
	modWave, carWave       uint8 // 0xE0: waveform select
	fbcnt                  uint8 // 0xC0 low nibble: feedback/connection
}

var (
	// Bright sustaining lead for the arpeggio
	leadVoice = voice{
		modChar: 0x21, carChar: 0x21,
		modLevel: 0x1B, carLevel: 0x00,
		modAttack: 0xF3, carAttack: 0xF4,
		modSustain: 0x26, carSustain: 0x26,
		modWave: 0x00, carWave: 0x00,
		fbcnt: 0x0C,
	}

	// Soft slow-attack pad with vibrato on the carrier
	padVoice = voice{
		modChar: 0x21, carChar: 0x61,
		modLevel: 0x23, carLevel: 0x08,
		modAttack: 0x52, carAttack: 0x52,
		modSustain: 0x35, carSustain: 0x35,
		modWave: 0x00, carWave: 0x01,
		fbcnt: 0x04,
	}

	// Punchy percussive bass an octave below its F-number
	bassVoice = voice{
		modChar: 0x00, carChar: 0x00,
		modLevel: 0x16, carLevel: 0x00,
		modAttack: 0xF5, carAttack: 0xF5,
		modSustain: 0x47, carSustain: 0x47,
		modWave: 0x00, carWave: 0x00,
		fbcnt: 0x0A,
	}
)

// slotBase maps a bank-0 channel to its first operator's register offset;
// the second operator sits 3 higher.
var slotBase = [9]uint16{0x00, 0x01, 0x02, 0x08, 0x09, 0x0A, 0x10, 0x11, 0x12}

// setupChip switches the chip into OPL3 mode and programs the three demo
// voices with immediate writes.
func setupChip(chip *opl3.Chip) error {
	if err := chip.WriteRegister(0x105, 0x01); err != nil {
		return err
	}
	if err := programVoice(chip, 0, leadVoice); err != nil {
		return err
	}
	if err := programVoice(chip, 1, padVoice); err != nil {
		return err
	}
	return programVoice(chip, 2, bassVoice)
}

func programVoice(chip *opl3.Chip, ch int, v voice) error {
	mod := slotBase[ch]
	car := mod + 3
	regs := []struct {
		reg uint16
		val uint8
	}{
		{0x20 + mod, v.modChar},
		{0x20 + car, v.carChar},
		{0x40 + mod, v.modLevel},
		{0x40 + car, v.carLevel},
		{0x60 + mod, v.modAttack},
		{0x60 + car, v.carAttack},
		{0x80 + mod, v.modSustain},
		{0x80 + car, v.carSustain},
		{0xE0 + mod, v.modWave},
		{0xE0 + car, v.carWave},
		// Route to both speakers, set feedback/connection
		{0xC0 + uint16(ch), 0x30 | v.fbcnt},
	}
	for _, r := range regs {
		if err := chip.WriteRegister(r.reg, r.val); err != nil {
			return err
		}
	}
	return nil
}

// note is a pitch as the chip sees it: a 10-bit F-number and a 3-bit
// octave block. F-numbers below are tuned for block 4 at the native rate
// (A4 = 0x244 comes out at 440.0 Hz).
type note struct {
	fnum  uint16
	block uint8
}

var (
	noteC4 = note{0x159, 4}
	noteE4 = note{0x1B3, 4}
	noteF4 = note{0x1CC, 4}
	noteG4 = note{0x205, 4}
	noteA4 = note{0x244, 4}
	noteB4 = note{0x28B, 4}
	noteC5 = note{0x2B2, 4}
	noteD5 = note{0x306, 4}
	noteE5 = note{0x365, 4}

	noteA2 = note{0x244, 2}
	noteC2 = note{0x159, 2}
	noteF2 = note{0x1CC, 2}
	noteG2 = note{0x205, 2}
)

// progression is the tune: an Am-F-C-G vamp, one bar per chord. The bass
// holds the root, the pad holds the lowest chord tone, and the lead
// arpeggiates the triad in eighth notes.
var progression = [4]struct {
	bass  note
	chord [3]note
}{
	{bass: noteA2, chord: [3]note{noteA4, noteC5, noteE5}},
	{bass: noteF2, chord: [3]note{noteF4, noteA4, noteC5}},
	{bass: noteC2, chord: [3]note{noteC4, noteE4, noteG4}},
	{bass: noteG2, chord: [3]note{noteG4, noteB4, noteD5}},
}

// noteEvent keys a note on or off on one channel at a native frame.
type noteEvent struct {
	frame int
	ch    int
	on    bool
	n     note
}

const (
	barFrames = 2 * opl3.NativeSampleRate // 2s per chord
	arpSteps  = 8
)

// tuneEvents lays out the progression as a frame-ordered event list long
// enough to cover totalFrames, looping the vamp as needed.
func tuneEvents(totalFrames int) []noteEvent {
	var events []noteEvent
	var prevLead note
	leadDown := false
	arpOrder := [arpSteps]int{0, 1, 2, 1, 0, 1, 2, 1}

	for barStart, barIdx := 0, 0; barStart < totalFrames; barStart, barIdx = barStart+barFrames, barIdx+1 {
		bar := progression[barIdx%len(progression)]
		events = append(events,
			noteEvent{frame: barStart, ch: 2, on: true, n: bar.bass},
			noteEvent{frame: barStart, ch: 1, on: true, n: bar.chord[0]},
		)

		step := barFrames / arpSteps
		for i := 0; i < arpSteps; i++ {
			at := barStart + i*step
			n := bar.chord[arpOrder[i]]
			if leadDown {
				// Release the previous note so the next one retriggers
				events = append(events, noteEvent{frame: at, ch: 0, on: false, n: prevLead})
			}
			events = append(events, noteEvent{frame: at, ch: 0, on: true, n: n})
			prevLead = n
			leadDown = true
		}

		relAt := barStart + barFrames - step/2
		events = append(events,
			noteEvent{frame: relAt, ch: 2, on: false, n: bar.bass},
			noteEvent{frame: relAt, ch: 1, on: false, n: bar.chord[0]},
		)
	}
	return events
}

// queueNote enqueues the register writes for one note event. Note changes
// ride the buffered write path so they land spaced out during generation,
// the way a driver pacing the real chip's ports would deliver them.
func queueNote(chip *opl3.Chip, ev noteEvent) error {
	if !ev.on {
		return chip.WriteRegisterBuffered(uint16(0xB0+ev.ch), ev.n.block<<2|uint8(ev.n.fnum>>8))
	}
	if err := chip.WriteRegisterBuffered(uint16(0xA0+ev.ch), uint8(ev.n.fnum)); err != nil {
		return err
	}
	return chip.WriteRegisterBuffered(uint16(0xB0+ev.ch), 0x20|ev.n.block<<2|uint8(ev.n.fnum>>8))
}

// renderChunkFrames is the stream granularity: note events are queued
// between chunks, so it also bounds event timing jitter (~5ms).
const renderChunkFrames = 256

// renderTune renders the tune to interleaved stereo samples at the
// chip's native rate.
func renderTune(chip *opl3.Chip, seconds float64) ([]int16, error) {
	totalFrames := int(float64(opl3.NativeSampleRate) * seconds)
	events := tuneEvents(totalFrames)
	next := 0

	out := make([]int16, 0, totalFrames*2)
	buf := make([]int16, renderChunkFrames*2)
	for frame := 0; frame < totalFrames; frame += renderChunkFrames {
		for next < len(events) && events[next].frame <= frame {
			if err := queueNote(chip, events[next]); err != nil {
				return nil, err
			}
			next++
		}

		n := totalFrames - frame
		if n > renderChunkFrames {
			n = renderChunkFrames
		}
		chunk := buf[:n*2]
		if err := chip.GenerateStream(chunk); err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// playSamples pushes the rendered tune out through the speaker, pacing
// on the buffer level so the hand-off buffer never overflows.
func playSamples(samples []int16, volume float64) error {
	spk, err := openSpeaker(volume)
	if err != nil {
		return err
	}
	defer spk.close()

	// Keep about a quarter second queued ahead of the device
	const bytesPerSecond = opl3.NativeSampleRate * 4 // stereo 16-bit
	const targetBytes = bytesPerSecond / 4
	const chunk = 4096

	for off := 0; off < len(samples); {
		if spk.buffered() >= targetBytes {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		n := len(samples) - off
		if n > chunk {
			n = chunk
		}
		spk.play(samples[off : off+n])
		off += n
	}

	// Let the tail drain before tearing the device down
	for spk.buffered() > 0 {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	return nil
}

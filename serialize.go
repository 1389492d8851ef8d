package opl3

import (
	"encoding/binary"
	"errors"

	"github.com/user-none/go-chip-opl3/internal/ymf262"
)

// Serialized state layout, little endian:
//
//	version        1 byte
//	cooldown       4 bytes
//	queued writes  4 bytes (count)
//	engine         ymf262.SerializeSize bytes
//	queued writes  pendingWriteSize bytes each (register 2, value 1)
//
// The sample rate is not serialized: it describes the consumer, not the
// chip, so a snapshot restores into a chip created at any rate.
const (
	chipSerializeVersion    = 1
	chipSerializeHeaderSize = 1 + 4 + 4
	pendingWriteSize        = 3
)

// SerializeSize returns the buffer length Serialize needs right now. The
// size grows with the number of queued register writes.
func (c *Chip) SerializeSize() int {
	return chipSerializeHeaderSize + ymf262.SerializeSize + len(c.pending)*pendingWriteSize
}

// Serialize writes the full chip state, including queued register writes
// and their settle progress, into buf.
func (c *Chip) Serialize(buf []byte) error {
	if len(buf) < c.SerializeSize() {
		return errors.New("opl3: serialize buffer too small")
	}
	buf[0] = chipSerializeVersion
	binary.LittleEndian.PutUint32(buf[1:], c.cooldown)
	binary.LittleEndian.PutUint32(buf[5:], uint32(len(c.pending)))
	if err := c.engine.Serialize(buf[chipSerializeHeaderSize:]); err != nil {
		return err
	}
	off := chipSerializeHeaderSize + ymf262.SerializeSize
	for _, w := range c.pending {
		binary.LittleEndian.PutUint16(buf[off:], w.register)
		buf[off+2] = w.value
		off += pendingWriteSize
	}
	return nil
}

// Deserialize restores chip state from buf. The chip keeps the sample
// rate it was created with; everything else, queued writes included, is
// replaced. The chip is unchanged when an error is returned.
func (c *Chip) Deserialize(buf []byte) error {
	if len(buf) < chipSerializeHeaderSize+ymf262.SerializeSize {
		return errors.New("opl3: deserialize buffer too small")
	}
	if buf[0] != chipSerializeVersion {
		return errors.New("opl3: unsupported state version")
	}
	count := int(binary.LittleEndian.Uint32(buf[5:]))
	if len(buf) < chipSerializeHeaderSize+ymf262.SerializeSize+count*pendingWriteSize {
		return errors.New("opl3: deserialize buffer too small")
	}
	if err := c.engine.Deserialize(buf[chipSerializeHeaderSize:]); err != nil {
		return err
	}
	c.cooldown = binary.LittleEndian.Uint32(buf[1:])
	c.pending = c.pending[:0]
	off := chipSerializeHeaderSize + ymf262.SerializeSize
	for i := 0; i < count; i++ {
		c.pending = append(c.pending, registerWrite{
			register: binary.LittleEndian.Uint16(buf[off:]),
			value:    buf[off+2],
		})
		off += pendingWriteSize
	}
	return nil
}

package luksipc

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Chunk is a fixed-capacity buffer paired with the positioned-I/O helpers
// that are the only place in this package allowed to touch device file
// descriptors directly: a block-device framing generalized from a ring of
// fixed-size frames to the two alternating buffers the copy engine needs.
type Chunk struct {
	data     []byte
	capacity int
	used     int
}

// AllocChunk allocates a zeroed buffer of the given capacity.
func AllocChunk(capacity int) (*Chunk, error) {
	if capacity <= 0 {
		return nil, errors.Errorf("invalid chunk capacity %d", capacity)
	}
	return &Chunk{data: make([]byte, capacity), capacity: capacity}, nil
}

// Capacity returns the buffer's fixed allocation size.
func (c *Chunk) Capacity() int { return c.capacity }

// Used returns how many leading bytes of the buffer currently hold
// meaningful data.
func (c *Chunk) Used() int { return c.used }

// SetUsed clips the used length, e.g. for the last partial chunk of a
// device whose size isn't a multiple of the chunk size.
func (c *Chunk) SetUsed(n int) {
	if n < 0 {
		n = 0
	}
	if n > c.capacity {
		n = c.capacity
	}
	c.used = n
}

// Bytes returns the slice of the buffer currently considered used.
func (c *Chunk) Bytes() []byte { return c.data[:c.used] }

// Full returns the entire backing storage, including bytes beyond `used` —
// needed by the resume record, which persists the full chunk-size buffer
// regardless of how much of it is semantically meaningful.
func (c *Chunk) Full() []byte { return c.data }

// ReadAt seeks fd to offset and reads up to n bytes into the chunk,
// setting used to the number of bytes actually read. A short read (EOF
// near the end of a device) is not an error; the caller observes it via
// Used().
func (c *Chunk) ReadAt(fd *os.File, offset int64, n int) (int, error) {
	if n > c.capacity {
		return 0, errors.Errorf("requested read of %d bytes exceeds chunk capacity %d", n, c.capacity)
	}
	pos, err := fd.Seek(offset, io.SeekStart)
	if err != nil {
		return 0, errors.Wrapf(err, "seeking to offset %d", offset)
	}
	if pos != offset {
		return 0, errors.Errorf("seek landed at %d, expected %d", pos, offset)
	}
	read := 0
	for read < n {
		m, err := fd.Read(c.data[read:n])
		if m > 0 {
			read += m
		}
		if err != nil {
			if read > 0 {
				break
			}
			return 0, errors.Wrapf(err, "reading at offset %d", offset)
		}
		if m == 0 {
			break
		}
	}
	c.used = read
	return read, nil
}

// WriteAt seeks fd to offset and writes exactly `used` bytes. A short
// write comes back from os.File.Write with an error, which is returned
// wrapped together with the number of bytes written; the caller logs it
// and decides what to do.
func (c *Chunk) WriteAt(fd *os.File, offset int64) (int, error) {
	pos, err := fd.Seek(offset, io.SeekStart)
	if err != nil {
		return 0, errors.Wrapf(err, "seeking to offset %d", offset)
	}
	if pos != offset {
		return 0, errors.Errorf("seek landed at %d, expected %d", pos, offset)
	}
	n, err := fd.Write(c.data[:c.used])
	if err != nil {
		return n, errors.Wrapf(err, "writing at offset %d", offset)
	}
	return n, nil
}

// Free releases the buffer. Go's GC reclaims the storage; this exists so
// call sites read the same way as an explicit alloc/free pair and so a
// freed chunk can't be read from by accident.
func (c *Chunk) Free() {
	c.data = nil
	c.capacity = 0
	c.used = 0
}

package luksipc

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// resumeMagic is the literal 32-byte signature every resume record starts
// with, preserved byte-for-byte from upstream luksipc so a resume file
// written by an older release is still recognized (and a file from some
// other tool entirely is rejected outright).
var resumeMagic = [32]byte{
	'l', 'u', 'k', 's', 'i', 'p', 'c', ' ', 'R', 'E', 'S', 'U', 'M', 'E', ' ', 'v', '1', 0x00,
	0xde, 0xad, 0xbe, 0xef, ' ', '&', ' ', 0xc0, 0xff, 0xee, 0x00, 0x00, 0x00, 0x00,
}

// resumeFixedHeaderSize is the byte length of everything in the record
// before the variable-length active-buffer payload: magic + out_offset +
// read_dev_size + write_dev_size + reluksifying + active_used.
const resumeFixedHeaderSize = 32 + 8 + 8 + 8 + 1 + 4

// ResumeRecord is the on-disk resume header plus the full chunk-size
// buffer it was fsync'd alongside, laid out exactly per the core's fixed
// binary format so any two builds of this tool agree on it.
type ResumeRecord struct {
	OutOffset    uint64
	ReadDevSize  uint64
	WriteDevSize uint64
	Reluksifying bool
	ActiveUsed   uint32
	ActiveData   []byte // always chunk_size bytes
}

// WriteResumeRecord seeks fd to 0, writes the full fixed header plus the
// whole chunk buffer (not just ActiveUsed bytes — the record's on-disk
// size must never change once the resume file is opened), and fsyncs.
// Any failure anywhere in the sequence is reported so the caller can
// surface it as a resume-write failure.
func WriteResumeRecord(fd *os.File, rec *ResumeRecord) error {
	if _, err := fd.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "seeking resume file to 0")
	}

	buf := new(bytes.Buffer)
	buf.Grow(resumeFixedHeaderSize + len(rec.ActiveData))
	buf.Write(resumeMagic[:])
	_ = binary.Write(buf, binary.LittleEndian, rec.OutOffset)
	_ = binary.Write(buf, binary.LittleEndian, rec.ReadDevSize)
	_ = binary.Write(buf, binary.LittleEndian, rec.WriteDevSize)
	if rec.Reluksifying {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	_ = binary.Write(buf, binary.LittleEndian, rec.ActiveUsed)
	buf.Write(rec.ActiveData)

	if _, err := fd.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "writing resume record")
	}
	if err := unix.Fdatasync(int(fd.Fd())); err != nil {
		return errors.Wrap(err, "fsyncing resume file")
	}
	return nil
}

// readResumeHeader describes the portion of a resume record read before
// the safety-check comparisons happen, kept separate from ResumeRecord so
// callers can inspect orig_* values prior to deciding whether a mismatch
// is fatal.
type readResumeHeader struct {
	OutOffset    uint64
	ReadDevSize  uint64
	WriteDevSize uint64
	Reluksifying bool
	ActiveUsed   uint32
}

// ReadResumeRecord reads a resume file into chunk-size-sized ActiveData
// and validates the magic and the orig_* values against the current
// params/state. Size, write-device-size, and reluksifying mismatches are
// fatal unless safetyChecks is false, in which case they're logged via
// warn and execution continues with the on-disk values replaced by
// current reality.
func ReadResumeRecord(fd *os.File, chunkSize int, readDevSize, writeDevSize uint64, reluksifying bool, safetyChecks bool, warn func(string, ...interface{})) (*ResumeRecord, error) {
	if _, err := fd.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seeking resume file to 0")
	}

	header := make([]byte, resumeFixedHeaderSize)
	if _, err := io.ReadFull(fd, header); err != nil {
		return nil, errors.Wrap(err, "reading resume file header")
	}

	if !bytes.Equal(header[:32], resumeMagic[:]) {
		return nil, errors.New("resume file magic does not match; refusing to parse")
	}

	r := bytes.NewReader(header[32:])
	var h readResumeHeader
	var reluksByte byte
	_ = binary.Read(r, binary.LittleEndian, &h.OutOffset)
	_ = binary.Read(r, binary.LittleEndian, &h.ReadDevSize)
	_ = binary.Read(r, binary.LittleEndian, &h.WriteDevSize)
	_ = binary.Read(r, binary.LittleEndian, &reluksByte)
	h.Reluksifying = reluksByte != 0
	_ = binary.Read(r, binary.LittleEndian, &h.ActiveUsed)

	if h.ReadDevSize != readDevSize {
		if !safetyChecks {
			warn("resume file was written for a read device of size %d, current device is %d; continuing because safety checks are disabled", h.ReadDevSize, readDevSize)
		} else {
			return nil, errors.Errorf("resume file read-device size %d does not match current device size %d", h.ReadDevSize, readDevSize)
		}
	}
	if h.WriteDevSize != writeDevSize {
		if !safetyChecks {
			warn("resume file was written for a write device of size %d, current device is %d; continuing because safety checks are disabled", h.WriteDevSize, writeDevSize)
		} else {
			return nil, errors.Errorf("resume file write-device size %d does not match current device size %d", h.WriteDevSize, writeDevSize)
		}
	}
	if h.Reluksifying != reluksifying {
		if !safetyChecks {
			warn("resume file reLUKSification flag (%v) does not match current run (%v); continuing because safety checks are disabled", h.Reluksifying, reluksifying)
		} else {
			return nil, errors.Errorf("resume file reLUKSification flag %v does not match current run %v", h.Reluksifying, reluksifying)
		}
	}

	if int(h.ActiveUsed) > chunkSize {
		return nil, errors.Errorf("resume file active_used %d exceeds chunk size %d", h.ActiveUsed, chunkSize)
	}

	data := make([]byte, chunkSize)
	if _, err := io.ReadFull(fd, data); err != nil {
		return nil, errors.Wrap(err, "reading resume file buffer")
	}

	return &ResumeRecord{
		OutOffset:    h.OutOffset,
		ReadDevSize:  readDevSize,
		WriteDevSize: writeDevSize,
		Reluksifying: reluksifying,
		ActiveUsed:   h.ActiveUsed,
		ActiveData:   data,
	}, nil
}

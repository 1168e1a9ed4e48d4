package dex

import (
	"encoding/binary"

	"github.com/dexcount/internal/parser"
)

// Reader is a bounds-checked little-endian cursor over an in-memory DEX image.
// DEX tables are addressed by absolute offsets, so the whole file is held in
// memory and the reader seeks rather than streams.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a Reader positioned at offset 0.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Len returns the size of the underlying image.
func (r *Reader) Len() int {
	return len(r.data)
}

// Pos returns the current offset.
func (r *Reader) Pos() int {
	return r.pos
}

// Seek moves the cursor to an absolute offset.
func (r *Reader) Seek(off uint32) error {
	if int64(off) > int64(len(r.data)) {
		return r.fail("seek", parser.ErrTruncated)
	}
	r.pos = int(off)
	return nil
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, r.fail("byte", parser.ErrTruncated)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes returns the next n bytes without copying.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, r.fail("bytes", parser.ErrTruncated)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadUint16 reads a little-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32 reads a little-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadULEB128 reads an unsigned LEB128 value of at most five bytes. Values
// that do not fit in 32 bits are rejected.
func (r *Reader) ReadULEB128() (uint32, error) {
	var result uint32
	for i := 0; i < 5; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		// the fifth byte carries bits 28-31 only
		if i == 4 && b&0xf0 != 0 {
			return 0, r.fail("uleb128", parser.ErrInvalidString)
		}
		result |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return result, nil
		}
	}
	return 0, r.fail("uleb128", parser.ErrInvalidString)
}

// ReadCString returns the bytes up to, not including, the next NUL and
// advances past the terminator.
func (r *Reader) ReadCString() ([]byte, error) {
	start := r.pos
	for i := start; i < len(r.data); i++ {
		if r.data[i] == 0 {
			r.pos = i + 1
			return r.data[start:i], nil
		}
	}
	return nil, r.fail("string data", parser.ErrTruncated)
}

// checkTable verifies that count entries of size bytes starting at off lie
// within the image.
func (r *Reader) checkTable(name string, off, count uint32, size int) error {
	if count == 0 {
		return nil
	}
	end := int64(off) + int64(count)*int64(size)
	if end > int64(len(r.data)) {
		return parser.NewFormatError("dex", int64(off), name, parser.ErrTruncated)
	}
	return nil
}

func (r *Reader) fail(what string, err error) error {
	return parser.NewFormatError("dex", int64(r.pos), what, err)
}

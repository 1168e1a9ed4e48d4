package classfile

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/dexcount/internal/parser"
)

// Reader provides buffered big-endian reads of class file data and tracks the
// current offset for error reporting.
type Reader struct {
	r       *bufio.Reader
	off     int64
	byteBuf []byte
}

// NewReader creates a new class file reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:       bufio.NewReaderSize(r, 16*1024),
		byteBuf: make([]byte, 8),
	}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 {
	return r.off
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, r.wrap(err)
	}
	r.off++
	return b, nil
}

// ReadBytes reads n bytes into a new slice.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, r.wrap(err)
	}
	r.off += int64(n)
	return buf, nil
}

// ReadUint16 reads a big-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	if _, err := io.ReadFull(r.r, r.byteBuf[:2]); err != nil {
		return 0, r.wrap(err)
	}
	r.off += 2
	return binary.BigEndian.Uint16(r.byteBuf[:2]), nil
}

// ReadUint32 reads a big-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	if _, err := io.ReadFull(r.r, r.byteBuf[:4]); err != nil {
		return 0, r.wrap(err)
	}
	r.off += 4
	return binary.BigEndian.Uint32(r.byteBuf[:4]), nil
}

// Skip skips n bytes.
func (r *Reader) Skip(n int64) error {
	d, err := r.r.Discard(int(n))
	r.off += int64(d)
	if err != nil {
		return r.wrap(err)
	}
	return nil
}

func (r *Reader) wrap(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = parser.ErrTruncated
	}
	return parser.NewFormatError("classfile", r.off, "", err)
}

package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when a structure extends past the end of the input.
	ErrTruncated = errors.New("unexpected end of data")

	// ErrInvalidMagic is returned when the file does not start with the expected magic bytes.
	ErrInvalidMagic = errors.New("invalid magic bytes")

	// ErrIndexOutOfRange is returned when a table index points outside its table.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrUnsupportedFormat is returned for well-formed input we do not handle,
	// e.g. a big-endian DEX or an unknown constant pool tag.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrInvalidString is returned when string data cannot be decoded.
	ErrInvalidString = errors.New("invalid string data")
)

// FormatError describes malformed binary input. Format names the container
// ("dex", "classfile"), Offset is the byte position the reader was at.
type FormatError struct {
	Format string
	Offset int64
	What   string
	Err    error
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	if e.What == "" {
		return fmt.Sprintf("%s: %v at offset 0x%x", e.Format, e.Err, e.Offset)
	}
	return fmt.Sprintf("%s: %s: %v at offset 0x%x", e.Format, e.What, e.Err, e.Offset)
}

// Unwrap returns the underlying sentinel.
func (e *FormatError) Unwrap() error {
	return e.Err
}

// NewFormatError creates a FormatError.
func NewFormatError(format string, offset int64, what string, err error) *FormatError {
	return &FormatError{Format: format, Offset: offset, What: what, Err: err}
}

// IsFormatError reports whether err is, or wraps, a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

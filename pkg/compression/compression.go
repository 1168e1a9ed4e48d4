// Package compression wraps the codecs used for persisted package trees.
package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Type identifies a compression algorithm. The numeric value is written into
// file headers and must stay stable.
type Type uint8

const (
	TypeGzip Type = 0
	TypeZstd Type = 1
	TypeNone Type = 255
)

// String returns the config name of the type.
func (t Type) String() string {
	switch t {
	case TypeGzip:
		return "gzip"
	case TypeZstd:
		return "zstd"
	case TypeNone:
		return "none"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Valid reports whether t names a supported codec.
func (t Type) Valid() bool {
	return t == TypeGzip || t == TypeZstd || t == TypeNone
}

// ParseType parses a config value such as "zstd". An empty string selects zstd.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zstd":
		return TypeZstd, nil
	case "gzip", "gz":
		return TypeGzip, nil
	case "none", "off":
		return TypeNone, nil
	default:
		return 0, fmt.Errorf("unknown compression type %q", s)
	}
}

// Level trades speed for ratio.
type Level int

const (
	LevelFastest Level = 1
	LevelDefault Level = 3
	LevelBest    Level = 9
)

// Codec compresses and decompresses whole buffers.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Type() Type
}

// New returns a codec for t.
func New(t Type, level Level) (Codec, error) {
	switch t {
	case TypeZstd:
		return newZstd(level)
	case TypeGzip:
		return newGzip(level), nil
	case TypeNone:
		return noneCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown compression type: %d", t)
	}
}

type gzipCodec struct {
	level int
}

func newGzip(level Level) gzipCodec {
	switch level {
	case LevelFastest:
		return gzipCodec{level: gzip.BestSpeed}
	case LevelBest:
		return gzipCodec{level: gzip.BestCompression}
	default:
		return gzipCodec{level: gzip.DefaultCompression}
	}
}

func (c gzipCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write gzip data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (c gzipCodec) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (c gzipCodec) Type() Type { return TypeGzip }

type zstdCodec struct {
	level zstd.EncoderLevel
}

func newZstd(level Level) (zstdCodec, error) {
	switch level {
	case LevelFastest:
		return zstdCodec{level: zstd.SpeedFastest}, nil
	case LevelBest:
		return zstdCodec{level: zstd.SpeedBestCompression}, nil
	default:
		return zstdCodec{level: zstd.SpeedDefault}, nil
	}
}

func (c zstdCodec) Compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(c.level))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func (c zstdCodec) Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

func (c zstdCodec) Type() Type { return TypeZstd }

type noneCodec struct{}

func (noneCodec) Compress(data []byte) ([]byte, error)   { return data, nil }
func (noneCodec) Decompress(data []byte) ([]byte, error) { return data, nil }
func (noneCodec) Type() Type                             { return TypeNone }

// DetectType sniffs the codec from magic bytes. Unrecognized data is
// reported as TypeNone.
func DetectType(data []byte) Type {
	if len(data) >= 4 && data[0] == 0x28 && data[1] == 0xb5 && data[2] == 0x2f && data[3] == 0xfd {
		return TypeZstd
	}
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		return TypeGzip
	}
	return TypeNone
}

// Decompress decodes data with the codec named by t.
func Decompress(t Type, data []byte) ([]byte, error) {
	c, err := New(t, LevelDefault)
	if err != nil {
		return nil, err
	}
	return c.Decompress(data)
}

package dex

import (
	"bytes"

	"github.com/dexcount/internal/parser"
)

const (
	// HeaderSize is the size of the fixed DEX header.
	HeaderSize = 0x70

	endianConstant        = 0x12345678
	reverseEndianConstant = 0x78563412

	stringIDSize = 4
	typeIDSize   = 4
	protoIDSize  = 12
	fieldIDSize  = 8
	methodIDSize = 8
	classDefSize = 32
)

// Magic is the version-independent prefix of every DEX file.
var Magic = []byte("dex\n")

// Header is the fixed-size DEX file header.
type Header struct {
	Version       string
	Checksum      uint32
	Signature     [20]byte
	FileSize      uint32
	HeaderSize    uint32
	EndianTag     uint32
	LinkSize      uint32
	LinkOff       uint32
	MapOff        uint32
	StringIDsSize uint32
	StringIDsOff  uint32
	TypeIDsSize   uint32
	TypeIDsOff    uint32
	ProtoIDsSize  uint32
	ProtoIDsOff   uint32
	FieldIDsSize  uint32
	FieldIDsOff   uint32
	MethodIDsSize uint32
	MethodIDsOff  uint32
	ClassDefsSize uint32
	ClassDefsOff  uint32
	DataSize      uint32
	DataOff       uint32
}

// HasMagic reports whether b starts with the DEX magic.
func HasMagic(b []byte) bool {
	return bytes.HasPrefix(b, Magic)
}

// ReadHeader reads and validates the header at the start of the image.
func ReadHeader(r *Reader) (*Header, error) {
	if err := r.Seek(0); err != nil {
		return nil, err
	}
	magic, err := r.ReadBytes(8)
	if err != nil {
		return nil, err
	}
	if !HasMagic(magic) || magic[7] != 0 {
		return nil, parser.NewFormatError("dex", 0, "header", parser.ErrInvalidMagic)
	}

	h := &Header{Version: string(magic[4:7])}

	if h.Checksum, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	sig, err := r.ReadBytes(20)
	if err != nil {
		return nil, err
	}
	copy(h.Signature[:], sig)

	fields := []*uint32{
		&h.FileSize, &h.HeaderSize, &h.EndianTag,
		&h.LinkSize, &h.LinkOff, &h.MapOff,
		&h.StringIDsSize, &h.StringIDsOff,
		&h.TypeIDsSize, &h.TypeIDsOff,
		&h.ProtoIDsSize, &h.ProtoIDsOff,
		&h.FieldIDsSize, &h.FieldIDsOff,
		&h.MethodIDsSize, &h.MethodIDsOff,
		&h.ClassDefsSize, &h.ClassDefsOff,
		&h.DataSize, &h.DataOff,
	}
	for _, f := range fields {
		if *f, err = r.ReadUint32(); err != nil {
			return nil, err
		}
	}

	switch h.EndianTag {
	case endianConstant:
	case reverseEndianConstant:
		return nil, parser.NewFormatError("dex", 40, "big-endian dex", parser.ErrUnsupportedFormat)
	default:
		return nil, parser.NewFormatError("dex", 40, "endian tag", parser.ErrInvalidMagic)
	}

	if h.HeaderSize < HeaderSize {
		return nil, parser.NewFormatError("dex", 36, "header size", parser.ErrTruncated)
	}

	tables := []struct {
		name  string
		off   uint32
		count uint32
		size  int
	}{
		{"string_ids", h.StringIDsOff, h.StringIDsSize, stringIDSize},
		{"type_ids", h.TypeIDsOff, h.TypeIDsSize, typeIDSize},
		{"proto_ids", h.ProtoIDsOff, h.ProtoIDsSize, protoIDSize},
		{"field_ids", h.FieldIDsOff, h.FieldIDsSize, fieldIDSize},
		{"method_ids", h.MethodIDsOff, h.MethodIDsSize, methodIDSize},
		{"class_defs", h.ClassDefsOff, h.ClassDefsSize, classDefSize},
	}
	for _, t := range tables {
		if err := r.checkTable(t.name, t.off, t.count, t.size); err != nil {
			return nil, err
		}
	}

	return h, nil
}

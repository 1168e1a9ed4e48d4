package testutil

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"
)

// DexBuilder assembles minimal but well-formed DEX images for tests. Only the
// tables the reference reader touches are populated.
type DexBuilder struct {
	strings  []string
	strIndex map[string]int
	types    []int
	typIndex map[string]int
	protos   []dexProto
	fields   [][3]int // class type, field type, name string
	methods  [][3]int // class type, proto, name string
}

type dexProto struct {
	ret    int
	params []int
}

// NewDexBuilder creates an empty builder.
func NewDexBuilder() *DexBuilder {
	return &DexBuilder{
		strIndex: make(map[string]int),
		typIndex: make(map[string]int),
	}
}

func (b *DexBuilder) str(s string) int {
	if i, ok := b.strIndex[s]; ok {
		return i
	}
	b.strings = append(b.strings, s)
	b.strIndex[s] = len(b.strings) - 1
	return len(b.strings) - 1
}

func (b *DexBuilder) typ(desc string) int {
	if i, ok := b.typIndex[desc]; ok {
		return i
	}
	b.types = append(b.types, b.str(desc))
	b.typIndex[desc] = len(b.types) - 1
	return len(b.types) - 1
}

// Method adds a method_ids entry.
func (b *DexBuilder) Method(class, name, ret string, params ...string) *DexBuilder {
	p := dexProto{ret: b.typ(ret)}
	for _, param := range params {
		p.params = append(p.params, b.typ(param))
	}
	b.protos = append(b.protos, p)
	b.methods = append(b.methods, [3]int{b.typ(class), len(b.protos) - 1, b.str(name)})
	return b
}

// Field adds a field_ids entry.
func (b *DexBuilder) Field(class, name, typ string) *DexBuilder {
	b.fields = append(b.fields, [3]int{b.typ(class), b.typ(typ), b.str(name)})
	return b
}

// Build serializes the image.
func (b *DexBuilder) Build() []byte {
	const headerSize = 0x70
	le := binary.LittleEndian

	off := uint32(headerSize)
	stringIDsOff := off
	off += uint32(4 * len(b.strings))
	typeIDsOff := off
	off += uint32(4 * len(b.types))
	protoIDsOff := off
	off += uint32(12 * len(b.protos))
	fieldIDsOff := off
	off += uint32(8 * len(b.fields))
	methodIDsOff := off
	off += uint32(8 * len(b.methods))
	dataOff := off

	var data bytes.Buffer
	align := func() {
		for data.Len()%4 != 0 {
			data.WriteByte(0)
		}
	}

	paramOffs := make([]uint32, len(b.protos))
	for i, p := range b.protos {
		if len(p.params) == 0 {
			continue
		}
		align()
		paramOffs[i] = dataOff + uint32(data.Len())
		_ = binary.Write(&data, le, uint32(len(p.params)))
		for _, t := range p.params {
			_ = binary.Write(&data, le, uint16(t))
		}
	}

	strOffs := make([]uint32, len(b.strings))
	for i, s := range b.strings {
		strOffs[i] = dataOff + uint32(data.Len())
		data.Write(uleb128(uint32(len(utf16.Encode([]rune(s))))))
		data.Write(EncodeMUTF8(s))
		data.WriteByte(0)
	}
	align()

	var out bytes.Buffer
	out.WriteString("dex\n035\x00")
	_ = binary.Write(&out, le, uint32(0))  // checksum
	out.Write(make([]byte, 20))            // signature
	fileSize := dataOff + uint32(data.Len())
	pairs := []uint32{
		fileSize, headerSize, 0x12345678,
		0, 0, 0, // link, map
		uint32(len(b.strings)), offOrZero(len(b.strings), stringIDsOff),
		uint32(len(b.types)), offOrZero(len(b.types), typeIDsOff),
		uint32(len(b.protos)), offOrZero(len(b.protos), protoIDsOff),
		uint32(len(b.fields)), offOrZero(len(b.fields), fieldIDsOff),
		uint32(len(b.methods)), offOrZero(len(b.methods), methodIDsOff),
		0, 0, // class defs
		uint32(data.Len()), dataOff,
	}
	for _, v := range pairs {
		_ = binary.Write(&out, le, v)
	}

	for _, o := range strOffs {
		_ = binary.Write(&out, le, o)
	}
	for _, s := range b.types {
		_ = binary.Write(&out, le, uint32(s))
	}
	for i, p := range b.protos {
		_ = binary.Write(&out, le, uint32(0)) // shorty, unused by the reader
		_ = binary.Write(&out, le, uint32(p.ret))
		_ = binary.Write(&out, le, paramOffs[i])
	}
	for _, f := range b.fields {
		_ = binary.Write(&out, le, uint16(f[0]))
		_ = binary.Write(&out, le, uint16(f[1]))
		_ = binary.Write(&out, le, uint32(f[2]))
	}
	for _, m := range b.methods {
		_ = binary.Write(&out, le, uint16(m[0]))
		_ = binary.Write(&out, le, uint16(m[1]))
		_ = binary.Write(&out, le, uint32(m[2]))
	}
	out.Write(data.Bytes())
	return out.Bytes()
}

func offOrZero(n int, off uint32) uint32 {
	if n == 0 {
		return 0
	}
	return off
}

func uleb128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

// EncodeMUTF8 encodes s the way DEX and classfiles store strings.
func EncodeMUTF8(s string) []byte {
	var out []byte
	for _, u := range utf16.Encode([]rune(s)) {
		switch {
		case u != 0 && u < 0x80:
			out = append(out, byte(u))
		case u < 0x800:
			out = append(out, byte(0xc0|u>>6), byte(0x80|u&0x3f))
		default:
			out = append(out, byte(0xe0|u>>12), byte(0x80|(u>>6)&0x3f), byte(0x80|u&0x3f))
		}
	}
	return out
}

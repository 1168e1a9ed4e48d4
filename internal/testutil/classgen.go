package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
)

// ClassMember describes a field or method for ClassBuilder.
type ClassMember struct {
	Access     uint16
	Name       string
	Descriptor string
}

// ClassBuilder assembles minimal class files for tests.
type ClassBuilder struct {
	name    string
	super   string
	fields  []ClassMember
	methods []ClassMember

	pool    bytes.Buffer
	count   uint16
	utf8Idx map[string]uint16
	clsIdx  map[string]uint16
}

// NewClassBuilder starts a class with the given internal name, e.g. "com/foo/Bar".
func NewClassBuilder(name string) *ClassBuilder {
	return &ClassBuilder{
		name:    name,
		super:   "java/lang/Object",
		count:   1,
		utf8Idx: make(map[string]uint16),
		clsIdx:  make(map[string]uint16),
	}
}

// Field adds a declared field.
func (b *ClassBuilder) Field(access uint16, name, desc string) *ClassBuilder {
	b.fields = append(b.fields, ClassMember{access, name, desc})
	return b
}

// Method adds a declared method.
func (b *ClassBuilder) Method(access uint16, name, desc string) *ClassBuilder {
	b.methods = append(b.methods, ClassMember{access, name, desc})
	return b
}

func (b *ClassBuilder) utf8(s string) uint16 {
	if i, ok := b.utf8Idx[s]; ok {
		return i
	}
	enc := EncodeMUTF8(s)
	b.pool.WriteByte(1)
	_ = binary.Write(&b.pool, binary.BigEndian, uint16(len(enc)))
	b.pool.Write(enc)
	b.utf8Idx[s] = b.count
	b.count++
	return b.count - 1
}

func (b *ClassBuilder) class(name string) uint16 {
	if i, ok := b.clsIdx[name]; ok {
		return i
	}
	nameIdx := b.utf8(name)
	b.pool.WriteByte(7)
	_ = binary.Write(&b.pool, binary.BigEndian, nameIdx)
	b.clsIdx[name] = b.count
	b.count++
	return b.count - 1
}

// Build serializes the class file. A long constant and a string constant are
// always included so readers exercise slot skipping.
func (b *ClassBuilder) Build() []byte {
	be := binary.BigEndian
	this := b.class(b.name)
	super := b.class(b.super)

	b.pool.WriteByte(5) // CONSTANT_Long takes two slots
	_ = binary.Write(&b.pool, be, uint64(42))
	b.count += 2
	str := b.utf8("constant")
	b.pool.WriteByte(8)
	_ = binary.Write(&b.pool, be, str)
	b.count++

	type encMember struct{ access, name, desc uint16 }
	encode := func(ms []ClassMember) []encMember {
		out := make([]encMember, len(ms))
		for i, m := range ms {
			out[i] = encMember{m.Access, b.utf8(m.Name), b.utf8(m.Descriptor)}
		}
		return out
	}
	fields := encode(b.fields)
	methods := encode(b.methods)
	codeAttr := b.utf8("Code")

	var out bytes.Buffer
	_ = binary.Write(&out, be, uint32(0xCAFEBABE))
	_ = binary.Write(&out, be, uint16(0))  // minor
	_ = binary.Write(&out, be, uint16(52)) // major, Java 8
	_ = binary.Write(&out, be, b.count)
	out.Write(b.pool.Bytes())
	_ = binary.Write(&out, be, uint16(0x0021)) // public super
	_ = binary.Write(&out, be, this)
	_ = binary.Write(&out, be, super)
	_ = binary.Write(&out, be, uint16(0)) // interfaces

	writeMembers := func(ms []encMember, withCode bool) {
		_ = binary.Write(&out, be, uint16(len(ms)))
		for _, m := range ms {
			_ = binary.Write(&out, be, m.access)
			_ = binary.Write(&out, be, m.name)
			_ = binary.Write(&out, be, m.desc)
			if !withCode {
				_ = binary.Write(&out, be, uint16(0))
				continue
			}
			// one opaque attribute so the reader has something to skip
			_ = binary.Write(&out, be, uint16(1))
			_ = binary.Write(&out, be, codeAttr)
			_ = binary.Write(&out, be, uint32(3))
			out.Write([]byte{0xb1, 0x00, 0x00})
		}
	}
	writeMembers(fields, false)
	writeMembers(methods, true)
	_ = binary.Write(&out, be, uint16(0)) // class attributes
	return out.Bytes()
}

// ZipEntry is one file inside a test archive.
type ZipEntry struct {
	Name string
	Data []byte
}

// BuildZip creates an in-memory zip archive (APK, AAR or JAR).
func BuildZip(entries ...ZipEntry) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write(e.Data); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

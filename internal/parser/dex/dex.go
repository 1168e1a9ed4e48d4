// Package dex reads the method and field reference tables of an Android DEX
// file.
package dex

import (
	"fmt"
	"os"

	"github.com/dexcount/internal/parser"
	"github.com/dexcount/pkg/model"
)

// File is a parsed DEX image. Strings are decoded lazily and cached.
type File struct {
	Header *Header

	r       *Reader
	strings []string
	decoded []bool
}

// Open reads and parses the DEX file at path.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses an in-memory DEX image.
func Parse(data []byte) (*File, error) {
	r := NewReader(data)
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	return &File{
		Header:  h,
		r:       r,
		strings: make([]string, h.StringIDsSize),
		decoded: make([]bool, h.StringIDsSize),
	}, nil
}

// String resolves a string_ids index.
func (f *File) String(idx uint32) (string, error) {
	if idx >= f.Header.StringIDsSize {
		return "", f.outOfRange("string_ids", idx)
	}
	if f.decoded[idx] {
		return f.strings[idx], nil
	}

	if err := f.r.Seek(f.Header.StringIDsOff + idx*stringIDSize); err != nil {
		return "", err
	}
	dataOff, err := f.r.ReadUint32()
	if err != nil {
		return "", err
	}
	if err := f.r.Seek(dataOff); err != nil {
		return "", err
	}
	utf16Len, err := f.r.ReadULEB128()
	if err != nil {
		return "", err
	}
	raw, err := f.r.ReadCString()
	if err != nil {
		return "", err
	}
	s, err := decodeMUTF8(raw, utf16Len)
	if err != nil {
		return "", parser.NewFormatError("dex", int64(dataOff), fmt.Sprintf("string %d", idx), err)
	}

	f.strings[idx] = s
	f.decoded[idx] = true
	return s, nil
}

// TypeDescriptor resolves a type_ids index to its descriptor string.
func (f *File) TypeDescriptor(idx uint32) (string, error) {
	if idx >= f.Header.TypeIDsSize {
		return "", f.outOfRange("type_ids", idx)
	}
	if err := f.r.Seek(f.Header.TypeIDsOff + idx*typeIDSize); err != nil {
		return "", err
	}
	descIdx, err := f.r.ReadUint32()
	if err != nil {
		return "", err
	}
	return f.String(descIdx)
}

// Proto is a resolved method prototype.
type Proto struct {
	ReturnType string
	Params     []string
}

// Proto resolves a proto_ids index.
func (f *File) Proto(idx uint32) (*Proto, error) {
	if idx >= f.Header.ProtoIDsSize {
		return nil, f.outOfRange("proto_ids", idx)
	}
	if err := f.r.Seek(f.Header.ProtoIDsOff + idx*protoIDSize); err != nil {
		return nil, err
	}
	if _, err := f.r.ReadUint32(); err != nil { // shorty_idx
		return nil, err
	}
	returnIdx, err := f.r.ReadUint32()
	if err != nil {
		return nil, err
	}
	paramsOff, err := f.r.ReadUint32()
	if err != nil {
		return nil, err
	}

	var typeIdxs []uint16
	if paramsOff != 0 {
		if err := f.r.Seek(paramsOff); err != nil {
			return nil, err
		}
		size, err := f.r.ReadUint32()
		if err != nil {
			return nil, err
		}
		if err := f.r.checkTable("type_list", paramsOff+4, size, 2); err != nil {
			return nil, err
		}
		typeIdxs = make([]uint16, size)
		for i := range typeIdxs {
			if typeIdxs[i], err = f.r.ReadUint16(); err != nil {
				return nil, err
			}
		}
	}

	p := &Proto{Params: make([]string, len(typeIdxs))}
	if p.ReturnType, err = f.TypeDescriptor(returnIdx); err != nil {
		return nil, err
	}
	for i, t := range typeIdxs {
		if p.Params[i], err = f.TypeDescriptor(uint32(t)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// MethodRefs returns one MethodRef per entry of the method_ids table.
func (f *File) MethodRefs() ([]model.MethodRef, error) {
	h := f.Header
	refs := make([]model.MethodRef, 0, h.MethodIDsSize)
	for i := uint32(0); i < h.MethodIDsSize; i++ {
		if err := f.r.Seek(h.MethodIDsOff + i*methodIDSize); err != nil {
			return nil, err
		}
		classIdx, err := f.r.ReadUint16()
		if err != nil {
			return nil, err
		}
		protoIdx, err := f.r.ReadUint16()
		if err != nil {
			return nil, err
		}
		nameIdx, err := f.r.ReadUint32()
		if err != nil {
			return nil, err
		}

		class, err := f.TypeDescriptor(uint32(classIdx))
		if err != nil {
			return nil, err
		}
		proto, err := f.Proto(uint32(protoIdx))
		if err != nil {
			return nil, err
		}
		name, err := f.String(nameIdx)
		if err != nil {
			return nil, err
		}
		refs = append(refs, model.NewMethodRef(class, name, proto.Params, proto.ReturnType))
	}
	return refs, nil
}

// FieldRefs returns one FieldRef per entry of the field_ids table.
func (f *File) FieldRefs() ([]model.FieldRef, error) {
	h := f.Header
	refs := make([]model.FieldRef, 0, h.FieldIDsSize)
	for i := uint32(0); i < h.FieldIDsSize; i++ {
		if err := f.r.Seek(h.FieldIDsOff + i*fieldIDSize); err != nil {
			return nil, err
		}
		classIdx, err := f.r.ReadUint16()
		if err != nil {
			return nil, err
		}
		typeIdx, err := f.r.ReadUint16()
		if err != nil {
			return nil, err
		}
		nameIdx, err := f.r.ReadUint32()
		if err != nil {
			return nil, err
		}

		class, err := f.TypeDescriptor(uint32(classIdx))
		if err != nil {
			return nil, err
		}
		typ, err := f.TypeDescriptor(uint32(typeIdx))
		if err != nil {
			return nil, err
		}
		name, err := f.String(nameIdx)
		if err != nil {
			return nil, err
		}
		refs = append(refs, model.FieldRef{DeclClass: class, Name: name, Type: typ})
	}
	return refs, nil
}

// Refs reads both reference tables.
func (f *File) Refs() (parser.Refs, error) {
	methods, err := f.MethodRefs()
	if err != nil {
		return parser.Refs{}, err
	}
	fields, err := f.FieldRefs()
	if err != nil {
		return parser.Refs{}, err
	}
	return parser.Refs{Methods: methods, Fields: fields}, nil
}

func (f *File) outOfRange(table string, idx uint32) error {
	return parser.NewFormatError("dex", int64(f.r.Pos()), fmt.Sprintf("%s[%d]", table, idx), parser.ErrIndexOutOfRange)
}

package classfile

import (
	"fmt"

	"github.com/dexcount/internal/parser"
)

// Constant pool tags.
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
	TagModule             = 19
	TagPackage            = 20
)

type constant struct {
	tag   byte
	utf8  string
	index uint16 // TagClass name index
}

// ConstantPool holds the entries a declared-member reader needs: UTF-8
// strings and class entries. Other entries are skipped but keep their slot.
type ConstantPool struct {
	entries []constant
}

func readConstantPool(r *Reader) (*ConstantPool, error) {
	count, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}

	cp := &ConstantPool{entries: make([]constant, count)}
	for i := 1; i < int(count); i++ {
		tag, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		c := constant{tag: tag}

		switch tag {
		case TagUtf8:
			n, err := r.ReadUint16()
			if err != nil {
				return nil, err
			}
			b, err := r.ReadBytes(int(n))
			if err != nil {
				return nil, err
			}
			if c.utf8, err = decodeModifiedUTF8(b); err != nil {
				return nil, parser.NewFormatError("classfile", r.Offset(), fmt.Sprintf("constant %d", i), err)
			}
		case TagClass:
			if c.index, err = r.ReadUint16(); err != nil {
				return nil, err
			}
		case TagString, TagMethodType, TagModule, TagPackage:
			err = r.Skip(2)
		case TagMethodHandle:
			err = r.Skip(3)
		case TagInteger, TagFloat, TagFieldref, TagMethodref, TagInterfaceMethodref,
			TagNameAndType, TagDynamic, TagInvokeDynamic:
			err = r.Skip(4)
		case TagLong, TagDouble:
			err = r.Skip(8)
		default:
			return nil, parser.NewFormatError("classfile", r.Offset(), fmt.Sprintf("constant tag %d", tag), parser.ErrUnsupportedFormat)
		}
		if err != nil {
			return nil, err
		}

		cp.entries[i] = c
		if tag == TagLong || tag == TagDouble {
			i++
		}
	}
	return cp, nil
}

// UTF8 resolves a CONSTANT_Utf8 entry.
func (cp *ConstantPool) UTF8(idx uint16) (string, error) {
	if int(idx) == 0 || int(idx) >= len(cp.entries) || cp.entries[idx].tag != TagUtf8 {
		return "", parser.NewFormatError("classfile", 0, fmt.Sprintf("utf8 constant %d", idx), parser.ErrIndexOutOfRange)
	}
	return cp.entries[idx].utf8, nil
}

// ClassName resolves a CONSTANT_Class entry to its internal name.
func (cp *ConstantPool) ClassName(idx uint16) (string, error) {
	if int(idx) == 0 || int(idx) >= len(cp.entries) || cp.entries[idx].tag != TagClass {
		return "", parser.NewFormatError("classfile", 0, fmt.Sprintf("class constant %d", idx), parser.ErrIndexOutOfRange)
	}
	return cp.UTF8(cp.entries[idx].index)
}

// decodeModifiedUTF8 decodes classfile modified UTF-8. It shares the DEX
// string encoding apart from the length prefix.
func decodeModifiedUTF8(b []byte) (string, error) {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xe0 == 0xc0 && i+1 < len(b):
			units = append(units, uint16(c&0x1f)<<6|uint16(b[i+1]&0x3f))
			i += 2
		case c&0xf0 == 0xe0 && i+2 < len(b):
			units = append(units, uint16(c&0x0f)<<12|uint16(b[i+1]&0x3f)<<6|uint16(b[i+2]&0x3f))
			i += 3
		default:
			return "", parser.ErrInvalidString
		}
	}
	return utf16String(units), nil
}

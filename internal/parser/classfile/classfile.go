// Package classfile reads the declared members of compiled Java class files.
//
// Only the structures needed to enumerate fields and methods are decoded:
// the constant pool, the class header and member tables. Attribute bodies
// and bytecode are skipped.
package classfile

import (
	"io"
	"strings"
	"unicode/utf16"

	"github.com/dexcount/internal/parser"
	"github.com/dexcount/pkg/model"
)

// Magic is the class file signature.
const Magic = 0xCAFEBABE

// Access flags relevant to member selection.
const (
	AccStatic    = 0x0008
	AccBridge    = 0x0040
	AccSynthetic = 0x1000
)

// Member is a declared field or method.
type Member struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
}

// IsSynthetic reports whether the compiler generated the member.
func (m Member) IsSynthetic() bool {
	return m.AccessFlags&AccSynthetic != 0
}

// IsBridge reports whether the member is a bridge method.
func (m Member) IsBridge() bool {
	return m.AccessFlags&AccBridge != 0
}

// Class is a parsed class file.
type Class struct {
	MajorVersion uint16
	AccessFlags  uint16
	Name         string // internal form, e.g. "com/foo/Bar"
	SuperName    string
	Fields       []Member
	Methods      []Member
}

// Parse reads a class file from r.
func Parse(r io.Reader) (*Class, error) {
	cr := NewReader(r)

	magic, err := cr.ReadUint32()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, parser.NewFormatError("classfile", 0, "header", parser.ErrInvalidMagic)
	}

	if _, err := cr.ReadUint16(); err != nil { // minor
		return nil, err
	}
	c := &Class{}
	if c.MajorVersion, err = cr.ReadUint16(); err != nil {
		return nil, err
	}

	cp, err := readConstantPool(cr)
	if err != nil {
		return nil, err
	}

	if c.AccessFlags, err = cr.ReadUint16(); err != nil {
		return nil, err
	}
	thisIdx, err := cr.ReadUint16()
	if err != nil {
		return nil, err
	}
	if c.Name, err = cp.ClassName(thisIdx); err != nil {
		return nil, err
	}
	superIdx, err := cr.ReadUint16()
	if err != nil {
		return nil, err
	}
	if superIdx != 0 {
		if c.SuperName, err = cp.ClassName(superIdx); err != nil {
			return nil, err
		}
	}

	interfaces, err := cr.ReadUint16()
	if err != nil {
		return nil, err
	}
	if err := cr.Skip(int64(interfaces) * 2); err != nil {
		return nil, err
	}

	if c.Fields, err = readMembers(cr, cp); err != nil {
		return nil, err
	}
	if c.Methods, err = readMembers(cr, cp); err != nil {
		return nil, err
	}
	return c, nil
}

func readMembers(r *Reader, cp *ConstantPool) ([]Member, error) {
	count, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}

	members := make([]Member, 0, count)
	for i := 0; i < int(count); i++ {
		var m Member
		if m.AccessFlags, err = r.ReadUint16(); err != nil {
			return nil, err
		}
		nameIdx, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		descIdx, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		if m.Name, err = cp.UTF8(nameIdx); err != nil {
			return nil, err
		}
		if m.Descriptor, err = cp.UTF8(descIdx); err != nil {
			return nil, err
		}
		if err := skipAttributes(r); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, nil
}

func skipAttributes(r *Reader) error {
	count, err := r.ReadUint16()
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		if _, err := r.ReadUint16(); err != nil {
			return err
		}
		n, err := r.ReadUint32()
		if err != nil {
			return err
		}
		if err := r.Skip(int64(n)); err != nil {
			return err
		}
	}
	return nil
}

// Options controls which declared members become references.
type Options struct {
	// IncludeSynthetic keeps compiler-generated members (synthetic accessors,
	// bridge methods). They occupy method ids in a DEX file just like
	// hand-written ones.
	IncludeSynthetic bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{IncludeSynthetic: true}
}

// DeclaredRefs converts the members of c to references in the same shape the
// DEX reader produces. A static initializer becomes "<clinit>()V" and
// constructors keep their "<init>" name with a void return type.
func (c *Class) DeclaredRefs(opts Options) parser.Refs {
	declClass := model.ClassToDescriptor(c.Name)
	var refs parser.Refs

	for _, f := range c.Fields {
		if !opts.IncludeSynthetic && f.IsSynthetic() {
			continue
		}
		refs.Fields = append(refs.Fields, model.FieldRef{
			DeclClass: declClass,
			Name:      f.Name,
			Type:      f.Descriptor,
		})
	}

	for _, m := range c.Methods {
		if !opts.IncludeSynthetic && (m.IsSynthetic() || m.IsBridge()) {
			continue
		}
		args, ret := splitMethodDescriptor(m.Descriptor)
		if m.Name == "<clinit>" {
			args, ret = "", "V"
		}
		refs.Methods = append(refs.Methods, model.MethodRef{
			DeclClass:  declClass,
			Name:       m.Name,
			ArgTypes:   args,
			ReturnType: ret,
		})
	}
	return refs
}

// splitMethodDescriptor splits "(IJ)V" into "IJ" and "V".
func splitMethodDescriptor(desc string) (args, ret string) {
	open := strings.IndexByte(desc, '(')
	end := strings.IndexByte(desc, ')')
	if open != 0 || end < 0 {
		return "", desc
	}
	return desc[1:end], desc[end+1:]
}

func utf16String(units []uint16) string {
	return string(utf16.Decode(units))
}

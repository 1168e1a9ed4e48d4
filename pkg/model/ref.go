// Package model defines the reference value types shared by the DEX and
// classfile readers and the package tree.
package model

import (
	"fmt"
	"strings"
)

// MethodRef identifies a method by its declaring class descriptor, name and
// prototype. ArgTypes holds the parameter descriptors concatenated in order,
// which keeps the struct comparable so it can be used as a set member.
type MethodRef struct {
	DeclClass  string
	Name       string
	ArgTypes   string
	ReturnType string
}

// NewMethodRef builds a MethodRef from individual parameter descriptors.
func NewMethodRef(declClass, name string, args []string, returnType string) MethodRef {
	return MethodRef{
		DeclClass:  declClass,
		Name:       name,
		ArgTypes:   strings.Join(args, ""),
		ReturnType: returnType,
	}
}

// Args splits ArgTypes back into individual type descriptors.
func (m MethodRef) Args() []string {
	return SplitDescriptors(m.ArgTypes)
}

// Descriptor returns the JVM method descriptor, e.g. "(ILjava/lang/String;)V".
func (m MethodRef) Descriptor() string {
	return "(" + m.ArgTypes + ")" + m.ReturnType
}

// String renders the ref as "com.foo.Bar#baz(I)V".
func (m MethodRef) String() string {
	return DescriptorToDot(m.DeclClass) + "#" + m.Name + m.Descriptor()
}

// FieldRef identifies a field by declaring class descriptor, name and type descriptor.
type FieldRef struct {
	DeclClass string
	Name      string
	Type      string
}

// String renders the ref as "com.foo.Bar#x:I".
func (f FieldRef) String() string {
	return DescriptorToDot(f.DeclClass) + "#" + f.Name + ":" + f.Type
}

// SplitDescriptors splits a run of concatenated field descriptors such as
// "IJ[Ljava/lang/String;" into its elements. Malformed trailing input is
// returned as a final element unchanged.
func SplitDescriptors(s string) []string {
	var out []string
	for i := 0; i < len(s); {
		start := i
		for i < len(s) && s[i] == '[' {
			i++
		}
		if i < len(s) && s[i] == 'L' {
			end := strings.IndexByte(s[i:], ';')
			if end < 0 {
				return append(out, s[start:])
			}
			i += end + 1
		} else if i < len(s) {
			i++
		}
		out = append(out, s[start:i])
	}
	return out
}

var primitiveNames = map[byte]string{
	'B': "byte",
	'C': "char",
	'D': "double",
	'F': "float",
	'I': "int",
	'J': "long",
	'S': "short",
	'V': "void",
	'Z': "boolean",
}

// DescriptorToDot converts a type descriptor to its dotted source form:
// "Lcom/foo/Bar;" becomes "com.foo.Bar", "[I" becomes "int[]" and
// "[[Lcom/foo/Bar;" becomes "com.foo.Bar[][]". Anything else has its
// slashes replaced with dots.
func DescriptorToDot(descriptor string) string {
	dims := 0
	for dims < len(descriptor)-1 && descriptor[dims] == '[' {
		dims++
	}
	elem := descriptor[dims:]

	switch {
	case len(elem) == 1:
		if name, ok := primitiveNames[elem[0]]; ok {
			elem = name
		}
	case len(elem) >= 2 && elem[0] == 'L' && elem[len(elem)-1] == ';':
		elem = elem[1 : len(elem)-1]
	}

	elem = strings.ReplaceAll(elem, "/", ".")
	return elem + strings.Repeat("[]", dims)
}

// ClassToDescriptor converts an internal class name ("com/foo/Bar") or an
// array descriptor to a type descriptor.
func ClassToDescriptor(internalName string) string {
	if strings.HasPrefix(internalName, "[") {
		return internalName
	}
	return fmt.Sprintf("L%s;", internalName)
}

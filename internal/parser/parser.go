// Package parser holds what the binary reference readers under it share: the
// result shape and the malformed-input error type.
package parser

import "github.com/dexcount/pkg/model"

// Refs is the flat output of a reference reader.
type Refs struct {
	Methods []model.MethodRef
	Fields  []model.FieldRef
}

// Append adds the contents of other to r.
func (r *Refs) Append(other Refs) {
	r.Methods = append(r.Methods, other.Methods...)
	r.Fields = append(r.Fields, other.Fields...)
}

package packagetree

import (
	"encoding/json"
	"io"
)

// jsonNode fixes the key order of the rendered document. Disabled counts
// are nil and omitted; children is always present.
type jsonNode struct {
	Name            string      `json:"name"`
	Classes         *int        `json:"classes,omitempty"`
	Methods         *int        `json:"methods,omitempty"`
	Fields          *int        `json:"fields,omitempty"`
	DeclaredMethods *int        `json:"declared_methods,omitempty"`
	DeclaredFields  *int        `json:"declared_fields,omitempty"`
	Children        []*jsonNode `json:"children"`
}

func intPtr(v int) *int { return &v }

func (n *Node) toJSON(depth int, opts PrintOptions) *jsonNode {
	out := &jsonNode{Name: n.name, Children: []*jsonNode{}}

	if opts.IncludeClassCount {
		out.Classes = intPtr(n.ClassCount(opts.primaryKind()))
	}
	if opts.IsAndroidProject {
		if opts.IncludeMethodCount {
			out.Methods = intPtr(n.MethodCount(Referenced))
		}
		if opts.IncludeFieldCount {
			out.Fields = intPtr(n.FieldCount(Referenced))
		}
	}
	if opts.PrintDeclarations {
		out.DeclaredMethods = intPtr(n.MethodCount(Declared))
		out.DeclaredFields = intPtr(n.FieldCount(Declared))
	}

	if depth+1 < opts.MaxTreeDepth {
		for _, c := range n.printableChildren(opts) {
			out.Children = append(out.Children, c.toJSON(depth+1, opts))
		}
	}
	return out
}

// printJSON writes {"name": "", "children": [...]}: the root is a bare
// anchor without counts and its children start at depth 0.
func (t *PackageTree) printJSON(w io.Writer, opts PrintOptions) error {
	doc := &jsonNode{Children: []*jsonNode{}}
	if opts.MaxTreeDepth > 0 {
		for _, c := range t.root.printableChildren(opts) {
			doc.Children = append(doc.Children, c.toJSON(0, opts))
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(doc)
}

package packagetree

import (
	"io"
	"strconv"

	"gopkg.in/yaml.v3"
)

func scalarStr(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func scalarInt(v int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)}
}

// appendCounts adds the enabled count keys of n to mapping m.
func appendCounts(m *yaml.Node, n *Node, opts PrintOptions) {
	if opts.IncludeClassCount {
		m.Content = append(m.Content, scalarStr("classes"), scalarInt(n.ClassCount(opts.primaryKind())))
	}
	if opts.IsAndroidProject {
		if opts.IncludeMethodCount {
			m.Content = append(m.Content, scalarStr("methods"), scalarInt(n.MethodCount(Referenced)))
		}
		if opts.IncludeFieldCount {
			m.Content = append(m.Content, scalarStr("fields"), scalarInt(n.FieldCount(Referenced)))
		}
	}
	if opts.PrintDeclarations {
		m.Content = append(m.Content,
			scalarStr("declared_methods"), scalarInt(n.MethodCount(Declared)),
			scalarStr("declared_fields"), scalarInt(n.FieldCount(Declared)))
	}
}

func (n *Node) toYAML(depth int, opts PrintOptions) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	m.Content = append(m.Content, scalarStr("name"), scalarStr(n.name))
	appendCounts(m, n, opts)

	children := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	if depth+1 < opts.MaxTreeDepth {
		for _, c := range n.printableChildren(opts) {
			children.Content = append(children.Content, c.toYAML(depth+1, opts))
		}
	}
	if len(children.Content) == 0 {
		children.Style = yaml.FlowStyle
	}
	m.Content = append(m.Content, scalarStr("children"), children)
	return m
}

// printYAML writes a "---" document holding the root rollup followed by a
// counts list of nested nodes.
func (t *PackageTree) printYAML(w io.Writer, opts PrintOptions) error {
	if _, err := io.WriteString(w, "---\n"); err != nil {
		return err
	}

	doc := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	appendCounts(doc, t.root, opts)

	counts := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	if opts.MaxTreeDepth > 0 {
		for _, c := range t.root.printableChildren(opts) {
			counts.Content = append(counts.Content, c.toYAML(0, opts))
		}
	}
	if len(counts.Content) == 0 {
		counts.Style = yaml.FlowStyle
	}
	doc.Content = append(doc.Content, scalarStr("counts"), counts)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

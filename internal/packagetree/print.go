package packagetree

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Print renders the tree in the given format. The root is never printed;
// rendering starts with its children at depth 0.
func (t *PackageTree) Print(w io.Writer, format OutputFormat, opts PrintOptions) error {
	switch format {
	case FormatList:
		return t.printList(w, opts)
	case FormatTree:
		return t.printTree(w, opts)
	case FormatJSON:
		return t.printJSON(w, opts)
	case FormatYAML:
		return t.printYAML(w, opts)
	default:
		return fmt.Errorf("unexpected output format: %v", format)
	}
}

// String renders the tree with opts into a string.
func (t *PackageTree) String(format OutputFormat, opts PrintOptions) (string, error) {
	var sb strings.Builder
	if err := t.Print(&sb, format, opts); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (n *Node) isPrintable(opts PrintOptions) bool {
	return opts.IncludeClasses || !n.isClass
}

// printableChildren returns children visible under opts, by name or, when
// requested, by descending method count with ties left in name order.
func (n *Node) printableChildren(opts PrintOptions) []*Node {
	var out []*Node
	it := n.children.Iterator()
	for it.Next() {
		if c := it.Value().(*Node); c.isPrintable(opts) {
			out = append(out, c)
		}
	}

	if opts.OrderByMethodCount {
		k := opts.primaryKind()
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].MethodCount(k) > out[j].MethodCount(k)
		})
	}
	return out
}

func (t *PackageTree) printList(w io.Writer, opts PrintOptions) error {
	bw := bufio.NewWriter(w)

	if opts.IncludeTotalMethodCount {
		if opts.IsAndroidProject {
			fmt.Fprintf(bw, "Total methods: %d\n", t.MethodCount(Referenced))
		}
		if opts.PrintDeclarations {
			fmt.Fprintf(bw, "Total declared methods: %d\n", t.MethodCount(Declared))
		}
	}

	if opts.PrintHeader {
		if opts.IncludeClassCount {
			fmt.Fprintf(bw, "%-8s ", "classes")
		}
		if opts.IsAndroidProject {
			if opts.IncludeMethodCount {
				fmt.Fprintf(bw, "%-8s ", "methods")
			}
			if opts.IncludeFieldCount {
				fmt.Fprintf(bw, "%-8s ", "fields")
			}
		}
		if opts.PrintDeclarations {
			fmt.Fprintf(bw, "%-16s ", "declared methods")
			fmt.Fprintf(bw, "%-16s ", "declared fields")
		}
		bw.WriteString("package/class name\n")
	}

	var path []string
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		if depth >= opts.MaxTreeDepth {
			return
		}
		path = append(path, n.name)

		if opts.IncludeClassCount {
			fmt.Fprintf(bw, "%-8d ", n.ClassCount(opts.primaryKind()))
		}
		if opts.IsAndroidProject {
			if opts.IncludeMethodCount {
				fmt.Fprintf(bw, "%-8d ", n.MethodCount(Referenced))
			}
			if opts.IncludeFieldCount {
				fmt.Fprintf(bw, "%-8d ", n.FieldCount(Referenced))
			}
		}
		if opts.PrintDeclarations {
			// the header labels for these columns are wider
			width := 8
			if opts.PrintHeader {
				width = 16
			}
			fmt.Fprintf(bw, "%-*d %-*d ", width, n.MethodCount(Declared), width, n.FieldCount(Declared))
		}
		bw.WriteString(strings.Join(path, "."))
		bw.WriteByte('\n')

		for _, c := range n.printableChildren(opts) {
			walk(c, depth+1)
		}
		path = path[:len(path)-1]
	}
	for _, c := range t.root.printableChildren(opts) {
		walk(c, 0)
	}

	return bw.Flush()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return strconv.Itoa(n) + " " + one
	}
	return strconv.Itoa(n) + " " + many
}

func (t *PackageTree) printTree(w io.Writer, opts PrintOptions) error {
	bw := bufio.NewWriter(w)

	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		if depth >= opts.MaxTreeDepth {
			return
		}
		bw.WriteString(strings.Repeat("  ", depth))
		bw.WriteString(n.name)

		var parts []string
		if opts.IncludeClassCount {
			parts = append(parts, plural(n.ClassCount(opts.primaryKind()), "class", "classes"))
		}
		if opts.IsAndroidProject {
			if opts.IncludeMethodCount {
				parts = append(parts, plural(n.MethodCount(Referenced), "method", "methods"))
			}
			if opts.IncludeFieldCount {
				parts = append(parts, plural(n.FieldCount(Referenced), "field", "fields"))
			}
		}
		if opts.PrintDeclarations {
			parts = append(parts,
				plural(n.MethodCount(Declared), "declared method", "declared methods"),
				plural(n.FieldCount(Declared), "declared field", "declared fields"))
		}
		if len(parts) > 0 {
			bw.WriteString(" (" + strings.Join(parts, ", ") + ")")
		}
		bw.WriteByte('\n')

		for _, c := range n.printableChildren(opts) {
			walk(c, depth+1)
		}
	}
	for _, c := range t.root.printableChildren(opts) {
		walk(c, 0)
	}

	return bw.Flush()
}

// Package packagetree aggregates method, field and class references into a
// trie keyed by dotted package and class name segments, and renders the
// result as a list, an indented tree, JSON or YAML.
package packagetree

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/sets/linkedhashset"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dexcount/internal/deobfuscator"
	"github.com/dexcount/pkg/model"
)

// Kind separates references found in DEX bytecode from members declared in
// class files. The two families are counted independently.
type Kind int

const (
	Referenced Kind = iota
	Declared
	numKinds
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	if k == Declared {
		return "declared"
	}
	return "referenced"
}

// UnnamedPackage holds classes whose name has no package component.
const UnnamedPackage = "<unnamed>"

const segmentCacheSize = 8192

type tally struct {
	methods int
	fields  int
	classes int
	valid   bool
}

// Node is one name segment: a package component or a class.
type Node struct {
	name     string
	isClass  bool
	children *treemap.Map // string -> *Node, sorted by name
	methods  [numKinds]*linkedhashset.Set
	fields   [numKinds]*linkedhashset.Set
	cache    [numKinds]tally
}

func newNode(name string, isClass bool) *Node {
	return &Node{
		name:     name,
		isClass:  isClass,
		children: treemap.NewWithStringComparator(),
	}
}

// IsClassName reports whether a segment names a class: it starts with an
// upper-case letter or is an array type.
func IsClassName(segment string) bool {
	if strings.Contains(segment, "[]") {
		return true
	}
	r, _ := utf8.DecodeRuneInString(segment)
	return unicode.IsUpper(r)
}

// Name returns the segment name.
func (n *Node) Name() string { return n.name }

// IsClass reports whether the node is a class.
func (n *Node) IsClass() bool { return n.isClass }

// Child returns the named child, or nil.
func (n *Node) Child(name string) *Node {
	v, ok := n.children.Get(name)
	if !ok {
		return nil
	}
	return v.(*Node)
}

// Children returns all children in name order.
func (n *Node) Children() []*Node {
	values := n.children.Values()
	out := make([]*Node, len(values))
	for i, v := range values {
		out[i] = v.(*Node)
	}
	return out
}

func (n *Node) childOrCreate(name string) *Node {
	if c := n.Child(name); c != nil {
		return c
	}
	c := newNode(name, IsClassName(name))
	n.children.Put(name, c)
	return c
}

// MethodRefs returns the method refs of kind k held directly by this node,
// in insertion order.
func (n *Node) MethodRefs(k Kind) []model.MethodRef {
	set := n.methods[k]
	if set == nil {
		return nil
	}
	out := make([]model.MethodRef, 0, set.Size())
	for _, v := range set.Values() {
		out = append(out, v.(model.MethodRef))
	}
	return out
}

// FieldRefs returns the field refs of kind k held directly by this node.
func (n *Node) FieldRefs(k Kind) []model.FieldRef {
	set := n.fields[k]
	if set == nil {
		return nil
	}
	out := make([]model.FieldRef, 0, set.Size())
	for _, v := range set.Values() {
		out = append(out, v.(model.FieldRef))
	}
	return out
}

func (n *Node) addMethod(k Kind, ref model.MethodRef) bool {
	if n.methods[k] == nil {
		n.methods[k] = linkedhashset.New()
	}
	if n.methods[k].Contains(ref) {
		return false
	}
	n.methods[k].Add(ref)
	return true
}

func (n *Node) addField(k Kind, ref model.FieldRef) bool {
	if n.fields[k] == nil {
		n.fields[k] = linkedhashset.New()
	}
	if n.fields[k].Contains(ref) {
		return false
	}
	n.fields[k].Add(ref)
	return true
}

func setSize(s *linkedhashset.Set) int {
	if s == nil {
		return 0
	}
	return s.Size()
}

// counts returns memoized totals for kind k, recomputing only subtrees whose
// cache was invalidated. A class counts as one class of kind k when its
// subtree holds at least one ref of that kind.
func (n *Node) counts(k Kind) tally {
	c := &n.cache[k]
	if c.valid {
		return *c
	}

	methods := setSize(n.methods[k])
	fields := setSize(n.fields[k])
	classes := 0
	it := n.children.Iterator()
	for it.Next() {
		cc := it.Value().(*Node).counts(k)
		methods += cc.methods
		fields += cc.fields
		classes += cc.classes
	}
	if n.isClass {
		classes = 0
		if methods+fields > 0 {
			classes = 1
		}
	}

	*c = tally{methods: methods, fields: fields, classes: classes, valid: true}
	return *c
}

// MethodCount returns the number of distinct method refs of kind k in the subtree.
func (n *Node) MethodCount(k Kind) int { return n.counts(k).methods }

// FieldCount returns the number of distinct field refs of kind k in the subtree.
func (n *Node) FieldCount(k Kind) int { return n.counts(k).fields }

// ClassCount returns the number of classes of kind k in the subtree.
func (n *Node) ClassCount(k Kind) int { return n.counts(k).classes }

// PackageTree is the root of the trie plus the name resolution shared by all
// insertions. It is not safe for concurrent mutation.
type PackageTree struct {
	root         *Node
	deobfuscator *deobfuscator.Deobfuscator
	segments     *lru.Cache[string, []string]
}

// New creates an empty tree. A nil deobfuscator performs no renaming.
func New(d *deobfuscator.Deobfuscator) *PackageTree {
	if d == nil {
		d = deobfuscator.Empty
	}
	cache, _ := lru.New[string, []string](segmentCacheSize)
	return &PackageTree{
		root:         newNode("", false),
		deobfuscator: d,
		segments:     cache,
	}
}

// Root returns the anchor node. It is never rendered.
func (t *PackageTree) Root() *Node { return t.root }

// AddMethodRef records a method referenced from DEX bytecode.
func (t *PackageTree) AddMethodRef(ref model.MethodRef) {
	t.insert(ref.DeclClass, Referenced, func(n *Node) bool { return n.addMethod(Referenced, ref) })
}

// AddFieldRef records a field referenced from DEX bytecode.
func (t *PackageTree) AddFieldRef(ref model.FieldRef) {
	t.insert(ref.DeclClass, Referenced, func(n *Node) bool { return n.addField(Referenced, ref) })
}

// AddDeclaredMethodRef records a method declared in a class file.
func (t *PackageTree) AddDeclaredMethodRef(ref model.MethodRef) {
	t.insert(ref.DeclClass, Declared, func(n *Node) bool { return n.addMethod(Declared, ref) })
}

// AddDeclaredFieldRef records a field declared in a class file.
func (t *PackageTree) AddDeclaredFieldRef(ref model.FieldRef) {
	t.insert(ref.DeclClass, Declared, func(n *Node) bool { return n.addField(Declared, ref) })
}

func (t *PackageTree) insert(descriptor string, k Kind, add func(*Node) bool) {
	segments := t.resolve(descriptor)

	path := make([]*Node, 0, len(segments)+1)
	path = append(path, t.root)
	node := t.root
	for _, seg := range segments {
		node = node.childOrCreate(seg)
		path = append(path, node)
	}

	if !add(node) {
		return
	}
	for _, n := range path {
		n.cache[k].valid = false
	}
}

// resolve turns a class descriptor into name segments after deobfuscation.
func (t *PackageTree) resolve(descriptor string) []string {
	if segs, ok := t.segments.Get(descriptor); ok {
		return segs
	}

	name := t.deobfuscator.Deobfuscate(model.DescriptorToDot(descriptor))
	if !strings.Contains(name, ".") {
		name = UnnamedPackage + "." + name
	}
	segs := strings.Split(name, ".")
	t.segments.Add(descriptor, segs)
	return segs
}

// Lookup finds the node for a dotted path such as "com.foo.Bar".
func (t *PackageTree) Lookup(path string) *Node {
	node := t.root
	for _, seg := range strings.Split(path, ".") {
		if node = node.Child(seg); node == nil {
			return nil
		}
	}
	return node
}

// MethodCount returns the total method count of kind k.
func (t *PackageTree) MethodCount(k Kind) int { return t.root.MethodCount(k) }

// FieldCount returns the total field count of kind k.
func (t *PackageTree) FieldCount(k Kind) int { return t.root.FieldCount(k) }

// ClassCount returns the total class count of kind k.
func (t *PackageTree) ClassCount(k Kind) int { return t.root.ClassCount(k) }

// Walk visits every node below the root depth-first in name order. depth is
// 0 for top-level packages.
func (t *PackageTree) Walk(fn func(n *Node, depth int)) {
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		for _, c := range n.Children() {
			fn(c, depth)
			walk(c, depth+1)
		}
	}
	walk(t.root, 0)
}

// Package deobfuscator maps obfuscated class names back to their original
// names using a ProGuard/R8 mapping file.
package deobfuscator

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

// classLine matches "original.Name -> obf.Name:". Member lines are indented
// and never match.
var classLine = regexp.MustCompile(`^([a-zA-Z][^\s]*) -> ([^:]+):$`)

// Deobfuscator is an immutable obfuscated -> original class name table.
// The zero value and Empty behave as the identity.
type Deobfuscator struct {
	classes map[string]string
}

// Empty performs no renaming.
var Empty = &Deobfuscator{}

// New loads the mapping file at path. An empty path or a file that does not
// exist yields Empty without error; any other read error is returned along
// with Empty so the caller may log it and continue.
func New(path string) (*Deobfuscator, error) {
	if path == "" {
		return Empty, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Empty, nil
		}
		return Empty, err
	}
	defer f.Close()

	d, err := NewFromReader(f)
	if err != nil {
		return Empty, err
	}
	return d, nil
}

// NewFromReader parses mapping text. Lines that are not class mappings,
// including malformed ones, are skipped.
func NewFromReader(r io.Reader) (*Deobfuscator, error) {
	classes := make(map[string]string)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := classLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		classes[m[2]] = m[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &Deobfuscator{classes: classes}, nil
}

// Deobfuscate returns the original name for a dotted class name, or name
// itself when it is not mapped. Array suffixes are preserved.
func (d *Deobfuscator) Deobfuscate(name string) string {
	if d == nil || len(d.classes) == 0 {
		return name
	}

	base, dims := name, ""
	if i := strings.Index(name, "[]"); i > 0 {
		base, dims = name[:i], name[i:]
	}
	if original, ok := d.classes[base]; ok {
		return original + dims
	}
	return name
}

// Len returns the number of class mappings.
func (d *Deobfuscator) Len() int {
	if d == nil {
		return 0
	}
	return len(d.classes)
}

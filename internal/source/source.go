// Package source turns an input artifact (APK, AAR, JAR or raw DEX) into
// SourceFiles that yield method and field references.
package source

import (
	"fmt"
	"os"

	"github.com/dexcount/internal/parser"
	"github.com/dexcount/internal/parser/dex"
	"github.com/dexcount/pkg/model"
)

// SourceFile is one unit of references. Close releases any temporary file
// backing it.
type SourceFile interface {
	MethodRefs() []model.MethodRef
	FieldRefs() []model.FieldRef
	Close() error
}

// DexFile holds the references of one parsed DEX file.
type DexFile struct {
	path string
	temp bool
	refs parser.Refs
}

// OpenDexFile parses the DEX file at path. When temp is set the file is
// removed on Close, and also right away if parsing fails.
func OpenDexFile(path string, temp bool) (*DexFile, error) {
	f, err := dex.Open(path)
	if err == nil {
		var refs parser.Refs
		if refs, err = f.Refs(); err == nil {
			return &DexFile{path: path, temp: temp, refs: refs}, nil
		}
	}
	if temp {
		os.Remove(path)
	}
	return nil, err
}

// Path returns the file the refs were read from.
func (d *DexFile) Path() string { return d.path }

// MethodRefs returns the method_ids table in file order.
func (d *DexFile) MethodRefs() []model.MethodRef { return d.refs.Methods }

// FieldRefs returns the field_ids table in file order.
func (d *DexFile) FieldRefs() []model.FieldRef { return d.refs.Fields }

// Close deletes the backing file if it was extracted to a temp location.
func (d *DexFile) Close() error {
	if !d.temp {
		return nil
	}
	d.temp = false
	if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temp dex %s: %w", d.path, err)
	}
	return nil
}

// JarFile holds members declared by the classes of a JAR.
type JarFile struct {
	refs parser.Refs
}

// NewJarFile wraps already-extracted declared references.
func NewJarFile(refs parser.Refs) *JarFile {
	return &JarFile{refs: refs}
}

func (j *JarFile) MethodRefs() []model.MethodRef { return j.refs.Methods }
func (j *JarFile) FieldRefs() []model.FieldRef   { return j.refs.Fields }
func (j *JarFile) Close() error                  { return nil }

// CloseAll closes every file and returns the first error.
func CloseAll(files []SourceFile) error {
	var first error
	for _, f := range files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

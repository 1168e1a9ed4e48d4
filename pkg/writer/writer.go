// Package writer writes report files and JSON documents.
package writer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteResult describes a written file.
type WriteResult struct {
	Path string
	Size int64
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// WriteFile creates path, and any missing parent directories, with the
// content produced by fn. The file only appears under its final name once fn
// has succeeded, so a failed render never leaves a truncated report behind.
func WriteFile(path string, fn func(w io.Writer) error) (*WriteResult, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	bw := bufio.NewWriter(tmp)
	cw := &countingWriter{w: bw}
	if err := fn(cw); err != nil {
		cleanup()
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return &WriteResult{Path: path, Size: cw.n}, nil
}

// JSONWriter writes values of T as JSON.
type JSONWriter[T any] struct {
	// Indent is the per-level indentation. Empty means compact output.
	Indent string
}

// NewJSONWriter creates a JSON writer with compact output.
func NewJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{}
}

// NewPrettyJSONWriter creates a JSON writer with two-space indentation.
func NewPrettyJSONWriter[T any]() *JSONWriter[T] {
	return &JSONWriter[T]{Indent: "  "}
}

// Write encodes data to w followed by a newline.
func (jw *JSONWriter[T]) Write(data T, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if jw.Indent != "" {
		enc.SetIndent("", jw.Indent)
	}
	return enc.Encode(data)
}

// WriteToFile encodes data into a new file at path.
func (jw *JSONWriter[T]) WriteToFile(data T, path string) (*WriteResult, error) {
	return WriteFile(path, func(w io.Writer) error {
		return jw.Write(data, w)
	})
}

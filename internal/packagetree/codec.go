package packagetree

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dexcount/internal/deobfuscator"
	"github.com/dexcount/pkg/compression"
	"github.com/dexcount/pkg/model"
)

const (
	// CodecVersion is the current intermediate tree format version.
	CodecVersion = 1

	// MagicBytes identifies a serialized package tree.
	MagicBytes = "DXCT"

	headerLen = len(MagicBytes) + 2
)

// Wire field numbers.
const (
	fieldInputRepresentation protowire.Number = 1
	fieldRoot                protowire.Number = 2

	nodeName           protowire.Number = 1
	nodeIsClass        protowire.Number = 2
	nodeChild          protowire.Number = 3
	nodeMethodRef      protowire.Number = 4
	nodeDeclaredMethod protowire.Number = 5
	nodeFieldRef       protowire.Number = 6
	nodeDeclaredField  protowire.Number = 7

	refDeclClass  protowire.Number = 1
	refName       protowire.Number = 2
	refArgTypes   protowire.Number = 3 // field type for field refs
	refReturnType protowire.Number = 4
)

// EncodeOptions controls serialization.
type EncodeOptions struct {
	Compression      compression.Type
	CompressionLevel compression.Level
	// InputRepresentation names the artifact the tree was built from.
	InputRepresentation string
}

// DefaultEncodeOptions uses zstd at the default level.
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{
		Compression:      compression.TypeZstd,
		CompressionLevel: compression.LevelDefault,
	}
}

// EncodeStats describes one serialization.
type EncodeStats struct {
	Nodes            int
	Refs             int
	RawSize          int64
	CompressedSize   int64
	CompressionRatio float64
	Duration         time.Duration
}

// Encode serializes the tree. The result round-trips through Decode with
// identical structure, ref sets and counts.
func (t *PackageTree) Encode(opts EncodeOptions) ([]byte, *EncodeStats, error) {
	start := time.Now()
	stats := &EncodeStats{}

	var raw []byte
	raw = protowire.AppendTag(raw, fieldInputRepresentation, protowire.BytesType)
	raw = protowire.AppendString(raw, opts.InputRepresentation)
	raw = protowire.AppendTag(raw, fieldRoot, protowire.BytesType)
	raw = protowire.AppendBytes(raw, appendNode(nil, t.root, stats))
	stats.RawSize = int64(len(raw))

	codec, err := compression.New(opts.Compression, opts.CompressionLevel)
	if err != nil {
		return nil, nil, err
	}
	payload, err := codec.Compress(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compress tree: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(headerLen + len(payload))
	buf.WriteString(MagicBytes)
	buf.WriteByte(CodecVersion)
	buf.WriteByte(byte(opts.Compression))
	buf.Write(payload)

	out := buf.Bytes()
	stats.CompressedSize = int64(len(out))
	if stats.CompressedSize > 0 {
		stats.CompressionRatio = float64(stats.RawSize) / float64(stats.CompressedSize)
	}
	stats.Duration = time.Since(start)
	return out, stats, nil
}

// WriteFile serializes the tree to filename.
func (t *PackageTree) WriteFile(filename string, opts EncodeOptions) (*EncodeStats, error) {
	data, stats, err := t.Encode(opts)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write tree file: %w", err)
	}
	return stats, nil
}

func appendNode(b []byte, n *Node, stats *EncodeStats) []byte {
	stats.Nodes++
	b = protowire.AppendTag(b, nodeName, protowire.BytesType)
	b = protowire.AppendString(b, n.name)
	if n.isClass {
		b = protowire.AppendTag(b, nodeIsClass, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}

	it := n.children.Iterator()
	for it.Next() {
		b = protowire.AppendTag(b, nodeChild, protowire.BytesType)
		b = protowire.AppendBytes(b, appendNode(nil, it.Value().(*Node), stats))
	}

	for _, k := range []Kind{Referenced, Declared} {
		num := nodeMethodRef
		if k == Declared {
			num = nodeDeclaredMethod
		}
		for _, ref := range n.MethodRefs(k) {
			stats.Refs++
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendBytes(b, appendMethodRef(nil, ref))
		}
	}
	for _, k := range []Kind{Referenced, Declared} {
		num := nodeFieldRef
		if k == Declared {
			num = nodeDeclaredField
		}
		for _, ref := range n.FieldRefs(k) {
			stats.Refs++
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendBytes(b, appendFieldRef(nil, ref))
		}
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMethodRef(b []byte, ref model.MethodRef) []byte {
	b = appendString(b, refDeclClass, ref.DeclClass)
	b = appendString(b, refName, ref.Name)
	b = appendString(b, refArgTypes, ref.ArgTypes)
	return appendString(b, refReturnType, ref.ReturnType)
}

func appendFieldRef(b []byte, ref model.FieldRef) []byte {
	b = appendString(b, refDeclClass, ref.DeclClass)
	b = appendString(b, refName, ref.Name)
	return appendString(b, refArgTypes, ref.Type)
}

// Decode restores a tree and the input representation it was built from.
// Names in the file are already deobfuscated, so the decoded tree carries
// the empty deobfuscator.
func Decode(data []byte) (*PackageTree, string, error) {
	if len(data) < headerLen {
		return nil, "", fmt.Errorf("tree data too short: %d bytes", len(data))
	}
	if string(data[:len(MagicBytes)]) != MagicBytes {
		return nil, "", fmt.Errorf("invalid magic bytes: expected %q, got %q", MagicBytes, string(data[:len(MagicBytes)]))
	}
	if v := data[len(MagicBytes)]; v != CodecVersion {
		return nil, "", fmt.Errorf("unsupported tree version: %d", v)
	}
	ct := compression.Type(data[len(MagicBytes)+1])
	if !ct.Valid() {
		ct = compression.DetectType(data[headerLen:])
	}

	raw, err := compression.Decompress(ct, data[headerLen:])
	if err != nil {
		return nil, "", fmt.Errorf("failed to decompress tree (%s): %w", ct, err)
	}

	t := New(deobfuscator.Empty)
	var input string
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return nil, "", protowire.ParseError(n)
		}
		raw = raw[n:]

		switch {
		case num == fieldInputRepresentation && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(raw)
			if n < 0 {
				return nil, "", protowire.ParseError(n)
			}
			input = v
			raw = raw[n:]
		case num == fieldRoot && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return nil, "", protowire.ParseError(n)
			}
			if err := decodeNode(v, t.root); err != nil {
				return nil, "", err
			}
			raw = raw[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, raw)
			if n < 0 {
				return nil, "", protowire.ParseError(n)
			}
			raw = raw[n:]
		}
	}
	return t, input, nil
}

// ReadFile loads a tree written by WriteFile.
func ReadFile(filename string) (*PackageTree, string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read tree file: %w", err)
	}
	return Decode(data)
}

// decodeNode fills dst from b. Counts are left invalid and computed on
// first access.
func decodeNode(b []byte, dst *Node) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if num == nodeIsClass {
				dst.isClass = v != 0
			}
			b = b[n:]
			continue
		}
		if typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case nodeName:
			dst.name = string(v)
		case nodeChild:
			child := newNode("", false)
			if err := decodeNode(v, child); err != nil {
				return err
			}
			dst.children.Put(child.name, child)
		case nodeMethodRef, nodeDeclaredMethod:
			ref, err := decodeMethodRef(v)
			if err != nil {
				return err
			}
			k := Referenced
			if num == nodeDeclaredMethod {
				k = Declared
			}
			dst.addMethod(k, ref)
		case nodeFieldRef, nodeDeclaredField:
			ref, err := decodeFieldRef(v)
			if err != nil {
				return err
			}
			k := Referenced
			if num == nodeDeclaredField {
				k = Declared
			}
			dst.addField(k, ref)
		}
	}
	return nil
}

// decodeStrings reads the string fields of a ref message into a slice
// indexed by field number.
func decodeStrings(b []byte) ([5]string, error) {
	var out [5]string
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return out, protowire.ParseError(n)
		}
		b = b[n:]
		if typ == protowire.BytesType && num >= refDeclClass && num <= refReturnType {
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return out, protowire.ParseError(n)
			}
			out[num] = v
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return out, protowire.ParseError(n)
		}
		b = b[n:]
	}
	return out, nil
}

func decodeMethodRef(b []byte) (model.MethodRef, error) {
	s, err := decodeStrings(b)
	if err != nil {
		return model.MethodRef{}, err
	}
	return model.MethodRef{
		DeclClass:  s[refDeclClass],
		Name:       s[refName],
		ArgTypes:   s[refArgTypes],
		ReturnType: s[refReturnType],
	}, nil
}

func decodeFieldRef(b []byte) (model.FieldRef, error) {
	s, err := decodeStrings(b)
	if err != nil {
		return model.FieldRef{}, err
	}
	return model.FieldRef{
		DeclClass: s[refDeclClass],
		Name:      s[refName],
		Type:      s[refArgTypes],
	}, nil
}

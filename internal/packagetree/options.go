package packagetree

import (
	"fmt"
	"math"
	"strings"
)

// OutputFormat selects a renderer.
type OutputFormat int

const (
	FormatList OutputFormat = iota
	FormatTree
	FormatJSON
	FormatYAML
)

// String returns the canonical upper-case name.
func (f OutputFormat) String() string {
	switch f {
	case FormatList:
		return "LIST"
	case FormatTree:
		return "TREE"
	case FormatJSON:
		return "JSON"
	case FormatYAML:
		return "YAML"
	default:
		return fmt.Sprintf("OutputFormat(%d)", int(f))
	}
}

// Extension returns the file extension used for reports in this format.
func (f OutputFormat) Extension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatYAML:
		return ".yml"
	default:
		return ".txt"
	}
}

// ParseOutputFormat converts a configuration string into an OutputFormat.
// Matching is case-insensitive; "yml" is accepted for YAML.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "list":
		return FormatList, nil
	case "tree":
		return FormatTree, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return FormatList, fmt.Errorf("unknown output format %q (want list, tree, json or yaml)", s)
	}
}

// PrintOptions controls what the renderers emit.
type PrintOptions struct {
	IncludeClasses          bool
	IncludeClassCount       bool
	IncludeMethodCount      bool
	IncludeFieldCount       bool
	IncludeTotalMethodCount bool
	OrderByMethodCount      bool
	// MaxTreeDepth limits output to nodes whose depth is below it. Depth 0
	// is the top-level children of the root.
	MaxTreeDepth      int
	PrintHeader       bool
	PrintDeclarations bool
	// IsAndroidProject gates the referenced columns. Plain JAR analysis has
	// only declared counts.
	IsAndroidProject bool
}

// DefaultPrintOptions returns the defaults used by the count command.
func DefaultPrintOptions() PrintOptions {
	return PrintOptions{
		IncludeMethodCount: true,
		IncludeFieldCount:  true,
		MaxTreeDepth:       math.MaxInt32,
		IsAndroidProject:   true,
	}
}

// WithClasses returns a copy with IncludeClasses set, as used for chart data.
func (o PrintOptions) WithClasses() PrintOptions {
	o.IncludeClasses = true
	return o
}

// primaryKind is the family used for ordering siblings.
func (o PrintOptions) primaryKind() Kind {
	if o.IsAndroidProject {
		return Referenced
	}
	return Declared
}

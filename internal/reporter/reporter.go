// Package reporter turns a counted package tree into console output, report
// files and metrics, and enforces the method count threshold.
package reporter

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dexcount/internal/packagetree"
	apperrors "github.com/dexcount/pkg/errors"
	"github.com/dexcount/pkg/utils"
)

// MaxDexRefs is the number of method, field or class references a single
// DEX file can index.
const MaxDexRefs = 0xFFFF

// Options controls what a Reporter prints and checks.
type Options struct {
	Format packagetree.OutputFormat
	Print  packagetree.PrintOptions

	Variant      string
	TeamCity     bool
	TeamCitySlug string

	// MaxMethodCount fails the run when exceeded. Zero disables the check.
	MaxMethodCount int

	// Verbose prints the full tree to the console instead of the debug log.
	Verbose bool
	Version string
}

// Totals are the headline numbers of a tree.
type Totals struct {
	Methods int
	Fields  int
	Classes int
}

// TotalsOf returns referenced totals for Android artifacts and declared
// totals otherwise.
func TotalsOf(tree *packagetree.PackageTree, opts packagetree.PrintOptions) Totals {
	k := packagetree.Referenced
	if !opts.IsAndroidProject {
		k = packagetree.Declared
	}
	return Totals{
		Methods: tree.MethodCount(k),
		Fields:  tree.FieldCount(k),
		Classes: tree.ClassCount(k),
	}
}

// Reporter prints the summary of one counted artifact.
type Reporter struct {
	tree   *packagetree.PackageTree
	input  string
	opts   Options
	out    io.Writer
	logger utils.Logger
}

// New creates a Reporter writing user-facing lines to out.
func New(tree *packagetree.PackageTree, input string, opts Options, out io.Writer, logger utils.Logger) *Reporter {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Reporter{tree: tree, input: input, opts: opts, out: out, logger: logger}
}

// Totals returns the headline numbers used by the summary.
func (r *Reporter) Totals() Totals {
	return TotalsOf(r.tree, r.opts.Print)
}

// Report prints the preamble, summary, CI statistics and the tree, then
// checks the threshold. A threshold violation is returned after everything
// else has been printed.
func (r *Reporter) Report() error {
	bw := bufio.NewWriter(r.out)

	r.printPreamble(bw)
	r.printSummary(bw)
	r.printTeamCity(bw)
	if err := r.printTree(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	return CheckThreshold(r.Totals().Methods, r.opts.MaxMethodCount)
}

func (r *Reporter) printPreamble(w io.Writer) {
	if !r.opts.Print.PrintHeader {
		return
	}
	fmt.Fprintf(w, "Dexcount name:    %s\n", "dexcount")
	fmt.Fprintf(w, "Dexcount version: %s\n", r.opts.Version)
	fmt.Fprintf(w, "Dexcount input:   %s\n", r.input)
}

func percentUsed(count int) string {
	return fmt.Sprintf("%.2f", float64(count)/MaxDexRefs*100)
}

func remaining(count int) int {
	return max(MaxDexRefs-count, 0)
}

func (r *Reporter) printSummary(w io.Writer) {
	t := r.Totals()

	fmt.Fprintf(w, "Total methods in %s: %d (%s%% used)\n", r.input, t.Methods, percentUsed(t.Methods))
	fmt.Fprintf(w, "Total fields in %s: %d (%s%% used)\n", r.input, t.Fields, percentUsed(t.Fields))
	fmt.Fprintf(w, "Total classes in %s: %d (%s%% used)\n", r.input, t.Classes, percentUsed(t.Classes))

	if !r.opts.Print.IsAndroidProject {
		return
	}
	fmt.Fprintf(w, "Methods remaining in %s: %d\n", r.input, remaining(t.Methods))
	fmt.Fprintf(w, "Fields remaining in %s: %d\n", r.input, remaining(t.Fields))
	fmt.Fprintf(w, "Classes remaining in %s: %d\n", r.input, remaining(t.Classes))

	if t.Methods > MaxDexRefs {
		r.logger.Warn("%s references %d methods, more than one dex file can hold (%d); you may need multidex",
			r.input, t.Methods, MaxDexRefs)
	}
}

// TeamCityPrefix returns the statistic key prefix, e.g. "Dexcount_app_release".
func TeamCityPrefix(slug, variant string) string {
	prefix := "Dexcount"
	if slug != "" {
		prefix += "_" + strings.ReplaceAll(slug, " ", "_")
	}
	return prefix + "_" + variant
}

func (r *Reporter) printTeamCity(w io.Writer) {
	if !r.opts.TeamCity && r.opts.TeamCitySlug == "" {
		return
	}
	t := r.Totals()
	prefix := TeamCityPrefix(r.opts.TeamCitySlug, r.opts.Variant)
	for _, stat := range []struct {
		key   string
		value int
	}{
		{"ClassCount", t.Classes},
		{"MethodCount", t.Methods},
		{"FieldCount", t.Fields},
	} {
		fmt.Fprintf(w, "##teamcity[buildStatisticValue key='%s_%s' value='%d']\n", prefix, stat.key, stat.value)
	}
}

type debugLogger interface {
	IsDebug() bool
}

// printTree writes the full tree to the console when verbose, and to the
// debug log otherwise.
func (r *Reporter) printTree(w io.Writer) error {
	if r.opts.Verbose {
		return r.tree.Print(w, r.opts.Format, r.opts.Print)
	}
	if dl, ok := r.logger.(debugLogger); ok && !dl.IsDebug() {
		return nil
	}
	s, err := r.tree.String(r.opts.Format, r.opts.Print)
	if err != nil {
		return err
	}
	r.logger.Debug("%s", s)
	return nil
}

// CheckThreshold fails when max is set and methods exceeds it.
func CheckThreshold(methods, max int) error {
	if max > 0 && methods > max {
		return apperrors.Newf(apperrors.CodeThresholdExceeded,
			"The current APK has %d methods, the current max is: %d.", methods, max)
	}
	return nil
}

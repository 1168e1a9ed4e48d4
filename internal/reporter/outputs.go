package reporter

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"

	"github.com/dexcount/internal/packagetree"
	"github.com/dexcount/pkg/writer"
)

const (
	SummaryFileName = "summary.csv"
	ChartDirName    = "chart"
	ChartFileName   = "data.js"
)

// Outputs lists the files written for a run.
type Outputs struct {
	Report  string
	Summary string
	Chart   string
}

// Files returns every written path.
func (o *Outputs) Files() []string {
	return []string{o.Report, o.Summary, o.Chart}
}

// WriteOutputs renders the full report, the CSV summary and the chart data
// into dir. fileName is the report name without extension.
func WriteOutputs(tree *packagetree.PackageTree, dir, fileName string, opts Options) (*Outputs, error) {
	out := &Outputs{
		Report:  filepath.Join(dir, fileName+opts.Format.Extension()),
		Summary: filepath.Join(dir, SummaryFileName),
		Chart:   filepath.Join(dir, ChartDirName, ChartFileName),
	}

	if _, err := writer.WriteFile(out.Report, func(w io.Writer) error {
		return tree.Print(w, opts.Format, opts.Print)
	}); err != nil {
		return nil, err
	}

	if _, err := writer.WriteFile(out.Summary, func(w io.Writer) error {
		return WriteSummary(w, TotalsOf(tree, opts.Print))
	}); err != nil {
		return nil, err
	}

	if _, err := writer.WriteFile(out.Chart, func(w io.Writer) error {
		return WriteChartData(w, tree, opts.Print)
	}); err != nil {
		return nil, err
	}

	return out, nil
}

// WriteSummary writes the methods,fields,classes header and one row.
func WriteSummary(w io.Writer, t Totals) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"methods", "fields", "classes"})
	cw.Write([]string{strconv.Itoa(t.Methods), strconv.Itoa(t.Fields), strconv.Itoa(t.Classes)})
	cw.Flush()
	return cw.Error()
}

// WriteChartData writes the tree as a JavaScript assignment consumed by the
// chart page. Classes are always included.
func WriteChartData(w io.Writer, tree *packagetree.PackageTree, opts packagetree.PrintOptions) error {
	if _, err := io.WriteString(w, "var data = "); err != nil {
		return err
	}
	return tree.Print(w, packagetree.FormatJSON, opts.WithClasses())
}

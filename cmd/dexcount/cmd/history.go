package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dexcount/internal/repository"
	apperrors "github.com/dexcount/pkg/errors"
	"github.com/dexcount/pkg/model"
	"github.com/dexcount/pkg/writer"
)

var (
	errHistoryDisabled = apperrors.New(apperrors.CodeConfigError, "history is disabled, set history.enabled in the configuration")
	errStorageDisabled = apperrors.New(apperrors.CodeConfigError, "storage is disabled, set storage.type in the configuration")
)

var (
	// History command flags
	historyArtifact string
	historyLimit    int
	historyJSON     bool
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent count runs",
	Long:  `List count runs recorded in the history database, newest first.`,
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

// historyShowCmd shows a single run
var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one count run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)

	historyCmd.PersistentFlags().BoolVar(&historyJSON, "json", false, "Print runs as JSON")
	historyCmd.Flags().StringVarP(&historyArtifact, "artifact", "a", "", "Only show runs of this artifact file name")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs")
}

// runJSON is the JSON shape of a run.
type runJSON struct {
	ID              string          `json:"id"`
	Artifact        string          `json:"artifact"`
	Variant         string          `json:"variant,omitempty"`
	Methods         int             `json:"methods"`
	Fields          int             `json:"fields"`
	Classes         int             `json:"classes"`
	DeclaredMethods int             `json:"declared_methods"`
	DeclaredFields  int             `json:"declared_fields"`
	MaxMethodCount  int             `json:"max_method_count,omitempty"`
	Status          model.RunStatus `json:"status"`
	TreeURL         string          `json:"tree_url,omitempty"`
	ReportURL       string          `json:"report_url,omitempty"`
	DurationMS      int64           `json:"duration_ms"`
	CreatedAt       time.Time       `json:"created_at"`
}

func toJSON(r *model.CountRun) runJSON {
	return runJSON{
		ID:              r.ID,
		Artifact:        r.Artifact,
		Variant:         r.Variant,
		Methods:         r.Methods,
		Fields:          r.Fields,
		Classes:         r.Classes,
		DeclaredMethods: r.DeclaredMethods,
		DeclaredFields:  r.DeclaredFields,
		MaxMethodCount:  r.MaxMethodCount,
		Status:          r.Status,
		TreeURL:         r.TreeURL,
		ReportURL:       r.ReportURL,
		DurationMS:      r.Duration.Milliseconds(),
		CreatedAt:       r.CreatedAt,
	}
}

func openHistory(cmd *cobra.Command) (*repository.Repositories, error) {
	if !cfg.History.Enabled {
		return nil, errHistoryDisabled
	}
	return repository.Open(cmd.Context(), &cfg.History)
}

func runHistory(cmd *cobra.Command, args []string) error {
	repos, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer repos.Close()

	var runs []*model.CountRun
	if historyArtifact != "" {
		runs, err = repos.Runs.ListByArtifact(cmd.Context(), historyArtifact, historyLimit)
	} else {
		runs, err = repos.Runs.ListRecent(cmd.Context(), historyLimit)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyJSON {
		views := make([]runJSON, len(runs))
		for i, r := range runs {
			views[i] = toJSON(r)
		}
		return writer.NewPrettyJSONWriter[[]runJSON]().Write(views, out)
	}
	return writeRunTable(out, runs)
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	repos, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer repos.Close()

	run, err := repos.Runs.GetByID(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyJSON {
		return writer.NewPrettyJSONWriter[runJSON]().Write(toJSON(run), out)
	}

	fmt.Fprintf(out, "Run:       %s\n", run.ID)
	fmt.Fprintf(out, "Artifact:  %s\n", run.Artifact)
	if run.Variant != "" {
		fmt.Fprintf(out, "Variant:   %s\n", run.Variant)
	}
	fmt.Fprintf(out, "Status:    %s\n", run.Status)
	fmt.Fprintf(out, "Methods:   %d\n", run.Methods)
	fmt.Fprintf(out, "Fields:    %d\n", run.Fields)
	fmt.Fprintf(out, "Classes:   %d\n", run.Classes)
	if run.MaxMethodCount > 0 {
		fmt.Fprintf(out, "Max:       %d (%d remaining)\n", run.MaxMethodCount, run.Remaining())
	}
	if run.ReportURL != "" {
		fmt.Fprintf(out, "Report:    %s\n", run.ReportURL)
	}
	fmt.Fprintf(out, "Created:   %s\n", run.CreatedAt.Format(time.RFC3339))
	return nil
}

func writeRunTable(w io.Writer, runs []*model.CountRun) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tARTIFACT\tVARIANT\tMETHODS\tFIELDS\tCLASSES\tSTATUS\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.ID, r.Artifact, r.Variant, r.Methods, r.Fields, r.Classes, r.Status,
			r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/dexcount/internal/packagetree"
	"github.com/dexcount/internal/reporter"
	"github.com/dexcount/internal/storage"
)

var (
	// Print command flags
	printFormat         string
	printIncludeClasses bool
	printMaxDepth       int
	printSummary        bool
	printFromStorage    bool
)

// printCmd represents the print command
var printCmd = &cobra.Command{
	Use:   "print <tree-file>",
	Short: "Render a serialized package tree",
	Long: `Render a package tree written by the count command in any report format.

With --from-storage the argument is an object key in the configured storage
instead of a local path.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrint,
}

func init() {
	rootCmd.AddCommand(printCmd)

	f := printCmd.Flags()
	f.StringVarP(&printFormat, "format", "f", "", "Report format: list, tree, json or yaml (defaults to print.format)")
	f.BoolVar(&printIncludeClasses, "include-classes", false, "Include classes in the report")
	f.IntVar(&printMaxDepth, "max-depth", 0, "Limit the report to this package depth (0 is unlimited)")
	f.BoolVar(&printSummary, "summary", false, "Print the totals before the report")
	f.BoolVar(&printFromStorage, "from-storage", false, "Read the tree from the configured storage")
}

func runPrint(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	if f.Changed("format") {
		cfg.Print.Format = printFormat
	}
	if f.Changed("include-classes") {
		cfg.Print.IncludeClasses = printIncludeClasses
	}
	if f.Changed("max-depth") {
		cfg.Print.MaxTreeDepth = printMaxDepth
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	tree, input, err := loadTree(cmd, args[0])
	if err != nil {
		return err
	}
	logger.Debug("Loaded tree of %s from %s", input, args[0])

	opts := cfg.PrintOptions()
	opts.IsAndroidProject = tree.MethodCount(packagetree.Referenced) > 0 || tree.FieldCount(packagetree.Referenced) > 0
	opts.PrintDeclarations = tree.MethodCount(packagetree.Declared) > 0 || tree.FieldCount(packagetree.Declared) > 0

	out := cmd.OutOrStdout()
	if printSummary {
		r := reporter.New(tree, input, reporter.Options{
			Format:  cfg.OutputFormat(),
			Print:   opts,
			Version: Version,
		}, out, logger)
		if err := r.Report(); err != nil {
			return err
		}
	}
	return tree.Print(out, cfg.OutputFormat(), opts)
}

func loadTree(cmd *cobra.Command, arg string) (*packagetree.PackageTree, string, error) {
	if !printFromStorage {
		return packagetree.ReadFile(arg)
	}

	st, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		return nil, "", err
	}
	if st == nil {
		return nil, "", errStorageDisabled
	}
	rc, err := st.Download(cmd.Context(), arg)
	if err != nil {
		return nil, "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", err
	}
	return packagetree.Decode(data)
}

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dexcount/internal/counter"
	"github.com/dexcount/internal/repository"
	"github.com/dexcount/internal/storage"
	"github.com/dexcount/pkg/config"
	"github.com/dexcount/pkg/telemetry"
)

var (
	// Count command flags
	countFormat         string
	countMaxMethods     int
	countMapping        string
	countOutputDir      string
	countOutputFileName string
	countVariant        string
	countDexer          string
	countTeamCity       bool
	countTeamCitySlug   string
	countIncludeClasses bool
	countMaxDepth       int
	countPrintHeader    bool
	countPrintVerbose   bool
)

// countCmd represents the count command
var countCmd = &cobra.Command{
	Use:   "count <artifact>",
	Short: "Count references in an APK, AAR, JAR or DEX file",
	Long: `Count the method, field and class references of an artifact.

The count command:
  - extracts every classes*.dex of an APK, or dexes the classes.jar of an AAR
  - aggregates references per package and class, deobfuscating names with a
    ProGuard mapping file when given
  - writes the serialized tree, the full report, summary.csv and chart data
  - prints totals, and TeamCity statistics when enabled
  - fails when the method count exceeds --max-methods

A plain JAR is reported by its declared members only.`,
	Args: cobra.ExactArgs(1),
	RunE: runCount,
}

func init() {
	rootCmd.AddCommand(countCmd)

	f := countCmd.Flags()
	f.StringVarP(&countFormat, "format", "f", "list", "Report format: list, tree, json or yaml")
	f.IntVar(&countMaxMethods, "max-methods", 0, "Fail when the method count exceeds this value (0 disables)")
	f.StringVarP(&countMapping, "mapping", "m", "", "ProGuard/R8 mapping file used to deobfuscate class names")
	f.StringVarP(&countOutputDir, "output", "o", "./build/outputs/dexcount", "Output directory for reports")
	f.StringVar(&countOutputFileName, "output-file-name", "", "Report file name without extension (defaults to the artifact name)")
	f.StringVar(&countVariant, "variant", "", "Build variant name used in TeamCity keys and run history")
	f.StringVar(&countDexer, "dexer", "d8", "Path of the d8 executable used for AARs")
	f.BoolVar(&countTeamCity, "teamcity", false, "Print TeamCity build statistics")
	f.StringVar(&countTeamCitySlug, "teamcity-slug", "", "Slug added to TeamCity statistic keys")
	f.BoolVar(&countIncludeClasses, "include-classes", false, "Include classes in the report")
	f.IntVar(&countMaxDepth, "max-depth", 0, "Limit the report to this package depth (0 is unlimited)")
	f.BoolVar(&countPrintHeader, "print-header", false, "Print column headers and the tool preamble")
	f.BoolVar(&countPrintVerbose, "print-tree", false, "Print the full report to the console")
}

// applyCountFlags overrides configuration values with the flags that were
// set explicitly.
func applyCountFlags(cmd *cobra.Command, c *config.Config) error {
	f := cmd.Flags()
	if f.Changed("format") {
		c.Print.Format = countFormat
	}
	if f.Changed("max-methods") {
		c.Count.MaxMethodCount = countMaxMethods
	}
	if f.Changed("mapping") {
		c.Count.MappingFile = countMapping
	}
	if f.Changed("output") {
		c.Count.OutputDir = countOutputDir
	}
	if f.Changed("output-file-name") {
		c.Count.OutputFileName = countOutputFileName
	}
	if f.Changed("variant") {
		c.Count.Variant = countVariant
	}
	if f.Changed("dexer") {
		c.Count.DexerPath = countDexer
	}
	if f.Changed("teamcity") {
		c.Count.TeamCity = countTeamCity
	}
	if f.Changed("teamcity-slug") {
		c.Count.TeamCitySlug = countTeamCitySlug
	}
	if f.Changed("include-classes") {
		c.Print.IncludeClasses = countIncludeClasses
	}
	if f.Changed("max-depth") {
		c.Print.MaxTreeDepth = countMaxDepth
	}
	if f.Changed("print-header") {
		c.Print.PrintHeader = countPrintHeader
	}
	if f.Changed("print-tree") {
		c.Print.Verbose = countPrintVerbose
	}
	return c.Validate()
}

func runCount(cmd *cobra.Command, args []string) error {
	if err := applyCountFlags(cmd, cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetry.Resolve(&cfg.Telemetry, Version))
	if err != nil {
		logger.Warn("Tracing disabled: %v", err)
	} else {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Warn("Failed to flush traces: %v", err)
			}
		}()
	}

	st, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		return err
	}

	repos, err := repository.Open(ctx, &cfg.History)
	if err != nil {
		return err
	}
	defer repos.Close()

	c := counter.New(counter.Deps{
		Config:  cfg,
		Storage: st,
		Runs:    repos.Runs,
		Out:     cmd.OutOrStdout(),
		Logger:  logger,
		Version: Version,
	})

	_, err = c.Count(ctx, args[0])
	return err
}

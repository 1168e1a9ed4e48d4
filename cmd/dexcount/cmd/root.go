// Package cmd implements the dexcount command line.
package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dexcount/pkg/config"
	apperrors "github.com/dexcount/pkg/errors"
	"github.com/dexcount/pkg/utils"
)

var (
	// Global flags
	configPath string
	verbose    bool
	logLevel   string
	logFormat  string

	cfg     *config.Config
	logger  utils.Logger
	logFile *os.File
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dexcount",
	Short: "Count method, field and class references in Android artifacts",
	Long: `dexcount counts the method, field and class references of APK, AAR, JAR
and DEX files and reports them by package against the 65,536 reference limit
of a single dex file.

Reports are written as list, tree, JSON or YAML together with a CSV summary
and chart data. A method count ceiling can fail the build.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Log.Format = logFormat
		}
		cfg = loaded

		l, err := buildLogger(cfg.Log, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		logger = l
		utils.SetGlobalLogger(l)
		logger.Debug("Configuration: %s", cfg)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logFile != nil {
			err := logFile.Close()
			logFile = nil
			return err
		}
		return nil
	},
}

// buildLogger creates the logrus logger described by lc. Verbose forces
// debug level.
func buildLogger(lc config.LogConfig, stderr io.Writer) (*utils.LogrusLogger, error) {
	level := utils.ParseLogLevel(lc.Level)
	if verbose {
		level = utils.LevelDebug
	}

	out := stderr
	if lc.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(lc.OutputPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(lc.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		out = f
	}

	return utils.NewLogger(utils.LoggerOptions{
		Level:  level,
		Format: utils.LogFormat(strings.ToLower(lc.Format)),
		Output: out,
	}), nil
}

// Execute runs the root command and exits with its status. A count failure
// has already been reported to the user and exits 0.
func Execute() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.Execute()
	switch {
	case err == nil:
		return 0
	case apperrors.IsCountFailed(err):
		return 0
	default:
		fmt.Fprintf(stderr, "Error: %s\n", errorMessage(err))
		return 1
	}
}

// errorMessage shows threshold failures without the error code.
func errorMessage(err error) string {
	if apperrors.IsThresholdExceeded(err) {
		return apperrors.GetErrorMessage(err)
	}
	return err.Error()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default ./dexcount.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	binName := BinName()
	rootCmd.Example = `  # Count an APK and fail above 60000 methods
  ` + binName + ` count app-release.apk --max-methods 60000

  # Write a JSON report with classes for a library
  ` + binName + ` count mylib.aar --format json --include-classes

  # Render a previously serialized tree as YAML
  ` + binName + ` print build/outputs/dexcount/app-release.dxct --format yaml

  # Show recent runs from the history database
  ` + binName + ` history --limit 10`
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}

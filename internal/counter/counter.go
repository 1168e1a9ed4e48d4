// Package counter runs the full count pipeline for one artifact: extract
// references, build the package tree, persist it, render reports, publish
// them and record the run.
package counter

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dexcount/internal/deobfuscator"
	"github.com/dexcount/internal/packagetree"
	"github.com/dexcount/internal/parser/classfile"
	"github.com/dexcount/internal/reporter"
	"github.com/dexcount/internal/repository"
	"github.com/dexcount/internal/source"
	"github.com/dexcount/internal/storage"
	"github.com/dexcount/pkg/config"
	apperrors "github.com/dexcount/pkg/errors"
	"github.com/dexcount/pkg/model"
	"github.com/dexcount/pkg/telemetry"
	"github.com/dexcount/pkg/utils"
)

// TreeFileExtension is appended to the output file name for the serialized
// package tree.
const TreeFileExtension = ".dxct"

// Phase names used for timing and spans.
const (
	phaseExtract   = "extract"
	phaseBuildTree = "build_tree"
	phaseWriteTree = "write_tree"
	phaseReport    = "report"
	phasePublish   = "publish"
	phaseRecord    = "record"
)

// Deps are the collaborators of a Counter. Only Config is required.
type Deps struct {
	Config *config.Config
	// Storage publishes the outputs. Nil skips publishing.
	Storage storage.Storage
	// Runs records each run. Nil records nothing.
	Runs repository.RunRepository
	// Metrics is written to metrics.textfile_path when that is set.
	Metrics *reporter.Metrics
	// Out receives the console report. Defaults to os.Stdout.
	Out     io.Writer
	Logger  utils.Logger
	Clock   utils.Clock
	Version string
}

// Counter counts artifacts with a fixed configuration.
type Counter struct {
	cfg     *config.Config
	storage storage.Storage
	runs    repository.RunRepository
	metrics *reporter.Metrics
	out     io.Writer
	logger  utils.Logger
	clock   utils.Clock
	version string
}

// New creates a Counter.
func New(d Deps) *Counter {
	c := &Counter{
		cfg:     d.Config,
		storage: d.Storage,
		runs:    d.Runs,
		metrics: d.Metrics,
		out:     d.Out,
		logger:  d.Logger,
		clock:   d.Clock,
		version: d.Version,
	}
	if c.cfg == nil {
		c.cfg = config.Default()
	}
	if c.runs == nil {
		c.runs = repository.NoopRunRepository{}
	}
	if c.metrics == nil && c.cfg.Metrics.TextfilePath != "" {
		c.metrics = reporter.NewMetrics()
	}
	if c.out == nil {
		c.out = os.Stdout
	}
	if c.logger == nil {
		c.logger = &utils.NullLogger{}
	}
	if c.clock == nil {
		c.clock = utils.RealClock{}
	}
	return c
}

// Result describes a finished run.
type Result struct {
	Run      *model.CountRun
	Tree     *packagetree.PackageTree
	TreeFile string
	Outputs  *reporter.Outputs
	// URLs maps each published local file to its storage URL.
	URLs map[string]string
}

// artifactKind decides which reference families an artifact yields.
type artifactKind struct {
	referenced bool // DEX method/field references
	declared   bool // members declared by JVM classes
}

func kindOf(path string, runDexer bool) artifactKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jar":
		return artifactKind{declared: true}
	case ".aar":
		return artifactKind{referenced: runDexer, declared: true}
	default:
		return artifactKind{referenced: true}
	}
}

// Count runs the pipeline for the artifact at path.
//
// A THRESHOLD_EXCEEDED error is returned together with a complete Result
// after every output has been written. A COUNT_FAILED error means the input
// could not be parsed; the diagnostic has been logged and no report exists.
func (c *Counter) Count(ctx context.Context, path string) (res *Result, err error) {
	runID := uuid.NewString()
	artifact := filepath.Base(path)
	logger := c.logger.WithFields(map[string]interface{}{"run_id": runID, "artifact": artifact})
	timer := utils.NewTimer("dexcount "+artifact, utils.WithClock(c.clock))

	ctx, span := telemetry.StartSpan(ctx, "dexcount.count",
		attribute.String("dexcount.run_id", runID),
		attribute.String("dexcount.artifact", artifact),
		attribute.String("dexcount.variant", c.cfg.Count.Variant),
	)
	defer func() {
		if apperrors.IsThresholdExceeded(err) {
			telemetry.EndSpan(span, nil)
			return
		}
		telemetry.EndSpan(span, err)
	}()

	run := &model.CountRun{
		ID:             runID,
		Artifact:       artifact,
		Variant:        c.cfg.Count.Variant,
		MaxMethodCount: c.cfg.Count.MaxMethodCount,
		CreatedAt:      c.clock.Now(),
	}

	deob, derr := deobfuscator.New(c.cfg.Count.MappingFile)
	if derr != nil {
		logger.Warn("Failed to read mapping file %s, names stay obfuscated: %v", c.cfg.Count.MappingFile, derr)
	} else if deob.Len() > 0 {
		logger.Debug("Loaded %d class mappings from %s", deob.Len(), c.cfg.Count.MappingFile)
	}

	kind := kindOf(path, c.cfg.Count.RunDexer)
	tree := packagetree.New(deob)

	if err := timer.Measure(phaseExtract, func() error {
		return c.extract(ctx, path, kind, tree, logger)
	}); err != nil {
		if apperrors.IsCountFailed(err) {
			logger.Error("%s", apperrors.IssueTrackerMessage)
			logger.Debug("Count failure: %v", err)
			run.Status = model.RunStatusCountFailed
			run.Duration = timer.Total()
			c.record(ctx, run, logger)
		}
		return nil, err
	}

	printOpts := c.cfg.PrintOptions()
	printOpts.IsAndroidProject = kind.referenced
	printOpts.PrintDeclarations = kind.declared

	res = &Result{Run: run, Tree: tree}
	fillTotals(run, tree, printOpts)

	outDir := c.cfg.Count.OutputDir
	fileName := c.outputFileName(path)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	res.TreeFile = filepath.Join(outDir, fileName+TreeFileExtension)
	if err := timer.Measure(phaseWriteTree, func() error {
		return c.writeTree(tree, res.TreeFile, path, logger)
	}); err != nil {
		return nil, err
	}

	opts := reporter.Options{
		Format:         c.cfg.OutputFormat(),
		Print:          printOpts,
		Variant:        c.cfg.Count.Variant,
		TeamCity:       c.cfg.Count.TeamCity,
		TeamCitySlug:   c.cfg.Count.TeamCitySlug,
		MaxMethodCount: c.cfg.Count.MaxMethodCount,
		Verbose:        c.cfg.Print.Verbose,
		Version:        c.version,
	}

	var thresholdErr error
	if err := timer.Measure(phaseReport, func() error {
		_, rspan := telemetry.StartSpan(ctx, "dexcount.report")
		outputs, err := reporter.WriteOutputs(tree, outDir, fileName, opts)
		if err != nil {
			telemetry.EndSpan(rspan, err)
			return err
		}
		res.Outputs = outputs
		err = reporter.New(tree, path, opts, c.out, logger).Report()
		if apperrors.IsThresholdExceeded(err) {
			thresholdErr = err
			err = nil
		}
		telemetry.EndSpan(rspan, err)
		return err
	}); err != nil {
		return nil, err
	}

	run.Status = model.RunStatusPassed
	if thresholdErr != nil {
		run.Status = model.RunStatusFailed
	}

	timer.Measure(phasePublish, func() error {
		c.publish(ctx, res, logger)
		return nil
	})

	run.Duration = timer.Total()
	timer.Measure(phaseRecord, func() error {
		c.record(ctx, run, logger)
		return nil
	})

	timer.LogSummary(logger)
	logger.WithFields(timer.Fields()).Info("Counted %d methods, %d fields, %d classes (%s)",
		run.Methods, run.Fields, run.Classes, run.Status)

	return res, thresholdErr
}

func (c *Counter) outputFileName(path string) string {
	if name := c.cfg.Count.OutputFileName; name != "" {
		return name
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (c *Counter) sourceOptions(logger utils.Logger) source.Options {
	return source.Options{
		Dexer: source.NewDexer(c.cfg.Count.DexerPath,
			source.WithDexerTimeout(c.cfg.DexerTimeout()),
			source.WithDexerLogger(logger)),
		Class:   classfile.Options{IncludeSynthetic: c.cfg.Count.IncludeSynthetic},
		TempDir: c.cfg.Count.TempDir,
		Logger:  logger,
	}
}

// extract feeds every reference of the artifact into tree.
func (c *Counter) extract(ctx context.Context, path string, kind artifactKind, tree *packagetree.PackageTree, logger utils.Logger) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "dexcount.extract",
		attribute.Bool("dexcount.referenced", kind.referenced),
		attribute.Bool("dexcount.declared", kind.declared),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	opts := c.sourceOptions(logger)

	if kind.referenced {
		files, err := source.Extract(ctx, path, opts)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := source.CloseAll(files); cerr != nil {
				logger.Warn("Failed to clean up extracted files: %v", cerr)
			}
		}()
		span.SetAttributes(attribute.Int("dexcount.source_files", len(files)))
		buildTree(ctx, tree, files, false)
	}

	if kind.declared {
		jar, err := source.ExtractDeclared(ctx, path, opts)
		if err != nil {
			return err
		}
		buildTree(ctx, tree, []source.SourceFile{jar}, true)
	}
	return nil
}

// buildTree adds the refs of files as referenced or declared.
func buildTree(ctx context.Context, tree *packagetree.PackageTree, files []source.SourceFile, declared bool) {
	_, span := telemetry.StartSpan(ctx, "dexcount.build_tree", attribute.Bool("dexcount.declared", declared))
	defer telemetry.EndSpan(span, nil)

	for _, f := range files {
		for _, ref := range f.MethodRefs() {
			if declared {
				tree.AddDeclaredMethodRef(ref)
			} else {
				tree.AddMethodRef(ref)
			}
		}
		for _, ref := range f.FieldRefs() {
			if declared {
				tree.AddDeclaredFieldRef(ref)
			} else {
				tree.AddFieldRef(ref)
			}
		}
	}
}

func fillTotals(run *model.CountRun, tree *packagetree.PackageTree, opts packagetree.PrintOptions) {
	t := reporter.TotalsOf(tree, opts)
	run.Methods = t.Methods
	run.Fields = t.Fields
	run.Classes = t.Classes
	run.DeclaredMethods = tree.MethodCount(packagetree.Declared)
	run.DeclaredFields = tree.FieldCount(packagetree.Declared)
}

func (c *Counter) writeTree(tree *packagetree.PackageTree, dst, input string, logger utils.Logger) error {
	opts := packagetree.DefaultEncodeOptions()
	opts.Compression = c.cfg.TreeCompression()
	opts.InputRepresentation = input

	stats, err := tree.WriteFile(dst, opts)
	if err != nil {
		return err
	}
	logger.Debug("Wrote %s: %d nodes, %d refs, %d -> %d bytes (%s)",
		filepath.Base(dst), stats.Nodes, stats.Refs, stats.RawSize, stats.CompressedSize, opts.Compression)
	return nil
}

// publish uploads the tree and reports. Failures are logged, not returned.
func (c *Counter) publish(ctx context.Context, res *Result, logger utils.Logger) {
	if c.storage == nil {
		return
	}
	files := append([]string{res.TreeFile}, res.Outputs.Files()...)
	urls, err := storage.Publish(ctx, c.storage, c.cfg.Storage.Prefix, res.Run.Artifact, res.Run.ID, files)
	if err != nil {
		logger.Warn("Failed to publish reports: %v", err)
		return
	}
	res.URLs = urls
	res.Run.TreeURL = urls[res.TreeFile]
	res.Run.ReportURL = urls[res.Outputs.Report]
	logger.Info("Published report to %s", res.Run.ReportURL)
}

// record saves the run and exports metrics. Failures are logged, not returned.
func (c *Counter) record(ctx context.Context, run *model.CountRun, logger utils.Logger) {
	if err := c.runs.Create(ctx, run); err != nil {
		logger.Warn("Failed to record run %s: %v", run.ID, err)
	}

	path := c.cfg.Metrics.TextfilePath
	if c.metrics == nil || path == "" {
		return
	}
	c.metrics.Observe(run)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Warn("Failed to create metrics dir: %v", err)
		return
	}
	if err := c.metrics.WriteTextfile(path); err != nil {
		logger.Warn("Failed to write metrics textfile %s: %v", path, err)
	}
}

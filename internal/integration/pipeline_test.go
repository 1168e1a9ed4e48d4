package integration

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexcount/internal/counter"
	"github.com/dexcount/internal/packagetree"
	"github.com/dexcount/internal/repository"
	"github.com/dexcount/internal/storage"
	"github.com/dexcount/internal/testutil"
	"github.com/dexcount/pkg/config"
	apperrors "github.com/dexcount/pkg/errors"
	"github.com/dexcount/pkg/model"
	"github.com/dexcount/pkg/utils"
)

// obfuscatedAPK holds com.foo.Bar and com.foo.Qux under their obfuscated
// names a.a and a.b, split over two dex files.
func obfuscatedAPK(t *testing.T) string {
	t.Helper()
	first := testutil.NewDexBuilder().
		Method("La/a;", "a", "V").
		Field("La/a;", "b", "I").
		Build()
	second := testutil.NewDexBuilder().
		Method("La/b;", "a", "V").
		Method("La/a;", "a", "V").
		Build()
	return testutil.WriteArtifact(t, "app-release.apk", testutil.BuildZip(
		testutil.ZipEntry{Name: "classes.dex", Data: first},
		testutil.ZipEntry{Name: "classes2.dex", Data: second},
	))
}

const mapping = `# compiler: R8
com.foo.Bar -> a.a:
    int x -> b
    void baz() -> a
com.foo.Qux -> a.b:
    void quux() -> a
`

type pipeline struct {
	cfg   *config.Config
	store storage.Storage
	repos *repository.Repositories
	out   *bytes.Buffer
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Count.OutputDir = filepath.Join(dir, "out")
	cfg.Count.TempDir = t.TempDir()
	cfg.Count.Variant = "release"
	cfg.Count.MappingFile = testutil.WriteFile(t, dir, "mapping.txt", []byte(mapping))
	cfg.Print.IncludeClasses = true
	cfg.Storage = config.StorageConfig{Type: "local", LocalPath: filepath.Join(dir, "store"), Prefix: "ci"}
	cfg.History = config.HistoryConfig{Enabled: true, Type: "sqlite", Path: filepath.Join(dir, "history.db"), MaxConns: 1}
	cfg.Metrics.TextfilePath = filepath.Join(dir, "metrics", "dexcount.prom")
	require.NoError(t, cfg.Validate())

	ctx := context.Background()
	st, err := storage.NewStorage(&cfg.Storage)
	require.NoError(t, err)
	repos, err := repository.Open(ctx, &cfg.History)
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	return &pipeline{cfg: cfg, store: st, repos: repos, out: &bytes.Buffer{}}
}

func (p *pipeline) counter() *counter.Counter {
	return counter.New(counter.Deps{
		Config:  p.cfg,
		Storage: p.store,
		Runs:    p.repos.Runs,
		Out:     p.out,
		Logger:  &utils.NullLogger{},
		Version: "integration",
	})
}

func TestFullCountPipeline(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	// Step 1: count the artifact
	res, err := p.counter().Count(ctx, obfuscatedAPK(t))
	require.NoError(t, err)

	// Step 2: the tree is deobfuscated and aggregated
	tree := res.Tree
	assert.Equal(t, 2, tree.MethodCount(packagetree.Referenced))
	assert.Equal(t, 1, tree.FieldCount(packagetree.Referenced))
	foo := tree.Lookup("com.foo")
	require.NotNil(t, foo)
	assert.Equal(t, 2, foo.ClassCount(packagetree.Referenced))
	bar := tree.Lookup("com.foo.Bar")
	require.NotNil(t, bar)
	assert.Equal(t, 1, bar.MethodCount(packagetree.Referenced))
	assert.Equal(t, 1, bar.FieldCount(packagetree.Referenced))
	assert.Nil(t, tree.Lookup("a"))

	// Step 3: the console summary
	assert.Contains(t, p.out.String(), "app-release.apk: 2 (0.00% used)\n")

	// Step 4: the stored tree renders the same report as the local one
	rc, err := p.store.Download(ctx, storage.RunKey("ci", "app-release.apk", res.Run.ID, res.TreeFile))
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)

	decoded, input, err := packagetree.Decode(data)
	require.NoError(t, err)
	assert.Contains(t, input, "app-release.apk")

	opts := p.cfg.PrintOptions()
	for _, format := range []packagetree.OutputFormat{
		packagetree.FormatList, packagetree.FormatTree, packagetree.FormatJSON, packagetree.FormatYAML,
	} {
		want, err := tree.String(format, opts)
		require.NoError(t, err)
		got, err := decoded.String(format, opts)
		require.NoError(t, err)
		assert.Equal(t, want, got, format.String())
	}
	report, err := decoded.String(p.cfg.OutputFormat(), opts)
	require.NoError(t, err)
	assert.Equal(t, testutil.ReadFile(t, res.Outputs.Report), report)

	// Step 5: the run is in the history
	saved, err := p.repos.Runs.GetByID(ctx, res.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPassed, saved.Status)
	assert.Equal(t, res.Run.ReportURL, saved.ReportURL)
	assert.True(t, testutil.FileExists(t, saved.ReportURL))

	// Step 6: metrics were exported
	assert.Contains(t, testutil.ReadFile(t, p.cfg.Metrics.TextfilePath),
		`dexcount_methods{artifact="app-release.apk",variant="release"} 2`)
}

func TestFullCountPipeline_ThresholdThenPass(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	apk := obfuscatedAPK(t)

	p.cfg.Count.MaxMethodCount = 1
	_, err := p.counter().Count(ctx, apk)
	require.Error(t, err)
	assert.Equal(t, "The current APK has 2 methods, the current max is: 1.", apperrors.GetErrorMessage(err))

	p.cfg.Count.MaxMethodCount = 2
	_, err = p.counter().Count(ctx, apk)
	require.NoError(t, err)

	runs, err := p.repos.Runs.ListByArtifact(ctx, "app-release.apk", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	statuses := []model.RunStatus{runs[0].Status, runs[1].Status}
	assert.ElementsMatch(t, []model.RunStatus{model.RunStatusPassed, model.RunStatusFailed}, statuses)
	for _, r := range runs {
		assert.Equal(t, 2, r.Methods)
	}
}

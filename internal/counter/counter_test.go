package counter

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dexcount/internal/mock"
	"github.com/dexcount/internal/packagetree"
	"github.com/dexcount/internal/repository"
	"github.com/dexcount/internal/storage"
	"github.com/dexcount/internal/testutil"
	"github.com/dexcount/pkg/config"
	apperrors "github.com/dexcount/pkg/errors"
	"github.com/dexcount/pkg/model"
	"github.com/dexcount/pkg/utils"
)

func sampleAPK(t *testing.T) string {
	t.Helper()
	first := testutil.NewDexBuilder().
		Method("Lcom/foo/Bar;", "baz", "V").
		Method("Lcom/foo/Bar;", "<init>", "V", "I").
		Field("Lcom/foo/Bar;", "x", "I").
		Build()
	second := testutil.NewDexBuilder().
		Method("Lcom/foo/Qux;", "quux", "V").
		Method("Lcom/foo/Bar;", "baz", "V").
		Build()
	return testutil.WriteArtifact(t, "app.apk", testutil.BuildZip(
		testutil.ZipEntry{Name: "AndroidManifest.xml", Data: []byte("<manifest/>")},
		testutil.ZipEntry{Name: "classes.dex", Data: first},
		testutil.ZipEntry{Name: "classes2.dex", Data: second},
	))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Count.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.Count.Variant = "release"
	cfg.Count.TempDir = t.TempDir()
	return cfg
}

type harness struct {
	counter *Counter
	out     *bytes.Buffer
	logs    *bytes.Buffer
	clock   *utils.MockClock
}

func newHarness(t *testing.T, cfg *config.Config, d Deps) *harness {
	t.Helper()
	h := &harness{
		out:   &bytes.Buffer{},
		logs:  &bytes.Buffer{},
		clock: utils.NewMockClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)),
	}
	d.Config = cfg
	d.Out = h.out
	d.Logger = utils.NewDefaultLogger(utils.LevelInfo, h.logs)
	d.Clock = h.clock
	d.Version = "test"
	h.counter = New(d)
	return h
}

func TestCount_APK(t *testing.T) {
	cfg := testConfig(t)
	h := newHarness(t, cfg, Deps{})

	res, err := h.counter.Count(context.Background(), sampleAPK(t))
	require.NoError(t, err)

	run := res.Run
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "app.apk", run.Artifact)
	assert.Equal(t, "release", run.Variant)
	assert.Equal(t, 3, run.Methods, "duplicate refs across dex files collapse")
	assert.Equal(t, 1, run.Fields)
	assert.Equal(t, 2, run.Classes)
	assert.Equal(t, 0, run.DeclaredMethods)
	assert.Equal(t, model.RunStatusPassed, run.Status)

	assert.Contains(t, h.out.String(), "Total methods in ")
	assert.Contains(t, h.out.String(), "app.apk: 3 (0.00% used)\n")
	assert.Contains(t, h.out.String(), "Methods remaining in ")

	outDir := cfg.Count.OutputDir
	assert.Equal(t, filepath.Join(outDir, "app.dxct"), res.TreeFile)
	assert.Equal(t, filepath.Join(outDir, "app.txt"), res.Outputs.Report)
	assert.Equal(t, "methods,fields,classes\n3,1,2\n", testutil.ReadFile(t, res.Outputs.Summary))
	assert.True(t, testutil.FileExists(t, res.Outputs.Chart))
	assert.Empty(t, testutil.DirEntries(t, cfg.Count.TempDir), "extracted dex files are removed")

	decoded, input, err := packagetree.ReadFile(res.TreeFile)
	require.NoError(t, err)
	assert.Contains(t, input, "app.apk")
	assert.Equal(t, 3, decoded.MethodCount(packagetree.Referenced))
	assert.Equal(t, 1, decoded.FieldCount(packagetree.Referenced))
}

func TestCount_OutputFileNameAndFormat(t *testing.T) {
	cfg := testConfig(t)
	cfg.Count.OutputFileName = "release"
	cfg.Print.Format = "json"
	h := newHarness(t, cfg, Deps{})

	res, err := h.counter.Count(context.Background(), sampleAPK(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Count.OutputDir, "release.json"), res.Outputs.Report)
	assert.Equal(t, filepath.Join(cfg.Count.OutputDir, "release.dxct"), res.TreeFile)
}

func TestCount_Threshold(t *testing.T) {
	cfg := testConfig(t)
	cfg.Count.MaxMethodCount = 1
	h := newHarness(t, cfg, Deps{})

	res, err := h.counter.Count(context.Background(), sampleAPK(t))
	require.Error(t, err)
	assert.True(t, apperrors.IsThresholdExceeded(err))
	assert.Equal(t, "The current APK has 3 methods, the current max is: 1.", apperrors.GetErrorMessage(err))

	require.NotNil(t, res, "outputs are written before the threshold fails the run")
	assert.Equal(t, model.RunStatusFailed, res.Run.Status)
	assert.True(t, testutil.FileExists(t, res.Outputs.Summary))
}

func TestCount_JAR(t *testing.T) {
	bar := testutil.NewClassBuilder("com/foo/Bar").
		Field(0x0002, "x", "I").
		Method(0x0001, "<init>", "()V").
		Method(0x0001, "baz", "()V").
		Build()
	jar := testutil.WriteArtifact(t, "lib.jar", testutil.BuildZip(
		testutil.ZipEntry{Name: "com/foo/Bar.class", Data: bar},
	))

	cfg := testConfig(t)
	h := newHarness(t, cfg, Deps{})
	res, err := h.counter.Count(context.Background(), jar)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Run.Methods, "declared counts are the headline for plain jars")
	assert.Equal(t, 2, res.Run.DeclaredMethods)
	assert.Equal(t, 1, res.Run.DeclaredFields)
	assert.Equal(t, 0, res.Tree.MethodCount(packagetree.Referenced))
	assert.NotContains(t, h.out.String(), "remaining")
}

func TestCount_MappingFile(t *testing.T) {
	dexData := testutil.NewDexBuilder().
		Method("La/a;", "a", "V").
		Method("La/b;", "b", "V").
		Build()
	dexPath := testutil.WriteArtifact(t, "classes.dex", dexData)
	mapping := testutil.WriteArtifact(t, "mapping.txt", []byte(
		"com.foo.Bar -> a.a:\n    void baz() -> a\ncom.foo.Qux -> a.b:\n"))

	cfg := testConfig(t)
	cfg.Count.MappingFile = mapping
	h := newHarness(t, cfg, Deps{})

	res, err := h.counter.Count(context.Background(), dexPath)
	require.NoError(t, err)
	assert.NotNil(t, res.Tree.Lookup("com.foo.Bar"))
	assert.NotNil(t, res.Tree.Lookup("com.foo.Qux"))
	assert.Nil(t, res.Tree.Lookup("a.a"))
}

func TestCount_MissingMappingFileIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Count.MappingFile = filepath.Join(t.TempDir(), "nope.txt")
	h := newHarness(t, cfg, Deps{})

	_, err := h.counter.Count(context.Background(), sampleAPK(t))
	assert.NoError(t, err)
}

func TestCount_CountFailed(t *testing.T) {
	dexPath := testutil.WriteArtifact(t, "classes.dex", []byte("dex\n035\x00garbage"))

	cfg := testConfig(t)
	repo := newSQLiteRepo(t)
	h := newHarness(t, cfg, Deps{Runs: repo})

	res, err := h.counter.Count(context.Background(), dexPath)
	require.Error(t, err)
	assert.True(t, apperrors.IsCountFailed(err))
	assert.Nil(t, res)
	assert.Contains(t, h.logs.String(), "Error counting dex methods")
	assert.Empty(t, h.out.String(), "no report is printed")

	runs, err := repo.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusCountFailed, runs[0].Status)
}

func TestCount_MissingInput(t *testing.T) {
	h := newHarness(t, testConfig(t), Deps{})
	_, err := h.counter.Count(context.Background(), filepath.Join(t.TempDir(), "missing.apk"))
	assert.True(t, apperrors.IsNotFound(err))
}

func newSQLiteRepo(t *testing.T) repository.RunRepository {
	t.Helper()
	repos, err := repository.Open(context.Background(), &config.HistoryConfig{
		Enabled: true,
		Type:    "sqlite",
		Path:    filepath.Join(t.TempDir(), "history.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos.Runs
}

func TestCount_PublishRecordAndMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.TextfilePath = filepath.Join(t.TempDir(), "textfile", "dexcount.prom")

	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := newSQLiteRepo(t)
	h := newHarness(t, cfg, Deps{Storage: st, Runs: repo})

	res, err := h.counter.Count(context.Background(), sampleAPK(t))
	require.NoError(t, err)

	require.Len(t, res.URLs, 4)
	assert.Equal(t, res.URLs[res.Outputs.Report], res.Run.ReportURL)
	assert.Equal(t, res.URLs[res.TreeFile], res.Run.TreeURL)
	assert.True(t, testutil.FileExists(t, res.Run.ReportURL), "local storage URLs are paths")

	saved, err := repo.GetByID(context.Background(), res.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Methods)
	assert.Equal(t, res.Run.ReportURL, saved.ReportURL)
	assert.True(t, saved.Passed())

	prom, err := os.ReadFile(cfg.Metrics.TextfilePath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `dexcount_methods{artifact="app.apk",variant="release"} 3`)
}

func TestCount_PublishToRemoteStorage(t *testing.T) {
	st := &mock.MockStorage{}
	st.ExpectAnyUploadFile(nil).Times(4)
	st.ExpectGetURL("https://reports.example.com")
	h := newHarness(t, testConfig(t), Deps{Storage: st})

	res, err := h.counter.Count(context.Background(), sampleAPK(t))
	require.NoError(t, err)
	st.AssertExpectations(t)

	assert.Equal(t, "https://reports.example.com/dexcount/app/"+res.Run.ID+"/app.txt", res.Run.ReportURL)
	assert.Equal(t, "https://reports.example.com/dexcount/app/"+res.Run.ID+"/app.dxct", res.Run.TreeURL)
}

func TestCount_PublishFailureIsNotFatal(t *testing.T) {
	st := &mock.MockStorage{}
	st.ExpectAnyUploadFile(os.ErrPermission)
	h := newHarness(t, testConfig(t), Deps{Storage: st})

	res, err := h.counter.Count(context.Background(), sampleAPK(t))
	require.NoError(t, err)
	assert.Empty(t, res.Run.ReportURL)
	assert.Contains(t, h.logs.String(), "Failed to publish reports")
}

func TestCount_RecordFailureIsNotFatal(t *testing.T) {
	runs := &mock.MockRunRepository{}
	runs.ExpectCreate(model.RunStatusPassed, apperrors.New(apperrors.CodeDatabaseError, "database is locked"))
	h := newHarness(t, testConfig(t), Deps{Runs: runs})

	_, err := h.counter.Count(context.Background(), sampleAPK(t))
	require.NoError(t, err)
	runs.AssertExpectations(t)
	assert.Contains(t, h.logs.String(), "database is locked")
}

func TestCount_RecordsThresholdFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Count.MaxMethodCount = 2
	runs := &mock.MockRunRepository{}
	runs.ExpectCreate(model.RunStatusFailed, nil).Once()
	h := newHarness(t, cfg, Deps{Runs: runs})

	_, err := h.counter.Count(context.Background(), sampleAPK(t))
	assert.True(t, apperrors.IsThresholdExceeded(err))
	runs.AssertExpectations(t)
}

func TestCount_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	h := newHarness(t, testConfig(t), Deps{})
	_, err := h.counter.Count(context.Background(), sampleAPK(t))
	require.NoError(t, err)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{
		"dexcount.build_tree", "dexcount.extract", "dexcount.report", "dexcount.count",
	}, names)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		path     string
		runDexer bool
		want     artifactKind
	}{
		{"app.apk", true, artifactKind{referenced: true}},
		{"classes.dex", false, artifactKind{referenced: true}},
		{"lib.jar", true, artifactKind{declared: true}},
		{"lib.AAR", true, artifactKind{referenced: true, declared: true}},
		{"lib.aar", false, artifactKind{declared: true}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, kindOf(tt.path, tt.runDexer))
		})
	}
}

package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexcount/internal/packagetree"
	"github.com/dexcount/pkg/compression"
	apperrors "github.com/dexcount/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dexcount.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, "print:\n  format: list\n"))
	require.NoError(t, err)

	assert.Equal(t, "list", cfg.Print.Format)
	assert.True(t, cfg.Print.IncludeMethodCount)
	assert.True(t, cfg.Print.IncludeFieldCount)
	assert.False(t, cfg.Print.IncludeClasses)
	assert.Equal(t, 0, cfg.Count.MaxMethodCount)
	assert.Equal(t, "d8", cfg.Count.DexerPath)
	assert.Equal(t, 60*time.Second, cfg.DexerTimeout())
	assert.True(t, cfg.Count.IncludeSynthetic)
	assert.Equal(t, compression.TypeZstd, cfg.TreeCompression())
	assert.Equal(t, "none", cfg.Storage.Type)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_CustomValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
print:
  format: json
  include_classes: true
  include_class_count: true
  order_by_method_count: true
  max_tree_depth: 3
  print_header: true
count:
  max_method_count: 60000
  dexer_path: /opt/build-tools/d8
  dexer_timeout: 120
  mapping_file: build/mapping.txt
  teamcity: true
  teamcity_slug: App
  tree_compression: gzip
storage:
  type: cos
  bucket: test-bucket
  region: ap-guangzhou
  secret_id: test-id
  secret_key: test-key
history:
  enabled: true
  type: postgres
  host: db.example.com
  port: 5432
`))
	require.NoError(t, err)

	assert.Equal(t, packagetree.FormatJSON, cfg.OutputFormat())
	assert.Equal(t, 60000, cfg.Count.MaxMethodCount)
	assert.Equal(t, "/opt/build-tools/d8", cfg.Count.DexerPath)
	assert.Equal(t, 2*time.Minute, cfg.DexerTimeout())
	assert.Equal(t, "build/mapping.txt", cfg.Count.MappingFile)
	assert.True(t, cfg.Count.TeamCity)
	assert.Equal(t, compression.TypeGzip, cfg.TreeCompression())
	assert.Equal(t, "test-bucket", cfg.Storage.Bucket)
	assert.Equal(t, "db.example.com", cfg.History.Host)

	opts := cfg.PrintOptions()
	assert.Equal(t, packagetree.PrintOptions{
		IncludeClasses:     true,
		IncludeClassCount:  true,
		IncludeMethodCount: true,
		IncludeFieldCount:  true,
		OrderByMethodCount: true,
		MaxTreeDepth:       3,
		PrintHeader:        true,
		IsAndroidProject:   true,
	}, opts)
}

func TestPrintOptions_UnlimitedDepth(t *testing.T) {
	opts := Default().PrintOptions()
	assert.Equal(t, math.MaxInt32, opts.MaxTreeDepth)
	assert.Equal(t, packagetree.DefaultPrintOptions(), opts)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DEXCOUNT_COUNT_MAX_METHOD_COUNT", "100")
	t.Setenv("DEXCOUNT_PRINT_FORMAT", "yaml")

	cfg, err := Load(writeConfig(t, "count:\n  max_method_count: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Count.MaxMethodCount)
	assert.Equal(t, packagetree.FormatYAML, cfg.OutputFormat())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DEXCOUNT_COUNT_VARIANT=release\n"), 0644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		os.Chdir(wd)
		os.Unsetenv("DEXCOUNT_COUNT_VARIANT")
	})

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Count.Variant)
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/path/dexcount.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"format", "print:\n  format: xml\n", "invalid print.format"},
		{"depth", "print:\n  max_tree_depth: -1\n", "max_tree_depth"},
		{"max", "count:\n  max_method_count: -5\n", "max_method_count"},
		{"timeout", "count:\n  dexer_timeout: 0\n", "dexer_timeout"},
		{"compression", "count:\n  tree_compression: brotli\n", "tree_compression"},
		{"log format", "log:\n  format: xml\n", "unsupported log format"},
		{"storage", "storage:\n  type: s3\n", "unsupported storage type"},
		{"database", "history:\n  enabled: true\n  type: oracle\n", "unsupported database type"},
		{"database host", "history:\n  enabled: true\n  type: mysql\n  host: \"\"\n", "history.host is required"},
		{"malformed yaml", "print: [", "failed to read config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, apperrors.CodeConfigError, apperrors.GetErrorCode(err))
		})
	}
}

func TestValidate_HistoryDisabledSkipsDatabase(t *testing.T) {
	cfg := Default()
	cfg.History.Type = "oracle"
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader("yaml", []byte(`
history:
  enabled: true
  type: mysql
  host: mysql.local
storage:
  type: minio
  endpoint: localhost:9000
`))
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.History.Type)
	assert.Equal(t, "mysql.local", cfg.History.Host)
	assert.Equal(t, "localhost:9000", cfg.Storage.Endpoint)
}

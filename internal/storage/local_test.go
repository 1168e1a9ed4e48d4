package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dexcount/pkg/errors"
)

func TestNewLocalStorage(t *testing.T) {
	t.Run("CreatesDirectory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "reports")

		st, err := NewLocalStorage(path)
		require.NoError(t, err)
		assert.Equal(t, path, st.GetBasePath())

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("EmptyPathUsesDefault", func(t *testing.T) {
		origDir, err := os.Getwd()
		require.NoError(t, err)
		defer os.Chdir(origDir)
		require.NoError(t, os.Chdir(t.TempDir()))

		st, err := NewLocalStorage("")
		require.NoError(t, err)
		assert.Equal(t, "./dexcount-reports", st.GetBasePath())
	})
}

func TestLocalStorage_UploadAndDownload(t *testing.T) {
	ctx := context.Background()
	st, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	content := []byte("methods,fields,classes\n12,3,4\n")
	require.NoError(t, st.Upload(ctx, "app/run-1/summary.csv", bytes.NewReader(content)))

	rc, err := st.Download(ctx, "app/run-1/summary.csv")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Join(st.GetBasePath(), "app", "run-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalStorage_UploadFile(t *testing.T) {
	ctx := context.Background()
	st, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "app.txt")
	require.NoError(t, os.WriteFile(src, []byte("tree"), 0644))

	require.NoError(t, st.UploadFile(ctx, "app/run-1/app.txt", src))
	data, err := os.ReadFile(st.GetURL("app/run-1/app.txt"))
	require.NoError(t, err)
	assert.Equal(t, "tree", string(data))

	err = st.UploadFile(ctx, "missing", filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestLocalStorage_DownloadMissing(t *testing.T) {
	st, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = st.Download(context.Background(), "nope.txt")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestLocalStorage_Exists(t *testing.T) {
	ctx := context.Background()
	st, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, st.Upload(ctx, "exists.txt", bytes.NewReader(nil)))

	tests := []struct {
		key  string
		want bool
	}{
		{"exists.txt", true},
		{"notexists.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			ok, err := st.Exists(ctx, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestLocalStorage_CanceledContext(t *testing.T) {
	st, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, st.Upload(ctx, "a", bytes.NewReader(nil)), context.Canceled)
	_, err = st.Download(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = st.Exists(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalStorage_GetURL(t *testing.T) {
	dir := t.TempDir()
	st, err := NewLocalStorage(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "path", "to", "file.txt"), st.GetURL("path/to/file.txt"))
}

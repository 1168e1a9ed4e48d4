package deobfuscator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mapping = `# compiler: R8
# pg_map_id: 1a2b3c
com.foo.Bar -> a.a:
    int count -> a
    void baz() -> b
com.foo.Qux -> a.b:

not a mapping line
com.foo.Broken -> a.c
1bad.Start -> a.d:
`

func TestNewFromReader(t *testing.T) {
	d, err := NewFromReader(strings.NewReader(mapping))
	require.NoError(t, err)

	assert.Equal(t, 2, d.Len())

	tests := []struct {
		in   string
		want string
	}{
		{"a.a", "com.foo.Bar"},
		{"a.b", "com.foo.Qux"},
		{"a.a[]", "com.foo.Bar[]"},
		{"a.a[][]", "com.foo.Bar[][]"},
		{"a.c", "a.c"},
		{"a.d", "a.d"},
		{"java.lang.String", "java.lang.String"},
		{"int[]", "int[]"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Deobfuscate(tt.in))
		})
	}
}

func TestClassLineWithMemberLineIgnored(t *testing.T) {
	d, err := NewFromReader(strings.NewReader("a.b.C -> x.y.Z:\n    void foo() -> a\n"))
	require.NoError(t, err)

	assert.Equal(t, "a.b.C", d.Deobfuscate("x.y.Z"))
	assert.Equal(t, "x.y.Other", d.Deobfuscate("x.y.Other"))
	assert.Equal(t, 1, d.Len())
}

func TestWindowsLineEndings(t *testing.T) {
	d, err := NewFromReader(strings.NewReader("com.foo.Bar -> a.a:\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "com.foo.Bar", d.Deobfuscate("a.a"))
}

func TestNew(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		d, err := New("")
		require.NoError(t, err)
		assert.Same(t, Empty, d)
	})

	t.Run("missing file", func(t *testing.T) {
		d, err := New(filepath.Join(t.TempDir(), "mapping.txt"))
		require.NoError(t, err)
		assert.Same(t, Empty, d)
		assert.Equal(t, "a.a", d.Deobfuscate("a.a"))
	})

	t.Run("existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mapping.txt")
		require.NoError(t, os.WriteFile(path, []byte(mapping), 0644))

		d, err := New(path)
		require.NoError(t, err)
		assert.Equal(t, "com.foo.Qux", d.Deobfuscate("a.b"))
	})

	t.Run("directory", func(t *testing.T) {
		d, err := New(t.TempDir())
		assert.Error(t, err)
		assert.Same(t, Empty, d)
	})
}

func TestNilAndEmpty(t *testing.T) {
	var d *Deobfuscator
	assert.Equal(t, "a.b", d.Deobfuscate("a.b"))
	assert.Equal(t, 0, d.Len())
	assert.Equal(t, "a.b", Empty.Deobfuscate("a.b"))
}

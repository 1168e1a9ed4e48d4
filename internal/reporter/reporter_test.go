package reporter

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexcount/internal/packagetree"
	apperrors "github.com/dexcount/pkg/errors"
	"github.com/dexcount/pkg/model"
	"github.com/dexcount/pkg/utils"
)

func sampleTree() *packagetree.PackageTree {
	tree := packagetree.New(nil)
	tree.AddMethodRef(model.NewMethodRef("Lcom/foo/Bar;", "baz", nil, "V"))
	tree.AddMethodRef(model.NewMethodRef("Lcom/foo/Bar;", "qux", []string{"I"}, "V"))
	tree.AddFieldRef(model.FieldRef{DeclClass: "Lcom/foo/Bar;", Name: "x", Type: "I"})
	return tree
}

func defaultOptions() Options {
	return Options{
		Format:  packagetree.FormatList,
		Print:   packagetree.DefaultPrintOptions(),
		Variant: "release",
		Version: "1.0.0",
	}
}

func report(t *testing.T, tree *packagetree.PackageTree, opts Options) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	err := New(tree, "app.apk", opts, &buf, nil).Report()
	return buf.String(), err
}

func TestReport_Summary(t *testing.T) {
	out, err := report(t, sampleTree(), defaultOptions())
	require.NoError(t, err)

	want := "Total methods in app.apk: 2 (0.00% used)\n" +
		"Total fields in app.apk: 1 (0.00% used)\n" +
		"Total classes in app.apk: 1 (0.00% used)\n" +
		"Methods remaining in app.apk: 65533\n" +
		"Fields remaining in app.apk: 65534\n" +
		"Classes remaining in app.apk: 65534\n"
	assert.Equal(t, want, out)
}

func TestReport_Preamble(t *testing.T) {
	opts := defaultOptions()
	opts.Print.PrintHeader = true

	out, err := report(t, sampleTree(), opts)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out,
		"Dexcount name:    dexcount\nDexcount version: 1.0.0\nDexcount input:   app.apk\n"), out)
}

func TestReport_NonAndroidOmitsRemaining(t *testing.T) {
	tree := packagetree.New(nil)
	tree.AddDeclaredMethodRef(model.NewMethodRef("Lcom/foo/Bar;", "baz", nil, "V"))

	opts := defaultOptions()
	opts.Print.IsAndroidProject = false

	out, err := report(t, tree, opts)
	require.NoError(t, err)
	assert.Contains(t, out, "Total methods in app.apk: 1 (0.00% used)\n")
	assert.NotContains(t, out, "remaining")
}

func TestReport_TeamCity(t *testing.T) {
	tests := []struct {
		name     string
		teamCity bool
		slug     string
		prefix   string
	}{
		{"flag", true, "", "Dexcount_release"},
		{"slug", false, "My App", "Dexcount_My_App_release"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOptions()
			opts.TeamCity = tt.teamCity
			opts.TeamCitySlug = tt.slug

			out, err := report(t, sampleTree(), opts)
			require.NoError(t, err)
			assert.Contains(t, out,
				"##teamcity[buildStatisticValue key='"+tt.prefix+"_ClassCount' value='1']\n"+
					"##teamcity[buildStatisticValue key='"+tt.prefix+"_MethodCount' value='2']\n"+
					"##teamcity[buildStatisticValue key='"+tt.prefix+"_FieldCount' value='1']\n")
		})
	}

	out, err := report(t, sampleTree(), defaultOptions())
	require.NoError(t, err)
	assert.NotContains(t, out, "##teamcity")
}

func TestReport_Verbose(t *testing.T) {
	opts := defaultOptions()
	opts.Verbose = true

	out, err := report(t, sampleTree(), opts)
	require.NoError(t, err)
	assert.Contains(t, out, "com.foo\n")
}

func TestReport_TreeGoesToDebugLog(t *testing.T) {
	var logs bytes.Buffer
	logger := utils.NewDefaultLogger(utils.LevelDebug, &logs)

	var out bytes.Buffer
	require.NoError(t, New(sampleTree(), "app.apk", defaultOptions(), &out, logger).Report())
	assert.NotContains(t, out.String(), "com.foo")
	assert.Contains(t, logs.String(), "com.foo")

	logs.Reset()
	logger.SetLevel(utils.LevelInfo)
	require.NoError(t, New(sampleTree(), "app.apk", defaultOptions(), &out, logger).Report())
	assert.Empty(t, logs.String())
}

func TestReport_Threshold(t *testing.T) {
	opts := defaultOptions()
	opts.MaxMethodCount = 1

	out, err := report(t, sampleTree(), opts)
	require.Error(t, err)
	assert.True(t, apperrors.IsThresholdExceeded(err))
	assert.Equal(t, "The current APK has 2 methods, the current max is: 1.", apperrors.GetErrorMessage(err))
	assert.Contains(t, out, "Total methods in app.apk: 2", "summary is printed before failing")
}

func TestCheckThreshold(t *testing.T) {
	tests := []struct {
		name    string
		methods int
		max     int
		fail    bool
	}{
		{"disabled", 100000, 0, false},
		{"below", 10, 11, false},
		{"equal", 11, 11, false},
		{"above", 12, 11, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckThreshold(tt.methods, tt.max)
			if tt.fail {
				assert.True(t, apperrors.IsThresholdExceeded(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMultidexWarning(t *testing.T) {
	tree := packagetree.New(nil)
	for i := 0; i <= MaxDexRefs; i++ {
		tree.AddMethodRef(model.NewMethodRef("Lcom/foo/Bar;", fmt.Sprintf("m%d", i), nil, "V"))
	}

	var logs, out bytes.Buffer
	logger := utils.NewDefaultLogger(utils.LevelInfo, &logs)
	require.NoError(t, New(tree, "app.apk", defaultOptions(), &out, logger).Report())

	assert.Contains(t, out.String(), "Total methods in app.apk: 65536 (100.00% used)\n")
	assert.Contains(t, out.String(), "Methods remaining in app.apk: 0\n")
	assert.Contains(t, logs.String(), "multidex")
}

func TestPercentUsed(t *testing.T) {
	assert.Equal(t, "0.00", percentUsed(0))
	assert.Equal(t, "50.00", percentUsed(32767))
	assert.Equal(t, "100.00", percentUsed(MaxDexRefs))
}

func TestTeamCityPrefix(t *testing.T) {
	assert.Equal(t, "Dexcount_debug", TeamCityPrefix("", "debug"))
	assert.Equal(t, "Dexcount_a_b_c_debug", TeamCityPrefix("a b c", "debug"))
}

package source

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dexcount/internal/parser"
	"github.com/dexcount/internal/parser/classfile"
	"github.com/dexcount/internal/parser/dex"
	apperrors "github.com/dexcount/pkg/errors"
	"github.com/dexcount/pkg/utils"
)

// DefaultMinSdk is used when an AAR manifest declares no minSdkVersion.
const DefaultMinSdk = 13

var (
	classesDexPattern = regexp.MustCompile(`^(.*/)*classes.*\.dex$`)
	classesJarPattern = regexp.MustCompile(`^(.*/)*classes\.jar$`)
	minSdkPattern     = regexp.MustCompile(`android:minSdkVersion="(\d+)"`)

	zipMagic = []byte("PK\x03\x04")
)

// Options controls extraction.
type Options struct {
	// Dexer converts an AAR's classes.jar. Nil uses d8 from PATH.
	Dexer *Dexer
	// Class selects which declared members of JAR classes are kept.
	Class classfile.Options
	// TempDir is where zip entries are extracted. Empty means os.TempDir.
	TempDir string
	Logger  utils.Logger
}

// DefaultOptions returns options with the default dexer and class options.
func DefaultOptions() Options {
	return Options{
		Class:  classfile.DefaultOptions(),
		Logger: &utils.NullLogger{},
	}
}

func (o *Options) logger() utils.Logger {
	if o.Logger == nil {
		return &utils.NullLogger{}
	}
	return o.Logger
}

// Extract opens the artifact at path and returns its source files. The
// caller owns the result and must Close every file, e.g. with CloseAll.
//
//   - .apk and other zip containers yield one DexFile per classes*.dex entry
//   - .aar is converted with the dexer
//   - .dex, or anything starting with the DEX magic, is parsed directly
//   - .jar yields a single JarFile of declared members
func Extract(ctx context.Context, path string, opts Options) ([]SourceFile, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(apperrors.CodeNotFound, "input not found: "+path, err)
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".aar":
		return extractFromAAR(ctx, path, opts)
	case ".jar":
		jar, err := ExtractDeclared(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		return []SourceFile{jar}, nil
	case ".dex":
		return openDex(path)
	case ".apk", ".zip":
		return extractFromZip(ctx, path, opts)
	}

	head, err := readHead(path, 8)
	if err != nil {
		return nil, err
	}
	switch {
	case bytes.HasPrefix(head, zipMagic):
		return extractFromZip(ctx, path, opts)
	case dex.HasMagic(head):
		return openDex(path)
	default:
		return nil, apperrors.Wrap(apperrors.CodeUnsupportedInput, "unsupported input "+path,
			fmt.Errorf("expected an apk, aar, jar or dex file"))
	}
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

// countFailed marks malformed input so the report boundary can tell it apart
// from environment failures.
func countFailed(name string, err error) error {
	if parser.IsFormatError(err) {
		return apperrors.Wrap(apperrors.CodeCountFailed, "malformed "+name, err)
	}
	return err
}

func openDex(path string) ([]SourceFile, error) {
	f, err := OpenDexFile(path, false)
	if err != nil {
		return nil, countFailed(filepath.Base(path), err)
	}
	return []SourceFile{f}, nil
}

func extractFromZip(ctx context.Context, path string, opts Options) ([]SourceFile, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer zr.Close()

	var files []SourceFile
	for _, entry := range zr.File {
		if !classesDexPattern.MatchString(entry.Name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			CloseAll(files)
			return nil, err
		}

		tmp, err := extractEntry(entry, opts.TempDir, "classes-*.dex")
		if err != nil {
			CloseAll(files)
			return nil, err
		}
		df, err := OpenDexFile(tmp, true)
		if err != nil {
			CloseAll(files)
			return nil, countFailed(entry.Name, err)
		}
		files = append(files, df)
	}

	opts.logger().Debug("Extracted %d dex files from %s", len(files), filepath.Base(path))
	return files, nil
}

// extractEntry copies a zip entry into a new temp file and returns its path.
func extractEntry(entry *zip.File, dir, pattern string) (string, error) {
	rc, err := entry.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", entry.Name, err)
	}
	defer rc.Close()

	out, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fmt.Errorf("failed to extract %s: %w", entry.Name, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

// aarContents is what the AAR path needs from the archive.
type aarContents struct {
	minSdk     int
	classesJar string
}

// scanAAR extracts classes.jar into dir and reads minSdkVersion from the
// manifest.
func scanAAR(path, dir string) (*aarContents, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer zr.Close()

	c := &aarContents{minSdk: DefaultMinSdk}
	for _, entry := range zr.File {
		switch {
		case entry.Name == "AndroidManifest.xml":
			if v, ok := readMinSdk(entry); ok {
				c.minSdk = v
			}
		case classesJarPattern.MatchString(entry.Name):
			jar, err := extractEntry(entry, dir, "classes-*.jar")
			if err != nil {
				return nil, err
			}
			c.classesJar = jar
		}
	}

	if c.classesJar == "" {
		return nil, apperrors.Newf(apperrors.CodeUnsupportedInput, "no classes.jar entry found in %s", path)
	}
	return c, nil
}

func readMinSdk(entry *zip.File) (int, bool) {
	rc, err := entry.Open()
	if err != nil {
		return 0, false
	}
	defer rc.Close()

	text, err := io.ReadAll(rc)
	if err != nil {
		return 0, false
	}
	m := minSdkPattern.FindSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, false
	}
	return v, true
}

func extractFromAAR(ctx context.Context, path string, opts Options) ([]SourceFile, error) {
	work, err := os.MkdirTemp(opts.TempDir, "dexcount-aar-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(work)

	contents, err := scanAAR(path, work)
	if err != nil {
		return nil, err
	}

	outDir := filepath.Join(work, "dex")
	if err := os.Mkdir(outDir, 0o755); err != nil {
		return nil, err
	}

	dexer := opts.Dexer
	if dexer == nil {
		dexer = NewDexer("", WithDexerLogger(opts.logger()))
	}
	if err := dexer.Dex(ctx, contents.classesJar, outDir, contents.minSdk); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, err
	}

	// The DEX files are read fully into memory, so they can go with the
	// work dir.
	var files []SourceFile
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		df, err := OpenDexFile(filepath.Join(outDir, e.Name()), false)
		if err != nil {
			CloseAll(files)
			return nil, countFailed(e.Name(), err)
		}
		files = append(files, df)
	}
	if len(files) == 0 {
		return nil, apperrors.Newf(apperrors.CodeDexerFailed, "dexer produced no dex files for %s", filepath.Base(path))
	}

	opts.logger().Debug("Dexed %s (min sdk %d) into %d files", filepath.Base(path), contents.minSdk, len(files))
	return files, nil
}

// ExtractDeclared reads members declared by the classes of a JAR, or of the
// classes.jar inside an AAR.
func ExtractDeclared(ctx context.Context, path string, opts Options) (*JarFile, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jar":
		return declaredFromJar(ctx, path, opts)
	case ".aar":
		work, err := os.MkdirTemp(opts.TempDir, "dexcount-aar-")
		if err != nil {
			return nil, fmt.Errorf("failed to create work dir: %w", err)
		}
		defer os.RemoveAll(work)

		contents, err := scanAAR(path, work)
		if err != nil {
			return nil, err
		}
		return declaredFromJar(ctx, contents.classesJar, opts)
	default:
		return nil, apperrors.Newf(apperrors.CodeUnsupportedInput, "declared members need a jar or aar, got %s", filepath.Base(path))
	}
}

func declaredFromJar(ctx context.Context, path string, opts Options) (*JarFile, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer zr.Close()

	var refs parser.Refs
	classes := 0
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() || !strings.HasSuffix(entry.Name, ".class") {
			continue
		}
		// module descriptors are not classes
		if filepath.Base(entry.Name) == "module-info.class" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cls, err := parseClassEntry(entry)
		if err != nil {
			return nil, countFailed(entry.Name, err)
		}
		refs.Append(cls.DeclaredRefs(opts.Class))
		classes++
	}

	opts.logger().Debug("Read %d classes from %s", classes, filepath.Base(path))
	return NewJarFile(refs), nil
}

func parseClassEntry(entry *zip.File) (*classfile.Class, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return classfile.Parse(rc)
}

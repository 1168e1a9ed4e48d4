package source

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/dexcount/pkg/errors"
	"github.com/dexcount/pkg/utils"
)

const (
	defaultDexerPath    = "d8"
	defaultDexerTimeout = 60 * time.Second

	// pipeCloseDelay bounds how long output is drained after the deadline,
	// e.g. when a launcher left a child holding the pipes.
	pipeCloseDelay = 2 * time.Second
)

// DexerResult is the outcome of one dexer invocation.
type DexerResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Elapsed  time.Duration
}

// Dexer converts JVM bytecode to DEX by running an external tool such as
// d8. Invocations are synchronous and bounded by a timeout.
type Dexer struct {
	path    string
	timeout time.Duration
	logger  utils.Logger
}

// DexerOption configures a Dexer.
type DexerOption func(*Dexer)

// WithDexerTimeout bounds each invocation.
func WithDexerTimeout(d time.Duration) DexerOption {
	return func(x *Dexer) {
		if d > 0 {
			x.timeout = d
		}
	}
}

// WithDexerLogger sets the logger used for process output.
func WithDexerLogger(l utils.Logger) DexerOption {
	return func(x *Dexer) {
		if l != nil {
			x.logger = l
		}
	}
}

// NewDexer creates a Dexer for the executable at path. An empty path means
// "d8" on PATH.
func NewDexer(path string, opts ...DexerOption) *Dexer {
	if path == "" {
		path = defaultDexerPath
	}
	d := &Dexer{
		path:    path,
		timeout: defaultDexerTimeout,
		logger:  &utils.NullLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Timeout returns the per-invocation limit.
func (d *Dexer) Timeout() time.Duration { return d.timeout }

// Run executes the dexer with args. Stdout and stderr are drained line by
// line while the process runs. A non-zero exit or a timeout is reported in
// the result, not as an error; the error is reserved for failing to start.
//
// On timeout the whole process group is killed, so wrapper scripts cannot
// leave a running child behind.
func (d *Dexer) Run(ctx context.Context, args ...string) (*DexerResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.path, args...)
	killProcessGroup(cmd)
	cmd.WaitDelay = pipeCloseDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDexerFailed, "failed to start dexer "+d.path, err)
	}

	drained := make(chan struct{})
	go func() {
		select {
		case <-drained:
		case <-ctx.Done():
			select {
			case <-drained:
			case <-time.After(pipeCloseDelay):
				stdout.Close()
				stderr.Close()
			}
		}
	}()

	var outBuf, errBuf strings.Builder
	var g errgroup.Group
	g.Go(func() error { return drainLines(stdout, &outBuf) })
	g.Go(func() error { return drainLines(stderr, &errBuf) })
	drainErr := g.Wait()
	close(drained)
	waitErr := cmd.Wait()

	result := &DexerResult{
		Stdout:  outBuf.String(),
		Stderr:  errBuf.String(),
		Elapsed: time.Since(start),
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		return result, nil
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return result, waitErr
		}
		result.ExitCode = exitErr.ExitCode()
	}
	if drainErr != nil {
		d.logger.Warn("Incomplete dexer output: %v", drainErr)
	}
	return result, nil
}

func drainLines(r io.Reader, sb *strings.Builder) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		sb.WriteString(sc.Text())
		sb.WriteByte('\n')
	}
	return sc.Err()
}

// Dex converts the classes in jarPath into DEX files under outDir.
func (d *Dexer) Dex(ctx context.Context, jarPath, outDir string, minSdk int) error {
	d.logger.Debug("Running %s on %s (min api %d)", d.path, jarPath, minSdk)

	result, err := d.Run(ctx, "--min-api", strconv.Itoa(minSdk), "--output", outDir, jarPath)
	if err != nil {
		return err
	}
	if result.Stdout != "" {
		d.logger.Debug("dexer stdout:\n%s", result.Stdout)
	}
	if result.TimedOut {
		return apperrors.Newf(apperrors.CodeDexerTimeout,
			"dexer timed out after %d seconds", int(d.timeout/time.Second))
	}
	if result.ExitCode != 0 {
		return apperrors.Newf(apperrors.CodeDexerFailed,
			"dexer exited with exit code %d\nstderr=%s", result.ExitCode, result.Stderr)
	}
	d.logger.Debug("Dexer finished in %s", result.Elapsed)
	return nil
}

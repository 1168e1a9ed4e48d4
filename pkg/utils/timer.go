package utils

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Phase is one timed step of a run.
type Phase struct {
	Name     string
	Start    time.Time
	Duration time.Duration
	done     bool
}

// PhaseTimer stops a phase started by Timer.Start.
type PhaseTimer struct {
	timer *Timer
	name  string
}

// Stop records the phase duration. Only the first call has effect.
func (pt *PhaseTimer) Stop() time.Duration {
	return pt.timer.stop(pt.name)
}

// Timer records the duration of the sequential phases of a count run,
// such as extract, build_tree and report.
type Timer struct {
	mu     sync.Mutex
	name   string
	clock  Clock
	start  time.Time
	phases []*Phase
}

// TimerOption configures a Timer.
type TimerOption func(*Timer)

// WithClock replaces the system clock.
func WithClock(c Clock) TimerOption {
	return func(t *Timer) {
		if c != nil {
			t.clock = c
		}
	}
}

// NewTimer creates a Timer whose total starts now.
func NewTimer(name string, opts ...TimerOption) *Timer {
	t := &Timer{name: name, clock: RealClock{}}
	for _, opt := range opts {
		opt(t)
	}
	t.start = t.clock.Now()
	return t
}

// Start begins a phase. Starting a name twice times it again.
func (t *Timer) Start(name string) *PhaseTimer {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p := t.find(name); p != nil {
		p.Start, p.Duration, p.done = t.clock.Now(), 0, false
	} else {
		t.phases = append(t.phases, &Phase{Name: name, Start: t.clock.Now()})
	}
	return &PhaseTimer{timer: t, name: name}
}

func (t *Timer) find(name string) *Phase {
	for _, p := range t.phases {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (t *Timer) stop(name string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.find(name)
	if p == nil {
		return 0
	}
	if !p.done {
		p.Duration = t.clock.Since(p.Start)
		p.done = true
	}
	return p.Duration
}

// Measure times fn as phase name and returns its error.
func (t *Timer) Measure(name string, fn func() error) error {
	pt := t.Start(name)
	defer pt.Stop()
	return fn()
}

// Duration returns the recorded duration of a finished phase.
func (t *Timer) Duration(name string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p := t.find(name); p != nil {
		return p.Duration
	}
	return 0
}

// Total returns the time since the timer was created.
func (t *Timer) Total() time.Duration {
	return t.clock.Since(t.start)
}

// Phases returns copies of the phases in start order.
func (t *Timer) Phases() []Phase {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Phase, len(t.phases))
	for i, p := range t.phases {
		out[i] = *p
	}
	return out
}

// Fields returns the phase durations in milliseconds, keyed "<phase>_ms",
// for structured log entries.
func (t *Timer) Fields() map[string]interface{} {
	fields := map[string]interface{}{"total_ms": t.Total().Milliseconds()}
	for _, p := range t.Phases() {
		fields[p.Name+"_ms"] = p.Duration.Milliseconds()
	}
	return fields
}

// Summary renders one line per phase followed by the total.
func (t *Timer) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== %s timing ===\n", t.name)
	for i, p := range t.Phases() {
		fmt.Fprintf(&sb, "%d. %s: %v\n", i+1, p.Name, p.Duration)
	}
	fmt.Fprintf(&sb, "Total: %v\n", t.Total())
	return sb.String()
}

// LogSummary writes the summary to logger at debug level.
func (t *Timer) LogSummary(logger Logger) {
	if logger == nil {
		return
	}
	for _, line := range strings.Split(strings.TrimSuffix(t.Summary(), "\n"), "\n") {
		logger.Debug("%s", line)
	}
}

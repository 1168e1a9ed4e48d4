package utils

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockTimer() (*Timer, *MockClock) {
	clock := NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewTimer("count", WithClock(clock)), clock
}

func TestTimer_Phases(t *testing.T) {
	timer, clock := newMockTimer()

	extract := timer.Start("extract")
	clock.Advance(200 * time.Millisecond)
	assert.Equal(t, 200*time.Millisecond, extract.Stop())

	clock.Advance(time.Second)
	assert.Equal(t, 200*time.Millisecond, extract.Stop(), "second stop is ignored")

	build := timer.Start("build_tree")
	clock.Advance(50 * time.Millisecond)
	build.Stop()

	phases := timer.Phases()
	require.Len(t, phases, 2)
	assert.Equal(t, "extract", phases[0].Name)
	assert.Equal(t, "build_tree", phases[1].Name)
	assert.Equal(t, 50*time.Millisecond, timer.Duration("build_tree"))
	assert.Equal(t, time.Duration(0), timer.Duration("missing"))
	assert.Equal(t, 1250*time.Millisecond, timer.Total())
}

func TestTimer_Restart(t *testing.T) {
	timer, clock := newMockTimer()
	timer.Start("report")
	clock.Advance(time.Second)
	pt := timer.Start("report")
	clock.Advance(time.Millisecond)
	pt.Stop()

	assert.Len(t, timer.Phases(), 1)
	assert.Equal(t, time.Millisecond, timer.Duration("report"))
}

func TestTimer_Measure(t *testing.T) {
	timer, clock := newMockTimer()
	boom := errors.New("boom")

	err := timer.Measure("publish", func() error {
		clock.Advance(3 * time.Second)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3*time.Second, timer.Duration("publish"))
}

func TestTimer_FieldsAndSummary(t *testing.T) {
	timer, clock := newMockTimer()
	require.NoError(t, timer.Measure("extract", func() error {
		clock.Advance(1500 * time.Millisecond)
		return nil
	}))

	assert.Equal(t, map[string]interface{}{
		"total_ms":   int64(1500),
		"extract_ms": int64(1500),
	}, timer.Fields())
	assert.Equal(t, "=== count timing ===\n1. extract: 1.5s\nTotal: 1.5s\n", timer.Summary())

	var buf bytes.Buffer
	timer.LogSummary(NewDefaultLogger(LevelDebug, &buf))
	assert.Contains(t, buf.String(), "1. extract: 1.5s")

	timer.LogSummary(nil)
}

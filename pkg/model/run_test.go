package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountRun(t *testing.T) {
	tests := []struct {
		name      string
		run       CountRun
		passed    bool
		remaining int
	}{
		{"no threshold", CountRun{Methods: 70000, Status: RunStatusPassed}, true, 0},
		{"under", CountRun{Methods: 100, MaxMethodCount: 150, Status: RunStatusPassed}, true, 50},
		{"over", CountRun{Methods: 2, MaxMethodCount: 1, Status: RunStatusFailed}, false, -1},
		{"count failed", CountRun{Status: RunStatusCountFailed}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.passed, tt.run.Passed())
			assert.Equal(t, tt.remaining, tt.run.Remaining())
		})
	}
}

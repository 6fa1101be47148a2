package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []ActionStatus
		want     FiringStatus
	}{
		{
			name:     "all succeeded",
			statuses: []ActionStatus{ActionStatusSucceeded, ActionStatusSucceeded},
			want:     FiringStatusSuccess,
		},
		{
			name:     "no actions",
			statuses: nil,
			want:     FiringStatusSuccess,
		},
		{
			name:     "all skipped",
			statuses: []ActionStatus{ActionStatusSkipped, ActionStatusSkipped},
			want:     FiringStatusSuccess,
		},
		{
			name:     "mixed success and failure",
			statuses: []ActionStatus{ActionStatusSucceeded, ActionStatusFailed, ActionStatusSucceeded},
			want:     FiringStatusPartial,
		},
		{
			name:     "all failed",
			statuses: []ActionStatus{ActionStatusFailed, ActionStatusFailed},
			want:     FiringStatusFailed,
		},
		{
			name:     "failed plus skipped",
			statuses: []ActionStatus{ActionStatusFailed, ActionStatusSkipped},
			want:     FiringStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]ActionResult, len(tt.statuses))
			for i, status := range tt.statuses {
				results[i] = ActionResult{Index: i, Status: status}
			}

			assert.Equal(t, tt.want, AggregateStatus(results))
		})
	}
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, 0, ProgressPercent(0, 0))
	assert.Equal(t, 50, ProgressPercent(1, 2))
	assert.Equal(t, 33, ProgressPercent(1, 3))
	assert.Equal(t, 67, ProgressPercent(2, 3))
	assert.Equal(t, 100, ProgressPercent(3, 3))
}

package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestBackoff_Ladder(t *testing.T) {
	testCases := []struct {
		name     string
		attempts int
		expected time.Duration
	}{
		{"first attempt", 1, 60 * time.Second},
		{"second attempt", 2, 300 * time.Second},
		{"third attempt", 3, 900 * time.Second},
		{"fourth attempt", 4, 3600 * time.Second},
		{"fifth attempt", 5, 7200 * time.Second},
		{"past the ladder clamps", 6, 7200 * time.Second},
		{"far past the ladder clamps", 42, 7200 * time.Second},
		{"zero clamps to first rung", 0, 60 * time.Second},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Backoff(tc.attempts))
		})
	}
}

func TestNewQueueItem_DueImmediately(t *testing.T) {
	tenantID := uuid.New()
	item := NewQueueItem(uuid.New(), tenantID, "plan-pro", "IE", 3)

	assert.Equal(t, StatusPending, item.Status)
	assert.Equal(t, 0, item.Attempts)
	assert.Equal(t, 3, item.NumbersRequested)
	assert.WithinDuration(t, time.Now().UTC(), item.NextRetryAt, time.Second)
}

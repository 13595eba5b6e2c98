package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCurrentBatchMapping(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want int
	}{
		{"even hour first half", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), 1},
		{"even hour second half", time.Date(2026, 3, 2, 0, 45, 0, 0, time.UTC), 2},
		{"odd hour first half", time.Date(2026, 3, 2, 1, 10, 0, 0, time.UTC), 3},
		{"odd hour second half", time.Date(2026, 3, 2, 1, 40, 0, 0, time.UTC), 4},
		{"half boundary", time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC), 2},
		{"just before boundary", time.Date(2026, 3, 2, 14, 29, 59, 0, time.UTC), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrentBatch(tt.at))
		})
	}
}

func TestCurrentBatchRange(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		for _, minute := range []int{0, 15, 29, 30, 45, 59} {
			at := time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
			batch := CurrentBatch(at)
			assert.GreaterOrEqual(t, batch, 1)
			assert.LessOrEqual(t, batch, BatchCount)
		}
	}
}

func TestCurrentBatchStableWithinMinute(t *testing.T) {
	base := time.Date(2026, 3, 2, 7, 42, 0, 0, time.UTC)
	want := CurrentBatch(base)
	for sec := 0; sec < 60; sec += 7 {
		assert.Equal(t, want, CurrentBatch(base.Add(time.Duration(sec)*time.Second)))
	}
}

func TestCurrentBatchUsesUTC(t *testing.T) {
	zone := time.FixedZone("UTC+5", 5*3600)
	// 03:10 local is 22:10 UTC the previous day: even hour, first half
	local := time.Date(2026, 3, 3, 3, 10, 0, 0, zone)
	assert.Equal(t, 1, CurrentBatch(local))
}

func TestRandomBatchRange(t *testing.T) {
	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		batch := RandomBatch()
		assert.GreaterOrEqual(t, batch, 1)
		assert.LessOrEqual(t, batch, BatchCount)
		seen[batch] = true
	}
	assert.Len(t, seen, BatchCount)
}

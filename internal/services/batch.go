package services

import (
	"math/rand"
	"time"
)

// BatchCount is the number of partitions scheduled work is staggered over
const BatchCount = 4

// CurrentBatch partitions wall-clock time into one of four batches: the
// half-hour of the UTC hour crossed with hour parity. It depends on nothing
// but the clock, so every replica computes the same batch for the same
// minute without coordination. Clock skew at a boundary can make a
// workspace run zero or two times in a window; resets are idempotent, so
// that is tolerated.
func CurrentBatch(now time.Time) int {
	utc := now.UTC()

	half := 0
	if utc.Minute() >= 30 {
		half = 1
	}
	parity := utc.Hour() % 2

	return parity*2 + half + 1
}

// RandomBatch assigns a workspace its persisted batch id at creation so
// each partition carries an even share of workspaces over a full cycle.
func RandomBatch() int {
	return rand.Intn(BatchCount) + 1
}

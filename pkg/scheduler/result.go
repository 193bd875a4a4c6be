package scheduler

import (
	"time"

	"github.com/harun/dispatch/pkg/toolcall"
)

// BatchResult aggregates the terminal outcome of every record in a batch,
// in the original request order.
type BatchResult struct {
	BatchID   string            `json:"batch_id"`
	Results   []toolcall.Result `json:"results"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   time.Time         `json:"ended_at"`
}

// Duration returns the wall-clock time the batch was in flight.
func (r BatchResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Counts tallies records by terminal state.
func (r BatchResult) Counts() map[toolcall.State]int {
	counts := make(map[toolcall.State]int, 3)
	for _, res := range r.Results {
		counts[res.State]++
	}
	return counts
}

// Failed reports whether any record ended in error.
func (r BatchResult) Failed() bool {
	for _, res := range r.Results {
		if res.State == toolcall.StateError {
			return true
		}
	}
	return false
}

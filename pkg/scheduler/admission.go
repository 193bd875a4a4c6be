package scheduler

import (
	"sort"
	"sync"
)

// ticket represents one scheduled record waiting for an execution slot.
// admitted is closed exactly once, when the controller grants the slot.
type ticket struct {
	id        string
	seq       int
	exclusive bool
	admitted  chan struct{}
}

// admissionController enforces the concurrency policy over scheduled
// records: any number of read-only calls may execute together, an exclusive
// call executes alone, and request order breaks ties between eligible calls.
// A blocked exclusive ticket never holds back later read-only ones.
type admissionController struct {
	mu              sync.Mutex
	pending         []*ticket
	executing       map[string]bool
	exclusiveActive bool
}

func newAdmissionController() *admissionController {
	return &admissionController{executing: make(map[string]bool)}
}

// enqueue registers a scheduled record. The caller blocks on the returned
// ticket's admitted channel until the controller grants a slot.
func (ac *admissionController) enqueue(id string, seq int, exclusive bool) *ticket {
	t := &ticket{id: id, seq: seq, exclusive: exclusive, admitted: make(chan struct{})}

	ac.mu.Lock()
	defer ac.mu.Unlock()
	idx := sort.Search(len(ac.pending), func(i int) bool { return ac.pending[i].seq > seq })
	ac.pending = append(ac.pending, nil)
	copy(ac.pending[idx+1:], ac.pending[idx:])
	ac.pending[idx] = t
	ac.admitLocked()
	return t
}

// withdraw removes a ticket that will never execute. It reports false when
// the ticket was already admitted; the caller must release the slot instead.
func (ac *admissionController) withdraw(t *ticket) bool {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	for i, p := range ac.pending {
		if p == t {
			ac.pending = append(ac.pending[:i], ac.pending[i+1:]...)
			return true
		}
	}
	return false
}

// release frees the slot held by an executing record and re-runs admission
// over everything still pending.
func (ac *admissionController) release(id string) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	exclusive, ok := ac.executing[id]
	if !ok {
		return
	}
	delete(ac.executing, id)
	if exclusive {
		ac.exclusiveActive = false
	}
	ac.admitLocked()
}

// executingCount reports how many records currently hold a slot.
func (ac *admissionController) executingCount() int {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return len(ac.executing)
}

// admitLocked walks pending tickets in request order and admits every one
// the policy allows, skipping over blocked tickets rather than stopping.
func (ac *admissionController) admitLocked() {
	remaining := ac.pending[:0]
	for _, t := range ac.pending {
		if !ac.eligibleLocked(t) {
			remaining = append(remaining, t)
			continue
		}
		ac.executing[t.id] = t.exclusive
		if t.exclusive {
			ac.exclusiveActive = true
		}
		close(t.admitted)
	}
	ac.pending = remaining
}

func (ac *admissionController) eligibleLocked(t *ticket) bool {
	if t.exclusive {
		return len(ac.executing) == 0
	}
	return !ac.exclusiveActive
}

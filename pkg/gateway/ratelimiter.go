package gateway

import (
	"sync"
	"time"
)

const (
	defaultRequestsPerMinute    = 60
	defaultConcurrentRequests   = 10
	rateLimiterCleanupThreshold = time.Minute
)

// ClientRateLimiter enforces per-client request budgets with a sliding
// one-minute window plus a cap on in-flight requests.
type ClientRateLimiter struct {
	mu                 sync.Mutex
	requestTimes       []time.Time
	concurrentRequests int
	requestsPerMinute  int
	maxConcurrent      int
}

// NewClientRateLimiter creates a rate limiter with default limits
func NewClientRateLimiter() *ClientRateLimiter {
	return NewClientRateLimiterWithLimits(defaultRequestsPerMinute, defaultConcurrentRequests)
}

// NewClientRateLimiterWithLimits creates a rate limiter with custom limits
func NewClientRateLimiterWithLimits(requestsPerMinute, maxConcurrent int) *ClientRateLimiter {
	return &ClientRateLimiter{
		requestTimes:      make([]time.Time, 0, requestsPerMinute),
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
	}
}

// CheckRequestAllowed reports whether a new request may proceed and,
// when it may not, which limit rejected it.
func (l *ClientRateLimiter) CheckRequestAllowed() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.concurrentRequests >= l.maxConcurrent {
		return false, "too many concurrent requests"
	}

	l.pruneLocked(time.Now())
	if len(l.requestTimes) >= l.requestsPerMinute {
		return false, "rate limit exceeded"
	}

	return true, ""
}

// RecordRequestStart marks a request as started
func (l *ClientRateLimiter) RecordRequestStart() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.requestTimes = append(l.requestTimes, time.Now())
	l.concurrentRequests++
}

// RecordRequestEnd marks a request as finished
func (l *ClientRateLimiter) RecordRequestEnd() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.concurrentRequests > 0 {
		l.concurrentRequests--
	}
}

// UpdateLimits replaces both limits at runtime
func (l *ClientRateLimiter) UpdateLimits(requestsPerMinute, maxConcurrent int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.requestsPerMinute = requestsPerMinute
	l.maxConcurrent = maxConcurrent
}

// GetStats returns the request count inside the current window and the
// number of in-flight requests.
func (l *ClientRateLimiter) GetStats() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(time.Now())
	return len(l.requestTimes), l.concurrentRequests
}

// pruneLocked drops request timestamps older than the sliding window.
// Caller must hold l.mu.
func (l *ClientRateLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-rateLimiterCleanupThreshold)
	kept := l.requestTimes[:0]
	for _, ts := range l.requestTimes {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.requestTimes = kept
}

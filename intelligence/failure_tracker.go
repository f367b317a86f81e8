package intelligence

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// FailureKind names the operator/evaluator families FailureTracker counts.
type FailureKind string

const (
	FailureMutation   FailureKind = "mutation"
	FailureCrossover  FailureKind = "crossover"
	FailureImmigrant  FailureKind = "immigration"
	FailureEvaluation FailureKind = "evaluation"
)

// FailureTracker holds process-scoped counters for operator/evaluator
// attempts and failures. Safe for concurrent use from worker goroutines —
// counter updates are monotonic increments only, the one shared-state
// exception called out by the concurrency model (§5).
type FailureTracker struct {
	mu       sync.RWMutex
	attempts map[FailureKind]int64
	failures map[FailureKind]int64
	sessCtr  uint64
	sessID   string
}

var failureTrackerSessionSeq uint64

// NewFailureTracker constructs a tracker with a process-unique session id
// for external log correlation; the derivation (wall clock plus a package
// counter) isn't load-bearing, only its uniqueness per process is.
func NewFailureTracker() *FailureTracker {
	seq := atomic.AddUint64(&failureTrackerSessionSeq, 1)
	return &FailureTracker{
		attempts: make(map[FailureKind]int64),
		failures: make(map[FailureKind]int64),
		sessID:   fmt.Sprintf("session-%d-%d", time.Now().UnixNano(), seq),
	}
}

// SessionID returns the process-scoped correlation id.
func (t *FailureTracker) SessionID() string { return t.sessID }

// RecordAttempt increments the attempt counter for kind.
func (t *FailureTracker) RecordAttempt(kind FailureKind) {
	t.mu.Lock()
	t.attempts[kind]++
	t.mu.Unlock()
}

// RecordFailure increments the failure counter for kind. Callers are
// expected to have already called RecordAttempt for the same operation.
func (t *FailureTracker) RecordFailure(kind FailureKind) {
	t.mu.Lock()
	t.failures[kind]++
	t.mu.Unlock()
}

// Rate returns failures/attempts for kind, or 0 when there have been no attempts.
func (t *FailureTracker) Rate(kind FailureKind) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a := t.attempts[kind]
	if a == 0 {
		return 0
	}
	return float64(t.failures[kind]) / float64(a)
}

// Snapshot returns a point-in-time copy of attempts/failures per kind.
func (t *FailureTracker) Snapshot() (attempts, failures map[FailureKind]int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	attempts = make(map[FailureKind]int64, len(t.attempts))
	failures = make(map[FailureKind]int64, len(t.failures))
	for k, v := range t.attempts {
		attempts[k] = v
	}
	for k, v := range t.failures {
		failures[k] = v
	}
	return attempts, failures
}

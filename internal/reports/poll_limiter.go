package reports

import (
	"math"
	"sync"
	"time"
)

const (
	pollLimitWindow = time.Second
	pollPruneAt     = 10000
)

// pollLimiter spaces out reads of unfinished reports: one read per owner and
// report per window. Finished reports are never throttled.
type pollLimiter struct {
	mu     sync.Mutex
	last   map[string]time.Time
	now    func() time.Time
	window time.Duration
}

func newPollLimiter(window time.Duration, now func() time.Time) *pollLimiter {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = pollLimitWindow
	}
	return &pollLimiter{last: make(map[string]time.Time), now: now, window: window}
}

// Allow records a read of reportID by ownerID. When the read comes too soon
// it returns false and the time left until the next allowed read.
func (l *pollLimiter) Allow(ownerID, reportID string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key := ownerID + "|" + reportID
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.last[key]; ok {
		if wait := l.window - now.Sub(prev); wait > 0 {
			return false, wait
		}
	}
	if len(l.last) >= pollPruneAt {
		l.pruneLocked(now)
	}
	l.last[key] = now
	return true, 0
}

// Forget drops the bookkeeping for a report that reached a terminal state.
func (l *pollLimiter) Forget(ownerID, reportID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.last, ownerID+"|"+reportID)
	l.mu.Unlock()
}

func (l *pollLimiter) pruneLocked(now time.Time) {
	for k, t := range l.last {
		if now.Sub(t) >= l.window {
			delete(l.last, k)
		}
	}
}

func retryAfterSeconds(wait time.Duration) int {
	return max(1, int(math.Ceil(wait.Seconds())))
}

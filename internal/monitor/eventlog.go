package monitor

import (
	"context"
	"sync"
	"time"
)

// EventLog is the locally retained telemetry the aggregator reads.
type EventLog interface {
	Append(ctx context.Context, e Event) error
	// Since returns events with Timestamp >= since, in any order.
	Since(ctx context.Context, since time.Time) ([]Event, error)
}

// MemoryEventLog keeps every event younger than LongWindow, up to a hard
// limit. Once the limit is hit the oldest socket event is dropped first, so a
// burst of push-channel traffic never evicts heartbeats or trading flows.
type MemoryEventLog struct {
	mu     sync.RWMutex
	maxAge time.Duration
	limit  int
	latest time.Time
	events []Event // append order, roughly oldest first
}

func NewMemoryEventLog(limit int) *MemoryEventLog {
	if limit < 1 {
		limit = 1
	}
	return &MemoryEventLog{maxAge: LongWindow, limit: limit}
}

func (l *MemoryEventLog) Append(ctx context.Context, e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, e)
	if e.Timestamp.After(l.latest) {
		l.latest = e.Timestamp
	}
	l.expire()
	if len(l.events) > l.limit {
		l.evict()
	}
	return nil
}

// expire trims the expired prefix.
func (l *MemoryEventLog) expire() {
	cutoff := l.latest.Add(-l.maxAge)
	n := 0
	for n < len(l.events) && l.events[n].Timestamp.Before(cutoff) {
		n++
	}
	if n > 0 {
		clear(l.events[:n])
		l.events = l.events[n:]
	}
}

func (l *MemoryEventLog) evict() {
	for i, e := range l.events {
		if e.Category == CategorySocket {
			l.events = append(l.events[:i], l.events[i+1:]...)
			return
		}
	}
	l.events[0] = Event{}
	l.events = l.events[1:]
}

func (l *MemoryEventLog) Since(ctx context.Context, since time.Time) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Event, 0, len(l.events))
	for _, e := range l.events {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *MemoryEventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

package monitor

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Trace is one business flow (a purchase or an exchange) recorded as a
// sequence of events sharing a trace id.
type Trace struct {
	m     *Monitor
	id    string
	phase Phase

	mu   sync.Mutex
	done bool
}

// StartTrace records "<Phase>_Start" and returns the open trace.
func (m *Monitor) StartTrace(ctx context.Context, phase Phase, attrs map[string]interface{}) *Trace {
	t := &Trace{m: m, id: uuid.NewString(), phase: phase}
	_ = m.Record(ctx, Event{
		Category:   phase.category(),
		Action:     phase.StartAction(),
		TraceID:    t.id,
		Attributes: attrs,
	})
	return t
}

func (t *Trace) ID() string { return t.id }

// Step records an intermediate action named "<Phase>_<step>".
func (t *Trace) Step(ctx context.Context, step string, attrs map[string]interface{}) {
	_ = t.m.Record(ctx, Event{
		Category:   t.phase.category(),
		Action:     string(t.phase) + "_" + step,
		TraceID:    t.id,
		Attributes: attrs,
	})
}

// Success closes the trace with "<Phase>_Success". Only the first close counts.
func (t *Trace) Success(ctx context.Context, attrs map[string]interface{}) {
	if !t.close() {
		return
	}
	_ = t.m.Record(ctx, Event{
		Category:   t.phase.category(),
		Action:     t.phase.SuccessAction(),
		TraceID:    t.id,
		Success:    true,
		Attributes: attrs,
	})
}

// Fail closes the trace with "<Phase>_Error".
func (t *Trace) Fail(ctx context.Context, err error) {
	if !t.close() {
		return
	}
	attrs := map[string]interface{}{}
	if err != nil {
		attrs["error"] = err.Error()
	}
	_ = t.m.Record(ctx, Event{
		Category:   t.phase.category(),
		Action:     t.phase.ErrorAction(),
		TraceID:    t.id,
		Attributes: attrs,
	})
}

func (t *Trace) close() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

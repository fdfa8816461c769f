package relay

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Listener receives the payload published under a key.
type Listener func(payload interface{})

type registration struct {
	id     uint64
	fn     Listener
	active atomic.Bool
}

// Dispatcher fans payloads out to listeners keyed by event name. Listeners
// run synchronously on the publishing goroutine, in registration order.
type Dispatcher struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[string][]*registration
	logger    *zap.Logger
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		listeners: make(map[string][]*registration),
		logger:    logger,
	}
}

// Subscribe registers fn under key. The returned function removes exactly
// this registration; calling it more than once is harmless.
func (d *Dispatcher) Subscribe(key string, fn Listener) (unsubscribe func()) {
	d.mu.Lock()
	d.nextID++
	reg := &registration{id: d.nextID, fn: fn}
	reg.active.Store(true)
	d.listeners[key] = append(d.listeners[key], reg)
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			reg.active.Store(false)
			d.remove(key, reg.id)
		})
	}
}

func (d *Dispatcher) remove(key string, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	regs := d.listeners[key]
	for i, r := range regs {
		if r.id == id {
			// Copy so in-flight Publish snapshots stay intact.
			next := make([]*registration, 0, len(regs)-1)
			next = append(next, regs[:i]...)
			next = append(next, regs[i+1:]...)
			if len(next) == 0 {
				delete(d.listeners, key)
			} else {
				d.listeners[key] = next
			}
			return
		}
	}
}

// Publish delivers payload to every listener of key. A panicking listener
// is logged and skipped; the rest still run.
func (d *Dispatcher) Publish(key string, payload interface{}) {
	d.mu.RLock()
	regs := d.listeners[key]
	d.mu.RUnlock()

	for _, r := range regs {
		if !r.active.Load() {
			continue
		}
		d.invoke(key, r, payload)
	}
}

func (d *Dispatcher) invoke(key string, r *registration, payload interface{}) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("listener panicked",
				zap.String("key", key),
				zap.Uint64("listener", r.id),
				zap.String("panic", fmt.Sprint(rec)),
			)
		}
	}()
	r.fn(payload)
}

// Count returns the number of listeners registered under key.
func (d *Dispatcher) Count(key string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[key])
}

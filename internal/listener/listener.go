// Package listener delivers ordered lifecycle notifications to registered
// observers. Observer failures are contained here and never reach the
// supervised task.
package listener

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType captures the lifecycle notifications emitted by the runner.
type EventType string

const (
	EventStarting  EventType = "starting"
	EventRunning   EventType = "running"
	EventSucceeded EventType = "succeeded"
	EventFailed    EventType = "failed"
	EventStopping  EventType = "stopping"
)

// Event represents a single lifecycle notification. ReturnCode is only
// meaningful once HasCode is set, which happens for terminal events.
type Event struct {
	Timestamp  time.Time
	Task       string
	Run        string
	Type       EventType
	ReturnCode int
	HasCode    bool
	Err        error
}

// Listener observes task lifecycle events. Returning an error is allowed; it
// is logged and does not affect delivery to other listeners or the task.
type Listener interface {
	HandleEvent(Event) error
}

// Func adapts a plain function to the Listener interface.
type Func func(Event) error

// HandleEvent implements Listener.
func (f Func) HandleEvent(evt Event) error { return f(evt) }

// Registry holds the registered listeners for one supervisor. It is an
// explicitly constructed, lifetime-scoped object rather than module state so
// tests can isolate themselves with Clear.
type Registry struct {
	mu        sync.Mutex
	listeners []Listener
	logger    *zap.Logger
}

// NewRegistry constructs an empty registry. A nil logger falls back to a
// no-op logger.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger}
}

// Register appends a listener; delivery happens in registration order.
func (r *Registry) Register(l Listener) {
	if l == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Clear removes every registered listener.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = nil
}

// Notify delivers evt to every listener in registration order. Errors and
// panics raised by a listener are logged and swallowed so later listeners
// still receive the event.
func (r *Registry) Notify(evt Event) {
	if r == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	r.mu.Lock()
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	for _, l := range listeners {
		r.deliver(l, evt)
	}
}

func (r *Registry) deliver(l Listener, evt Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("listener panicked",
				zap.String("event", string(evt.Type)),
				zap.String("task", evt.Task),
				zap.Any("panic", rec))
		}
	}()
	if err := l.HandleEvent(evt); err != nil {
		r.logger.Warn("listener failed",
			zap.String("event", string(evt.Type)),
			zap.String("task", evt.Task),
			zap.Error(err))
	}
}

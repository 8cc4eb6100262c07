package listener

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNotifyDeliversInRegistrationOrder(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	var order []string
	reg.Register(Func(func(Event) error {
		order = append(order, "first")
		return nil
	}))
	reg.Register(Func(func(Event) error {
		order = append(order, "second")
		return nil
	}))

	reg.Notify(Event{Task: "t", Type: EventStarting})
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestNotifyContainsListenerFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	reg := NewRegistry(zap.New(core))

	var reached bool
	reg.Register(Func(func(Event) error {
		return errors.New("observer broke")
	}))
	reg.Register(Func(func(Event) error {
		panic("observer panicked")
	}))
	reg.Register(Func(func(Event) error {
		reached = true
		return nil
	}))

	require.NotPanics(t, func() {
		reg.Notify(Event{Task: "t", Type: EventStopping})
	})
	assert.True(t, reached, "later listeners must still receive the event")
	assert.Equal(t, 2, logs.Len(), "both failures are logged")
}

func TestClear(t *testing.T) {
	reg := NewRegistry(nil)

	var count int
	reg.Register(Func(func(Event) error {
		count++
		return nil
	}))
	reg.Notify(Event{Type: EventStarting})
	reg.Clear()
	reg.Notify(Event{Type: EventStopping})

	assert.Equal(t, 1, count)
}

func TestNotifyStampsTimestamp(t *testing.T) {
	reg := NewRegistry(nil)

	var got Event
	reg.Register(Func(func(evt Event) error {
		got = evt
		return nil
	}))
	reg.Notify(Event{Type: EventRunning})
	assert.False(t, got.Timestamp.IsZero())
}

func TestNilRegistryIsSafe(t *testing.T) {
	var reg *Registry
	require.NotPanics(t, func() {
		reg.Notify(Event{Type: EventStarting})
	})
}

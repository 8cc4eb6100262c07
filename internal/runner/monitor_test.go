package runner

import (
	"context"
	"testing"
	"time"
)

func TestSampleWhileRunningAndAfterExit(t *testing.T) {
	r, _ := newTestRunner(t, []string{"/bin/sh", "-c", "sleep 0.5"},
		WithMonitorInterval(50*time.Millisecond))
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// A sample against the live group must not fail.
	r.sample()

	if _, err := r.ReturnCode(context.Background()); err != nil {
		t.Fatalf("return code: %v", err)
	}

	// The group is gone; sampling is still a valid, empty observation.
	r.sample()
}

func TestMonitorStopsWithTask(t *testing.T) {
	r, _ := newTestRunner(t, []string{"/bin/sh", "-c", "sleep 0.2"},
		WithMonitorInterval(20*time.Millisecond))
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := r.ReturnCode(context.Background()); err != nil {
		t.Fatalf("return code: %v", err)
	}

	// The sampling loop must not trail past termination.
	select {
	case <-r.monitorDone:
	case <-time.After(time.Second):
		t.Fatal("monitor loop still running after task terminated")
	}
}

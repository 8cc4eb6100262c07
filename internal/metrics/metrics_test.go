package metrics_test

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmharte/overseer/internal/metrics"
)

func scrape(t *testing.T) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("unexpected status code from metrics handler: %d", rec.Code)
	}
	return rec.Body.String()
}

func TestRegistryExposesTaskMetrics(t *testing.T) {
	task := "metrics_test_task"

	metrics.EmitBuildInfo()
	metrics.SetTaskUsage(task, 12.5, 2048)
	metrics.AddEmptySample(task)
	metrics.AddSignalSent(task, "terminated")

	body := scrape(t)

	cpuLine := fmt.Sprintf("overseer_task_cpu_percent{task=\"%s\"} 12.5", task)
	if !strings.Contains(body, cpuLine) {
		t.Fatalf("expected cpu metric line %q in body:\n%s", cpuLine, body)
	}
	memLine := fmt.Sprintf("overseer_task_memory_bytes{task=\"%s\"} 2048", task)
	if !strings.Contains(body, memLine) {
		t.Fatalf("expected memory metric line %q in body:\n%s", memLine, body)
	}
	emptyLine := fmt.Sprintf("overseer_task_empty_samples_total{task=\"%s\"} 1", task)
	if !strings.Contains(body, emptyLine) {
		t.Fatalf("expected empty-sample metric line %q in body:\n%s", emptyLine, body)
	}
	signalLine := fmt.Sprintf("overseer_task_signals_total{signal=\"terminated\",task=\"%s\"} 1", task)
	if !strings.Contains(body, signalLine) {
		t.Fatalf("expected signal metric line %q in body:\n%s", signalLine, body)
	}
	if !strings.Contains(body, "overseer_build_info{") {
		t.Fatalf("expected build info metric in body:\n%s", body)
	}
}

func TestResetTaskClearsSeries(t *testing.T) {
	task := "metrics_reset_task"

	metrics.SetTaskUsage(task, 50, 4096)
	metrics.ResetTask(task)

	body := scrape(t)
	if strings.Contains(body, fmt.Sprintf("task=\"%s\"", task)) {
		t.Fatalf("expected no series for %s after reset:\n%s", task, body)
	}
}

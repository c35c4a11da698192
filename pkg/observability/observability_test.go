package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMetricsRecording(t *testing.T) {
	metrics, err := NewMetrics(&MetricsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	metrics.RecordAgentRun("planner", 100*time.Millisecond)
	metrics.RecordAgentError("planner", "timeout")

	t.Log("✅ Agent metrics recorded successfully")
}

func TestOracleMetricsRecording(t *testing.T) {
	metrics, err := NewMetrics(&MetricsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	metrics.RecordOracleCall("gemini-2.5-pro", 500*time.Millisecond)
	metrics.RecordOracleTokens("gemini-2.5-pro", 100, 50)
	metrics.RecordOracleError("gemini-2.5-pro", "rate_limited")

	t.Log("✅ Oracle metrics recorded successfully")
}

func TestToolMetricsRecording(t *testing.T) {
	metrics, err := NewMetrics(&MetricsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	metrics.RecordToolCall("search", 50*time.Millisecond)
	metrics.RecordToolError("write_file", "permission_denied")

	t.Log("✅ Tool metrics recorded successfully")
}

func TestRuntimeMetricsRecording(t *testing.T) {
	metrics, err := NewMetrics(&MetricsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	metrics.SetCircuitState("researcher", 2)
	metrics.RecordCheckpoint("progress_threshold")
	metrics.SetDLQDepth(3)
	metrics.RecordExecutorLevel(4, 0.82)

	t.Log("✅ Circuit, checkpoint, DLQ and executor metrics recorded successfully")
}

func TestMetricsDisabled(t *testing.T) {
	metrics, err := NewMetrics(&MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if metrics != nil {
		t.Fatal("expected nil Metrics when disabled")
	}
}

func TestNoopMetrics(t *testing.T) {
	var r Recorder = NoopMetrics{}

	r.RecordAgentRun("planner", 100*time.Millisecond)
	r.RecordAgentError("planner", "timeout")
	r.RecordOracleCall("test-model", 300*time.Millisecond)
	r.RecordOracleTokens("test-model", 10, 5)
	r.RecordToolCall("test", 50*time.Millisecond)
	r.SetCircuitState("planner", 0)
	r.RecordCheckpoint("interval")
	r.SetDLQDepth(0)
	r.RecordExecutorLevel(1, 1.0)

	rec := httptest.NewRecorder()
	NoopMetrics{}.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 from noop metrics handler, got %d", rec.Code)
	}

	t.Log("✅ Noop metrics handled correctly")
}

func TestMetricsHandler(t *testing.T) {
	metrics, err := NewMetrics(&MetricsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	metrics.RecordAgentRun("planner", time.Millisecond)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from metrics handler, got %d", rec.Code)
	}
}

func TestStringTruncation(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "hello..."},
		{"", 5, ""},
		{"test", 4, "test"},
		{"toolongstring", 4, "tool..."},
	}

	for _, tt := range tests {
		result := truncateString(tt.input, tt.maxLen)
		if result != tt.expected {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, result, tt.expected)
		}
	}
}

func BenchmarkMetricsRecording(b *testing.B) {
	metrics, err := NewMetrics(&MetricsConfig{Enabled: true})
	if err != nil {
		b.Fatalf("NewMetrics: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		metrics.RecordAgentRun("planner", 100*time.Millisecond)
	}
}

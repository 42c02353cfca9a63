package metrics

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	t.Cleanup(func() { SetOutput(prev) })
	return &buf
}

func TestNew_FunctionNameDimension(t *testing.T) {
	old := fnName
	fnName = "editor-api"
	t.Cleanup(func() { fnName = old })

	r := New("TestNamespace")
	if r.namespace != "TestNamespace" {
		t.Errorf("namespace = %s", r.namespace)
	}
	if r.dimensions["FunctionName"] != "editor-api" {
		t.Errorf("FunctionName = %q", r.dimensions["FunctionName"])
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	buf := capture(t)
	old := fnName
	fnName = ""
	t.Cleanup(func() { fnName = old })

	New(Namespace).
		Dimension("Operation", "analyze").
		Metric("GeminiApiLatencyMs", 1234.5, UnitMilliseconds).
		Count("GeminiApiCalls").
		Property("sessionId", "abc-123").
		Flush()

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}

	aws, ok := doc["_aws"].(map[string]any)
	if !ok {
		t.Fatal("missing _aws directive")
	}
	if _, ok := aws["Timestamp"]; !ok {
		t.Error("missing Timestamp")
	}
	cw, ok := aws["CloudWatchMetrics"].([]any)
	if !ok || len(cw) != 1 {
		t.Fatalf("CloudWatchMetrics = %v", aws["CloudWatchMetrics"])
	}
	block := cw[0].(map[string]any)
	if block["Namespace"] != Namespace {
		t.Errorf("Namespace = %v", block["Namespace"])
	}
	if doc["Operation"] != "analyze" {
		t.Errorf("Operation = %v", doc["Operation"])
	}
	if doc["GeminiApiLatencyMs"] != 1234.5 {
		t.Errorf("GeminiApiLatencyMs = %v", doc["GeminiApiLatencyMs"])
	}
	if doc["GeminiApiCalls"] != float64(1) {
		t.Errorf("GeminiApiCalls = %v", doc["GeminiApiCalls"])
	}
	if doc["sessionId"] != "abc-123" {
		t.Errorf("sessionId = %v", doc["sessionId"])
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	buf := capture(t)
	New("Test").Dimension("Operation", "noop").Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %s", buf.String())
	}
}

func TestRecorder_Duration(t *testing.T) {
	rec := New("Test").Duration("LatencyMs", 1500*time.Millisecond)
	if rec.values["LatencyMs"] != float64(1500) {
		t.Errorf("LatencyMs = %v", rec.values["LatencyMs"])
	}
	if rec.metrics["LatencyMs"].Unit != UnitMilliseconds {
		t.Errorf("unit = %s", rec.metrics["LatencyMs"].Unit)
	}
}

func TestSetOutput_NilDiscards(t *testing.T) {
	prev := SetOutput(nil)
	defer SetOutput(prev)
	New("Test").Count("Calls").Flush()
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	handler := NewRedactingHandler(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return slog.New(handler)
}

func TestRedactingHandlerRedactsPHIKeys(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{"patient_name", "Jane Doe"},
		{"PatientName", "Jane Doe"},
		{"address", "123 Main St"},
		{"ssn", "123-45-6789"},
		{"mrn", "MRN00123"},
		{"email", "jane@example.com"},
	}

	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newTestLogger(&buf)
			logger.Info("test event", tc.key, tc.value)

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("invalid JSON log line: %v", err)
			}
			if got := entry[tc.key]; got != redactedValue {
				t.Fatalf("key %q: got %v, want %q", tc.key, got, redactedValue)
			}
		})
	}
}

func TestRedactingHandlerLeavesNonPHIKeysAlone(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.Info("test event", "request_id", "req-123", "duration_ms", 42)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("request_id was redacted: %v", entry["request_id"])
	}
	if entry["duration_ms"] != float64(42) {
		t.Fatalf("duration_ms was mangled: %v", entry["duration_ms"])
	}
}

func TestRedactingHandlerRedactsBoundAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := NewRedactingHandler(slog.NewJSONHandler(&buf, nil))
	logger := slog.New(base).With("patient_name", "Jane Doe")
	logger.Info("bound event")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if entry["patient_name"] != redactedValue {
		t.Fatalf("bound PHI attr was not redacted: %v", entry["patient_name"])
	}
}

func TestRedactingHandlerRedactsNestedGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.Info("grouped event", slog.Group("context", slog.String("patient_name", "Jane Doe"), slog.Int("age", 40)))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	ctx, ok := entry["context"].(map[string]any)
	if !ok {
		t.Fatalf("expected a context group, got %T", entry["context"])
	}
	if ctx["patient_name"] != redactedValue {
		t.Fatalf("nested PHI attr was not redacted: %v", ctx["patient_name"])
	}
	if ctx["age"] != float64(40) {
		t.Fatalf("nested non-PHI attr was mangled: %v", ctx["age"])
	}
}

func TestRedactingHandlerEnabledDelegates(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	handler := NewRedactingHandler(inner)
	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected Info to be disabled when inner handler's level is Warn")
	}
	if !handler.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected Error to be enabled")
	}
}

func TestIsPHIKey(t *testing.T) {
	positives := []string{"name", "patient_name", "PatientName", "street-address", "ip_address", "account_number"}
	for _, k := range positives {
		if !isPHIKey(k) {
			t.Errorf("expected %q to be a PHI key", k)
		}
	}
	negatives := []string{"request_id", "duration_ms", "method", "outcome", "session_id"}
	for _, k := range negatives {
		if isPHIKey(k) {
			t.Errorf("expected %q not to be a PHI key", k)
		}
	}
}

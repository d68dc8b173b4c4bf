// Package logging provides the PHI-redaction slog.Handler wrapper every
// server binary installs before any record is emitted.
package logging

import (
	"context"
	"log/slog"
	"strings"
)

// phiKeyPatterns is the fixed denylist spec.md §7 calls out: any attribute
// key containing one of these substrings (case-insensitive, underscores
// and hyphens stripped) is treated as carrying PHI and its value is redacted rather
// than serialized. Mirrors the PHI_PATTERNS set the de-identification
// pipeline's structured_logging module redacts on.
var phiKeyPatterns = []string{
	"name",
	"ssn",
	"mrn",
	"dob",
	"birth",
	"address",
	"phone",
	"email",
	"patient",
	"street",
	"city",
	"zip",
	"account",
	"license",
	"device",
	"ipaddress",
	"macaddress",
	"biometric",
	"photo",
	"fax",
	"url",
	"vehicle",
}

const redactedValue = "[REDACTED]"

// isPHIKey reports whether key matches a PHI naming pattern, normalizing
// away underscores and hyphens first so "patient_name" and "patientName"
// both match.
func isPHIKey(key string) bool {
	normalized := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(key))
	for _, pattern := range phiKeyPatterns {
		if strings.Contains(normalized, pattern) {
			return true
		}
	}
	return false
}

// RedactingHandler wraps an slog.Handler and replaces the value of any
// attribute (at any nesting depth, including inside slog.Group) whose key
// matches isPHIKey with a fixed redaction marker before the record reaches
// the wrapped handler's Handle.
type RedactingHandler struct {
	next slog.Handler
}

// NewRedactingHandler wraps next so every record it emits has had PHI-named
// attributes redacted first.
func NewRedactingHandler(next slog.Handler) *RedactingHandler {
	return &RedactingHandler{next: next}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	redacted := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, redacted)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(redacted)}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name)}
}

// redactAttr redacts a's value if its key is a PHI key, and recurses into
// group-valued attributes so nested PHI keys are caught too.
func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		redacted := make([]slog.Attr, len(group))
		for i, ga := range group {
			redacted[i] = redactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	}
	if isPHIKey(a.Key) {
		return slog.String(a.Key, redactedValue)
	}
	return a
}

package id

import (
	"context"
	"strings"
	"testing"
)

func TestWithIDsAndFromContext(t *testing.T) {
	ctx := WithIDs(context.Background(), IDs{SessionID: "session-test", LogID: "log-test"})

	got := IDsFromContext(ctx)
	if got.SessionID != "session-test" {
		t.Fatalf("expected session-test, got %s", got.SessionID)
	}
	if got.LogID != "log-test" {
		t.Fatalf("expected log-test, got %s", got.LogID)
	}
}

func TestEmptyIDsAreIgnored(t *testing.T) {
	ctx := WithSessionID(context.Background(), "session-1")
	ctx = WithSessionID(ctx, "")
	if got := SessionIDFromContext(ctx); got != "session-1" {
		t.Fatalf("expected stored session to remain, got %s", got)
	}
	if got := LogIDFromContext(ctx); got != "" {
		t.Fatalf("expected no log id, got %s", got)
	}
}

func TestEnsureLogID(t *testing.T) {
	ctx, generated := EnsureLogID(context.Background(), func() string { return "log-123" })
	if generated != "log-123" {
		t.Fatalf("expected log-123, got %s", generated)
	}

	ctx, generated = EnsureLogID(ctx, func() string { return "log-new" })
	if generated != "log-123" {
		t.Fatalf("expected existing id to be reused, got %s", generated)
	}

	if _, generated = EnsureLogID(context.Background(), nil); generated != "" {
		t.Fatalf("expected empty id without generator, got %s", generated)
	}
	_ = ctx
}

func TestGeneratorsUsePrefixes(t *testing.T) {
	if got := NewSessionID(); !strings.HasPrefix(got, "session-") {
		t.Fatalf("unexpected session id %q", got)
	}
	if a, b := NewLogID(), NewLogID(); a == b || !strings.HasPrefix(a, "log-") {
		t.Fatalf("expected distinct prefixed log ids, got %q and %q", a, b)
	}
}

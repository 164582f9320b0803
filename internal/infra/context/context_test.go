package context_test

import (
	"context"
	"testing"

	context_ "github.com/mkrupp/storefront/internal/infra/context"
)

func TestTraceID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if _, ok := context_.TraceIDFromContext(ctx); ok {
		t.Fatal("expected no trace id on empty context")
	}

	if _, ok := context_.TraceIDFromContext(context_.WithTraceID(ctx, "")); ok {
		t.Error("empty trace id should be treated as absent")
	}

	got, ok := context_.TraceIDFromContext(context_.WithTraceID(ctx, "abc"))
	if !ok || got != "abc" {
		t.Errorf("TraceIDFromContext() = %q, %v; want %q, true", got, ok, "abc")
	}
}

func TestUserID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if _, ok := context_.UserIDFromContext(ctx); ok {
		t.Fatal("expected no user id on empty context")
	}

	got, ok := context_.UserIDFromContext(context_.WithUserID(ctx, 7))
	if !ok || got != 7 {
		t.Errorf("UserIDFromContext() = %d, %v; want 7, true", got, ok)
	}
}

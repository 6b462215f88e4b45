package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"misrgrid/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrNotFound, "loading", "open", "swath missing", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"loading", "open", "swath missing"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"no data", services.Wrap(services.ErrNoData, "region_search", "find", "no pixels", nil), services.KindNoData},
		{"validation", services.Wrap(services.ErrValidation, "loading", "validate", "bad", nil), services.KindValidation},
		{"not found", fmt.Errorf("outer: %w", services.ErrNotFound), services.KindNotFound},
		{"cancelled", fmt.Errorf("stop: %w", context.Canceled), services.KindCancelled},
		{"deadline", context.DeadlineExceeded, services.KindTimeout},
		{"plain", errors.New("x"), services.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.Kind(tt.err); got != tt.want {
				t.Fatalf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelHelpers(t *testing.T) {
	err := fmt.Errorf("analyze: %w", Invalid("Word is required"))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Invalid should match ErrInvalidArgument")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("Invalid should not match ErrNotFound")
	}
	if got := errors.Unwrap(err).Error(); got != "Word is required" {
		t.Fatalf("unexpected message %q", got)
	}
	if !errors.Is(NotFound("lesson not found"), ErrNotFound) {
		t.Fatalf("NotFound should match ErrNotFound")
	}
}

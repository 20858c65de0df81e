package store

import (
	"errors"
	"fmt"
	"testing"
)

// Compile-time checks that the interface is importable and usable.
func TestLedgerStoreInterfaceExists(t *testing.T) {
	var _ LedgerStore
}

func TestSentinelErrorsSurviveWrapping(t *testing.T) {
	sentinels := []error{
		ErrStorageUnavailable,
		ErrInvalidAmount,
		ErrInvalidKind,
		ErrAccountNotFound,
		ErrBalanceMismatch,
	}

	for _, sentinel := range sentinels {
		wrapped := fmt.Errorf("debit account 42: %w", sentinel)
		if !errors.Is(wrapped, sentinel) {
			t.Errorf("Expected wrapped error to match %v", sentinel)
		}
		for _, other := range sentinels {
			if other != sentinel && errors.Is(wrapped, other) {
				t.Errorf("Wrapped %v unexpectedly matched %v", sentinel, other)
			}
		}
	}
}

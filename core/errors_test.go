package core_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/grindstone/engine/core"
)

func TestStructuredErrors_UnwrapToSentinels(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"invalid_argument", &core.InvalidArgumentError{Field: "energy", Value: 9, Reason: "must be in 0..5"}, core.ErrInvalidArgument},
		{"dependency_not_met", &core.DependencyNotMetError{ItemID: 2, DependsOn: 1, Description: "prep"}, core.ErrDependencyNotMet},
		{"roll_already_done", core.NewRollAlreadyDone(mar(10)), core.ErrRollAlreadyDone},
		{"roll_not_available", core.NewRollNotAvailable(mar(10), core.ClockTime{Hour: 6}), core.ErrRollNotAvailable},
		{"finalized", &core.FinalizedError{Date: mar(9)}, core.ErrAlreadyFinalized},
	}
	for _, tc := range cases {
		if !errors.Is(tc.err, tc.sentinel) {
			t.Errorf("%s: errors.Is should hit the sentinel", tc.name)
		}
		if tc.err.Error() == "" {
			t.Errorf("%s: empty error message", tc.name)
		}
	}
}

func TestStructuredErrors_SurviveWrapping(t *testing.T) {
	err := fmt.Errorf("start item: %w", &core.DependencyNotMetError{ItemID: 5, DependsOn: 3})

	if !errors.Is(err, core.ErrDependencyNotMet) {
		t.Error("wrapped error should still match the sentinel")
	}

	var dep *core.DependencyNotMetError
	if !errors.As(err, &dep) || dep.DependsOn != 3 {
		t.Error("errors.As should recover the structured error")
	}
}

func TestErrorHelpers(t *testing.T) {
	if !core.IsNotFound(core.ErrItemNotFound) || !core.IsNotFound(core.ErrNoActiveItem) {
		t.Error("IsNotFound misses a missing-record sentinel")
	}
	if core.IsNotFound(core.ErrInvalidArgument) {
		t.Error("IsNotFound should not match input errors")
	}

	if !core.IsClientError(core.NewRollAlreadyDone(mar(10))) {
		t.Error("roll sequencing errors are client errors")
	}
	if core.IsClientError(core.ErrStoreFailure) {
		t.Error("store failures are not client errors")
	}

	if !core.IsRetryable(fmt.Errorf("tx: %w", core.ErrStoreFailure)) {
		t.Error("store failures are retryable")
	}
	if core.IsRetryable(core.ErrDependencyNotMet) {
		t.Error("dependency errors are not retryable")
	}
}

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newGroup(maxFailures int) *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: maxFailures, ResetTimeout: time.Hour},
	})
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestExecuteWithResult_PrimaryThenFallback(t *testing.T) {
	fg := newGroup(3)

	got, err := ExecuteWithResult(fg, func(v string) (string, error) { return v + "-ok", nil })
	if err != nil || got != "primary-ok" {
		t.Fatalf("got (%q, %v), want (primary-ok, nil)", got, err)
	}

	got, err = ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return v + "-ok", nil
	})
	if err != nil || got != "secondary-ok" {
		t.Fatalf("got (%q, %v), want (secondary-ok, nil)", got, err)
	}
}

func TestExecuteWithResult_AllFailKeepsCause(t *testing.T) {
	fg := newGroup(3)
	errSentinel := errors.New("sentinel")

	_, err := ExecuteWithResult(fg, func(string) (int, error) { return 0, errSentinel })
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errSentinel) {
		t.Errorf("err = %v, want it to wrap the provider error", err)
	}
}

func TestExecuteWithResult_SkipsOpenCircuit(t *testing.T) {
	fg := newGroup(2)

	for i := 0; i < 2; i++ {
		_ = fg.Execute(func(v string) error {
			if v == "primary" {
				return errTest
			}
			return nil
		})
	}
	if fg.Breaker("primary").State() != StateOpen {
		t.Fatal("primary breaker should be open")
	}

	var called []string
	if err := fg.Execute(func(v string) error { called = append(called, v); return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(called) != 1 || called[0] != "secondary" {
		t.Errorf("called = %v, want [secondary]", called)
	}
}

func TestExecuteWithResult_OpenCircuitDoesNotMaskCause(t *testing.T) {
	fg := newGroup(1)
	_ = fg.Execute(func(v string) error {
		if v == "secondary" {
			return errTest
		}
		return nil
	})
	// primary fails with errTest, secondary is open.
	err := fg.Execute(func(v string) error { return errTest })
	if !errors.Is(err, errTest) {
		t.Errorf("err = %v, want to wrap errTest", err)
	}
}

func TestExecuteWithResult_ContextStopsChain(t *testing.T) {
	fg := newGroup(3)

	var called []string
	err := fg.Execute(func(v string) error {
		called = append(called, v)
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want bare context.Canceled", err)
	}
	if len(called) != 1 {
		t.Errorf("called = %v, want only the primary", called)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	fg := newGroup(1)
	names := fg.Names()
	if len(names) != 2 || names[0] != "primary" || names[1] != "secondary" {
		t.Errorf("Names() = %v", names)
	}
	if fg.Breaker("missing") != nil {
		t.Error("Breaker(missing) should be nil")
	}
}

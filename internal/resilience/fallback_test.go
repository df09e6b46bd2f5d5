package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestFallbackGroup_FirstSucceeds(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup("a", "first", FallbackConfig{})
	fg.Add("second", "b")

	res, err := ExecuteWithResult(fg, func(v string) (string, error) { return v + "!", nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Value != "a!" || res.Candidate != "first" || res.Attempt != 0 {
		t.Errorf("result = %+v, want first candidate", res)
	}
}

func TestFallbackGroup_FallsThrough(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup("a", "first", FallbackConfig{})
	fg.Add("second", "b")

	res, err := ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "a" {
			return "", errTest
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Candidate != "second" || res.Attempt != 1 {
		t.Errorf("result = %+v, want second candidate", res)
	}
}

func TestFallbackGroup_AllFailWrapsLastError(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup(1, "first", FallbackConfig{})
	fg.Add("second", 2)

	err := fg.Execute(func(int) error { return errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errTest) {
		t.Errorf("err = %v, want it to wrap the last failure", err)
	}
}

func TestFallbackGroup_ShouldFallbackStops(t *testing.T) {
	t.Parallel()

	errFatal := errors.New("fatal")
	fg := NewFallbackGroup(1, "first", FallbackConfig{
		ShouldFallback: func(err error) bool { return !errors.Is(err, errFatal) },
	})
	fg.Add("second", 2)

	var tried []int
	err := fg.Execute(func(v int) error {
		tried = append(tried, v)
		return errFatal
	})
	if !errors.Is(err, errFatal) || errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want the fatal error unwrapped by ErrAllFailed", err)
	}
	if len(tried) != 1 {
		t.Errorf("tried %v, want only the first candidate", tried)
	}
}

func TestFallbackGroup_OpenBreakerIsSkipped(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup("a", "first", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	fg.Add("second", "b")

	for range 2 {
		_ = fg.Execute(func(v string) error {
			if v == "a" {
				return errTest
			}
			return nil
		})
	}
	if st, _ := fg.BreakerState("first"); st != StateOpen {
		t.Fatalf("first breaker = %v, want open", st)
	}

	var tried []string
	_ = fg.Execute(func(v string) error {
		tried = append(tried, v)
		return nil
	})
	if len(tried) != 1 || tried[0] != "b" {
		t.Errorf("tried %v, want only the second candidate", tried)
	}
	if _, ok := fg.BreakerState("missing"); ok {
		t.Error("BreakerState reported an unknown candidate")
	}
	if fg.Len() != 2 {
		t.Errorf("Len = %d, want 2", fg.Len())
	}
}

func TestFallbackGroup_AddWithBreaker(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup(1, "first", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	fg.AddWithBreaker("last", 2, CircuitBreakerConfig{IsFailure: func(error) bool { return false }})

	for range 3 {
		_ = fg.Execute(func(int) error { return errTest })
	}
	if st, _ := fg.BreakerState("first"); st != StateOpen {
		t.Errorf("first breaker = %v, want open", st)
	}
	if st, _ := fg.BreakerState("last"); st != StateClosed {
		t.Errorf("last breaker = %v, want closed", st)
	}
}

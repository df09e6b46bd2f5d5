package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every candidate in a [FallbackGroup] fails or
// has an open circuit breaker.
var ErrAllFailed = errors.New("all candidates failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the template for the per-candidate breakers. Name is
	// overwritten with the candidate name.
	CircuitBreaker CircuitBreakerConfig

	// ShouldFallback decides whether an error moves on to the next candidate.
	// When it returns false the error is returned to the caller as is.
	// Default: every error falls through.
	ShouldFallback func(error) bool
}

type candidate[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds an ordered list of interchangeable candidates, each
// guarded by its own [CircuitBreaker]. Candidates are tried in registration
// order until one succeeds.
//
// The candidate list must be fully built with [FallbackGroup.Add] before the
// group is used concurrently.
type FallbackGroup[T any] struct {
	candidates []candidate[T]
	cfg        FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with first as the preferred
// candidate.
func NewFallbackGroup[T any](first T, name string, cfg FallbackConfig) *FallbackGroup[T] {
	if cfg.ShouldFallback == nil {
		cfg.ShouldFallback = func(error) bool { return true }
	}
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.Add(name, first)
	return fg
}

// Add appends a candidate tried after all previously added ones, guarded by
// a breaker built from the group's template.
func (fg *FallbackGroup[T]) Add(name string, value T) {
	fg.AddWithBreaker(name, value, fg.cfg.CircuitBreaker)
}

// AddWithBreaker appends a candidate with its own breaker configuration.
func (fg *FallbackGroup[T]) AddWithBreaker(name string, value T, cbCfg CircuitBreakerConfig) {
	cbCfg.Name = name
	fg.candidates = append(fg.candidates, candidate[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Len returns the number of candidates.
func (fg *FallbackGroup[T]) Len() int { return len(fg.candidates) }

// BreakerState returns the breaker state of the named candidate.
func (fg *FallbackGroup[T]) BreakerState(name string) (State, bool) {
	for i := range fg.candidates {
		if fg.candidates[i].name == name {
			return fg.candidates[i].breaker.State(), true
		}
	}
	return StateClosed, false
}

// Execute tries fn against each candidate in order until one succeeds.
// See [ExecuteWithResult].
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult tries fn against each candidate of fg in order until one
// succeeds, returning its result and the name of the candidate that produced
// it. Candidates with an open breaker are skipped. An error rejected by
// ShouldFallback is returned immediately. When every candidate fails the
// error wraps both [ErrAllFailed] and the last failure.
//
// This is a package-level function because Go does not support method-level
// type parameters.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (Result[R], error) {
	var lastErr error
	for i := range fg.candidates {
		c := &fg.candidates[i]
		var out R
		err := c.breaker.Execute(func() error {
			var innerErr error
			out, innerErr = fn(c.value)
			return innerErr
		})
		if err == nil {
			return Result[R]{Value: out, Candidate: c.name, Attempt: i}, nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping candidate (circuit open)", "candidate", c.name)
			if lastErr == nil {
				lastErr = err
			}
			continue
		}
		if !fg.cfg.ShouldFallback(err) {
			return Result[R]{Candidate: c.name, Attempt: i}, err
		}
		lastErr = err
		slog.Warn("candidate failed, trying next", "candidate", c.name, "err", err)
	}
	return Result[R]{}, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

// Result is the outcome of [ExecuteWithResult].
type Result[R any] struct {
	// Value is the result of the successful call.
	Value R

	// Candidate is the name of the candidate that produced Value, or that
	// returned a non-fallback error.
	Candidate string

	// Attempt is the zero-based index of Candidate.
	Attempt int
}

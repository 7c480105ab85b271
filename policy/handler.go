// Package policy decides, per failed item, whether a processing run skips the
// item and continues or halts with the failure.
package policy

import (
	"errors"
	"fmt"
)

// Action is the decision for a failed item.
type Action int

const (
	// Skip records the failure and continues with the next item.
	Skip Action = iota
	// Halt stops the run; Outcome.Cause carries the error to propagate.
	Halt
)

// Outcome is the tagged result of consulting the handler about a failure.
type Outcome struct {
	Action Action
	// Cause is the error the run should propagate when Action is Halt: the
	// original item error, or a *ConsecutiveFailureError when the
	// consecutive-failure limit was reached.
	Cause error
}

// ConsecutiveFailureError halts a run after too many back-to-back item
// failures under skip policy. It wraps the failure that tripped the limit.
type ConsecutiveFailureError struct {
	Count int
	Last  error
}

func (e *ConsecutiveFailureError) Error() string {
	return fmt.Sprintf("processing halted after %d consecutive failure(s): %v", e.Count, e.Last)
}

func (e *ConsecutiveFailureError) Unwrap() error {
	return e.Last
}

// FailedItem pairs a skipped input with the error it raised. Retained in
// memory for the lifetime of one run.
type FailedItem[T any] struct {
	Item T
	Err  error
}

// Config holds the failure policy configuration.
type Config struct {
	// SkipErrors enables record-and-continue for non-fatal item errors. When
	// false every item error halts the run.
	SkipErrors bool

	// FatalErrors always halt, regardless of SkipErrors. Matching is via
	// errors.Is against each target.
	FatalErrors []error

	// MaxConsecutiveFailures halts the run once this many item errors occur
	// back-to-back with no success in between. Zero disables the limit. Only
	// active when SkipErrors is true.
	MaxConsecutiveFailures int
}

// Handler tracks per-item failures for one run and enforces the configured
// policy. Not safe for concurrent use; the engine drives it from the
// processing goroutine only.
type Handler[T any] struct {
	cfg         Config
	consecutive int
	failed      []FailedItem[T]
}

// NewHandler creates a Handler with the given configuration.
func NewHandler[T any](cfg Config) *Handler[T] {
	return &Handler[T]{cfg: cfg}
}

// Reset clears all failure state in preparation for a new run.
func (h *Handler[T]) Reset() {
	h.failed = nil
	h.consecutive = 0
}

// OnSuccess notes a successfully processed item, resetting the consecutive
// failure counter.
func (h *Handler[T]) OnSuccess() {
	h.consecutive = 0
}

// OnError decides what to do about a failed item.
//
// Fatal errors and errors under a non-skip policy halt with the original
// error and are not recorded. Reaching the consecutive-failure limit halts
// with a *ConsecutiveFailureError; the tripping failure is likewise not
// recorded, since the limit itself terminates the run. Everything else is
// recorded and skipped.
func (h *Handler[T]) OnError(item T, err error) Outcome {
	for _, fatal := range h.cfg.FatalErrors {
		if errors.Is(err, fatal) {
			return Outcome{Action: Halt, Cause: err}
		}
	}

	if !h.cfg.SkipErrors {
		return Outcome{Action: Halt, Cause: err}
	}

	h.consecutive++
	if h.cfg.MaxConsecutiveFailures > 0 && h.consecutive >= h.cfg.MaxConsecutiveFailures {
		return Outcome{Action: Halt, Cause: &ConsecutiveFailureError{
			Count: h.consecutive,
			Last:  err,
		}}
	}

	h.failed = append(h.failed, FailedItem[T]{Item: item, Err: err})
	return Outcome{Action: Skip}
}

// FailedItems returns the items skipped so far in the current run.
func (h *Handler[T]) FailedItems() []FailedItem[T] {
	return h.failed
}

// ConsecutiveFailures returns the current back-to-back failure count.
func (h *Handler[T]) ConsecutiveFailures() int {
	return h.consecutive
}

// Package lagerrors defines the error kinds the lag-tracking core
// distinguishes. Query errors (LagEstimatorNotFound, NotEnoughData) are
// meant to be recovered by the direct caller; TransientPollFailure never
// leaves the emitter that produced it; FatalStartupError is the only kind
// that should ever reach main and cause a non-zero exit.
package lagerrors

import (
	"errors"
	"fmt"
)

// ErrNotEnoughData is returned by a PartitionLagEstimator query when the
// history does not yet contain enough samples to answer it.
var ErrNotEnoughData = errors.New("lag estimator: not enough data")

// LagEstimatorNotFoundError is returned by PartitionOffsetsRegister queries
// when the referenced topic partition has never been observed.
type LagEstimatorNotFoundError struct {
	Topic     string
	Partition uint32
}

func (e *LagEstimatorNotFoundError) Error() string {
	return fmt.Sprintf("lag estimator not found for %s[%d]", e.Topic, e.Partition)
}

// NewLagEstimatorNotFound builds a LagEstimatorNotFoundError.
func NewLagEstimatorNotFound(topic string, partition uint32) error {
	return &LagEstimatorNotFoundError{Topic: topic, Partition: partition}
}

// TransientPollFailureError wraps an emitter poll failure. It is logged at
// warn and never propagated past the emitter's own loop.
type TransientPollFailureError struct {
	Source string
	Err    error
}

func (e *TransientPollFailureError) Error() string {
	return fmt.Sprintf("%s: transient poll failure: %v", e.Source, e.Err)
}

func (e *TransientPollFailureError) Unwrap() error { return e.Err }

// NewTransientPollFailure wraps err as a TransientPollFailureError from the
// named emitter.
func NewTransientPollFailure(source string, err error) error {
	return &TransientPollFailureError{Source: source, Err: err}
}

// FatalStartupError wraps a cause that should abort the process with a
// non-zero exit code: invalid CLI input, an unreachable bind address, or an
// unreachable cluster at startup.
type FatalStartupError struct {
	Err error
}

func (e *FatalStartupError) Error() string {
	return fmt.Sprintf("fatal startup error: %v", e.Err)
}

func (e *FatalStartupError) Unwrap() error { return e.Err }

// NewFatalStartupError wraps err as a FatalStartupError.
func NewFatalStartupError(err error) error {
	return &FatalStartupError{Err: err}
}

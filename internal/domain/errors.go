package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput indicates a caller supplied malformed data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoTransactions indicates the ingest layer produced an empty
	// result set after cleaning. Fatal to the whole analysis.
	ErrNoTransactions = errors.New("no valid transactions after cleaning")
)

// Pipeline stage names used to tag fatal errors.
const (
	StageIngest      = "ingest"
	StageGraph       = "graph"
	StageDetection   = "detection"
	StageAggregation = "aggregation"
)

// StageError is a fatal pipeline failure tagged with the stage that
// produced it and the elapsed time at failure, so callers can tell
// ingestion failures apart from aggregation failures.
type StageError struct {
	Stage   string
	Elapsed time.Duration
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed after %.2fs: %v", e.Stage, e.Elapsed.Seconds(), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with stage context.
func NewStageError(stage string, elapsed time.Duration, err error) *StageError {
	return &StageError{Stage: stage, Elapsed: elapsed, Err: err}
}

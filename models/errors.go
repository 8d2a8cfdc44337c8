package models

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when prediction or analysis is requested with
// zero readings. Callers should retry with a nonempty batch.
var ErrEmptyInput = errors.New("empty input batch")

// InsufficientDataError is returned when training is requested with fewer
// samples than the caller's minimum. Recoverable: retry once more data exists.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient training data: have %d samples, need %d", e.Have, e.Need)
}

// PersistenceError wraps a model store I/O failure. A training run is not
// durable until its save succeeds.
type PersistenceError struct {
	Name string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting %s: %v", e.Name, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

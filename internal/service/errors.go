package service

import (
	"errors"
	"fmt"
)

// ErrRetryExhausted matches every *RetryExhaustedError.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// TransformerFailure is one failed transformer attempt for an item.
type TransformerFailure struct {
	ID      string
	Attempt int
	Err     error
}

func (e *TransformerFailure) Error() string {
	return fmt.Sprintf("item %s attempt %d: %v", e.ID, e.Attempt, e.Err)
}

func (e *TransformerFailure) Unwrap() error {
	return e.Err
}

// RetryExhaustedError is returned when every attempt for an item failed.
// Last holds the final attempt's failure.
type RetryExhaustedError struct {
	ID       string
	Attempts int
	Last     *TransformerFailure
}

func (e *RetryExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("item %s: %d attempts failed", e.ID, e.Attempts)
	}
	return fmt.Sprintf("item %s: %d attempts failed, last: %v", e.ID, e.Attempts, e.Last.Err)
}

func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

func (e *RetryExhaustedError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrSyncInProgress is returned when another pass holds the account's
	// sync lock, in this process or another one.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrMutationExhausted matches a *MutationError.
	ErrMutationExhausted = errors.New("mutation retries exhausted")
)

// MutationError reports a queued mutation that kept failing. The mutation
// stays queued and is retried on later passes until it succeeds or is dropped.
type MutationError struct {
	MutationID string
	ItemID     string
	Attempts   int
	Err        string
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("mark todo %s done: %d attempts: %s", e.ItemID, e.Attempts, e.Err)
}

func (e *MutationError) Is(target error) bool {
	return target == ErrMutationExhausted
}

package domain

import (
	"errors"
	"fmt"
)

// ErrNoSnapshots reports that no snapshot was ever captured.
var ErrNoSnapshots = errors.New("no snapshots captured")

// ValidationError is returned for input or configuration problems detected
// before any write.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// TransactionError is returned when a host transaction fails to start or
// commit. Nothing of the batch has been applied.
type TransactionError struct {
	Name   string
	Status CommitStatus
	Err    error
}

func (e TransactionError) Error() string {
	return fmt.Sprintf("transaction %q %s: %v", e.Name, e.Status, e.Err)
}

func (e TransactionError) Unwrap() error { return e.Err }

// ErrNotFound is returned when an element or record does not exist.
type ErrNotFound struct {
	Entity string
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

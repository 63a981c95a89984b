package sop

import (
	"fmt"
	"time"
)

type ErrorCode int

const (
	Unknown = iota
	LockAcquisitionFailure
	FailoverQualifiedError = 77 + iota
	FileIOError
	RestoreRegistryFileSectorFailure
)

// Error is the shared error type returned by store, transaction and backfill operations.
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

func (e Error) Error() string {
	return fmt.Errorf("error code: %d, user data: %v, details: %w", e.Code, e.UserData, e.Err).Error()
}

func (e Error) Unwrap() error {
	return e.Err
}

// ErrTimeout reports that a named operation exceeded its allotted maximum duration.
// It wraps the context error (if any) so callers can still use errors.Is against
// context.Canceled/context.DeadlineExceeded.
type ErrTimeout struct {
	Name    string
	MaxTime time.Duration
	Cause   error
}

func (e ErrTimeout) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s timed out(maxTime=%v): %v", e.Name, e.MaxTime, e.Cause)
	}
	return fmt.Sprintf("%s timed out(maxTime=%v)", e.Name, e.MaxTime)
}

func (e ErrTimeout) Unwrap() error {
	return e.Cause
}

package coordinator

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidItemCount is returned before any worker starts when the item count is negative.
	ErrInvalidItemCount = errors.New("coordinator: item count must not be negative")
	// ErrNilCallable is returned when produce or consume is missing.
	ErrNilCallable = errors.New("coordinator: produce and consume must both be set")
	// ErrCallableFailed matches every *StageError.
	ErrCallableFailed = errors.New("coordinator: callable failed")
	// ErrAborted is returned when the caller's context ends the run early.
	ErrAborted = errors.New("coordinator: run aborted")
)

// Role names the callable an item was handed to.
type Role int

const (
	RoleProduce Role = iota
	RoleConsume
)

func (r Role) String() string {
	switch r {
	case RoleProduce:
		return "produce"
	case RoleConsume:
		return "consume"
	default:
		return "unknown"
	}
}

// StageError reports a failing produce or consume call and the logical
// index of the item it was working on.
type StageError struct {
	Role  Role
	Index int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed for item #%d: %v", e.Role, e.Index, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{ErrCallableFailed, e.Err}
}

// panicError carries a value recovered from a callable.
type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("not authorized")
	ErrPersistence  = errors.New("persistence failure")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a missing entity, identified by ID or, when set, Key.
type NotFoundError struct {
	Entity string
	ID     int64
	Key    string
}

func (e *NotFoundError) Error() string {
	entity := e.Entity
	if entity == "" {
		entity = "inventory record"
	}
	if e.Key != "" {
		return fmt.Sprintf("%s %q not found", entity, e.Key)
	}
	return fmt.Sprintf("%s %d not found", entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type AuthorizationError struct {
	PrincipalID int64
	Operation   string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("associate %d may not %s", e.PrincipalID, e.Operation)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrUnauthorized }

// PersistenceError wraps a failure of the backing store. No partial write
// is visible when one is returned from a transition.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

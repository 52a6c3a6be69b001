// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested plan or entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates the request payload violates a validation rule.
var ErrValidation = errors.New("validation failed")

// ErrBusinessRule indicates the operation would violate a business rule
// (for example a requirement vote count going negative).
var ErrBusinessRule = errors.New("business rule violation")

// ErrRollback indicates an atomic batch was aborted and all prior
// operations in the batch were undone. It is always reported together
// with the triggering member's underlying error.
var ErrRollback = errors.New("atomic batch rolled back")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

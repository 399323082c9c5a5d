// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the request conflicts with existing state (e.g. duplicate location name).
var ErrConflict = errors.New("conflict")

// ErrValidation indicates the request is malformed.
var ErrValidation = errors.New("validation failed")

// ErrInsufficientStock indicates an operation would drive on-hand quantity below zero
// or request more than the available quantity.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrAlreadyExists indicates a unique key is already taken. Provisioning treats it as success.
var ErrAlreadyExists = errors.New("already exists")

// ErrBusy indicates lock contention exceeded the datastore's wait bound.
// It is transient; callers may retry with backoff.
var ErrBusy = errors.New("resource busy")

// ErrUnauthorized indicates the actor lacks the capability required for the operation.
var ErrUnauthorized = errors.New("unauthorized")

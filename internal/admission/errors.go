// Package admission defines sentinel errors.
package admission

import "errors"

// ErrInvalidInput indicates validation failures.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotFound indicates missing resources.
var ErrNotFound = errors.New("not found")

// ErrUnauthorized indicates a missing or wrong admin token.
var ErrUnauthorized = errors.New("unauthorized")

// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates the request payload failed validation.
var ErrValidation = errors.New("validation failed")

// ErrUnauthorized indicates a missing, expired, or invalid session.
var ErrUnauthorized = errors.New("unauthorized")

package service

import "errors"

// Common service errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("resource not found")
)

// Profile service specific errors
var (
	ErrUserNotFound = errors.New("user not found")
)

// Reconcile service specific errors
var (
	ErrUnknownWriteKind = errors.New("unknown failed write kind")
)

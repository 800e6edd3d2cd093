package service

import "errors"

// Sentinel kinds returned by Service.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrInvalidInput = errors.New("invalid input")
	ErrNoGraph      = errors.New("list has no graph")
)

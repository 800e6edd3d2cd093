package repository

import (
	"errors"
	"fmt"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrEmptyLog         = fmt.Errorf("comparison log is empty: %w", ErrNotFound)
	ErrForeignCharacter = errors.New("character is not a member of the list")
	ErrSelfComparison   = errors.New("character compared with itself")
	ErrInvalidValue     = errors.New("comparison value out of range")
	ErrUnknownDriver    = errors.New("unknown store driver")
)

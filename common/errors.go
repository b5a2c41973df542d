package common

import (
	"errors"
)

var (
	// ErrCompanyNotFound is returned when a company id has no row.
	ErrCompanyNotFound = errors.New("company not found")

	// ErrInvalidConfig is returned when an invalid configuration is provided
	ErrInvalidConfig = errors.New("invalid configuration")
)

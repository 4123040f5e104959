package repository

import "errors"

// Sentinel kinds for result store errors.
var (
	ErrInvalidLimit = errors.New("invalid result limit")
)

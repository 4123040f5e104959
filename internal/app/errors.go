package service

import "errors"

// Sentinel errors returned by the service.
var (
	ErrNoChain    = errors.New("no chain client configured")
	ErrNotStarted = errors.New("service not started")
)

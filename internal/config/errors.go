package config

import "errors"

// Sentinel error kinds. Validation failures wrap ErrInvalidConfig; file and
// environment failures wrap ErrLoadConfig.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

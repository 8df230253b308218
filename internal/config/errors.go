package config

import "errors"

// Sentinel errors returned by Load and Config.Validate.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

package loadgen

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid load config")
	ErrUnhealthy     = errors.New("service unhealthy")
	ErrVerification  = errors.New("verification failed")
)

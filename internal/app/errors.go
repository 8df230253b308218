package service

import "errors"

var (
	ErrNotStarted    = errors.New("service not started")
	ErrUnknownDriver = errors.New("unknown store driver")
)

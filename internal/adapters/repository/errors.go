package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrWrite  = errors.New("store write failed")
	ErrClosed = errors.New("store closed")
)

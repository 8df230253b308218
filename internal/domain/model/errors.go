package model

import "errors"

var (
	ErrInvalidUserID = errors.New("invalid user id")
	ErrUnknownWindow = errors.New("unknown window")
)

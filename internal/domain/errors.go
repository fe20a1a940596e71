package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrChannelsUnsupported = errors.New("notification channels not supported")
	ErrInvalidMessage      = errors.New("invalid push message")
	ErrSurfaceUnavailable  = errors.New("notification surface unavailable")
	ErrContextDone         = errors.New("context cancelled")
)

package domain

import "errors"

var (
	ErrPollNotFound       = errors.New("poll not found")
	ErrPollClosed         = errors.New("poll is closed")
	ErrOptionNotFound     = errors.New("option not found")
	ErrInvalidPoll        = errors.New("invalid poll")
	ErrBackendUnavailable = errors.New("backend unavailable")
)

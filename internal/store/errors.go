package store

import "errors"

var (
	ErrEmptyMessage        = errors.New("message is empty")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionBusy         = errors.New("session is already streaming a response")
	ErrNotStreaming        = errors.New("session is not streaming")
	ErrNoMessages          = errors.New("session has no messages")
	ErrAlreadyBootstrapped = errors.New("store already bootstrapped")
)

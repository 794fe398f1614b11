package client

import "errors"

// Sentinel errors.
var (
	ErrSelectionIgnored = errors.New("selection ignored")
	ErrClosed           = errors.New("controller closed")
	ErrNotStarted       = errors.New("controller not started")
	ErrEmptyBatch       = errors.New("comparison has no complete pair")
	ErrCacheMiss        = errors.New("cache miss")
	ErrCorruptEntry     = errors.New("corrupt cache entry")
	ErrImageUnavailable = errors.New("image unavailable")
)

package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrInvalidProfile   = errors.New("invalid profile")
	ErrInvalidIncrement = errors.New("invalid increment")
	ErrClosed           = errors.New("store closed")
	ErrSeed             = errors.New("invalid seed")
)

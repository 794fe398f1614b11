package model

import "errors"

// Sentinel errors shared across layers.
var (
	ErrInsufficientPopulation = errors.New("not enough people in database for matchups")
	ErrIntroProfilesMissing   = errors.New("first visit images not found")
	ErrNotFound               = errors.New("profile not found")
	ErrInvalidSubmission      = errors.New("invalid stats submission")
)

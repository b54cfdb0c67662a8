package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidSignature    = errors.New("invalid signature")

	// Runner failure classes, mapped from the runner's HTTP responses.
	ErrRunnerUnavailable = errors.New("runner unavailable")
	ErrRunnerAuth        = errors.New("runner auth failed")
	ErrRunnerBadRequest  = errors.New("runner bad request")
	ErrRunnerProcessing  = errors.New("runner processing failed")
)

package entity

import "errors"

// Domain errors for the automation orchestrator
var (
	// Validation errors
	ErrEmptyAccountID        = errors.New("account ID is required")
	ErrEmptyMediaRef         = errors.New("media reference is required")
	ErrMissingSchedule       = errors.New("scheduled post requires a scheduled_for time")
	ErrInvalidPostLimit      = errors.New("max posts per day must be at least 1")
	ErrInvalidDelayBounds    = errors.New("delay bounds must satisfy 0 <= min <= max")
	ErrInvalidWorkingHours   = errors.New("working hours must be within a day")
	ErrRunningWithoutProfile = errors.New("running account requires active status and a created profile")

	// State machine errors
	ErrInvalidTransition = errors.New("state transition not allowed")
	ErrAccountBanned     = errors.New("account is banned")

	// Business logic errors
	ErrAccountNotFound = errors.New("account not found")
	ErrPostNotFound    = errors.New("post not found")
)

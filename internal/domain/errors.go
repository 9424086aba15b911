package domain

import "errors"

// Resolution failure taxonomy. Outcomes carry one of these in Outcome.Err.
var (
	ErrNoCandidates  = errors.New("no matching element")
	ErrNoElements    = errors.New("no interactive elements found")
	ErrLowConfidence = errors.New("plan confidence below threshold")
	ErrMissingTarget = errors.New("plan target not found")
	ErrStepFailed    = errors.New("plan step failed")
	ErrUpstream      = errors.New("upstream service failed")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrUnknownAction = errors.New("unknown action")
	ErrEmptyCommand  = errors.New("empty transcript")
	ErrInvalidPlan   = errors.New("invalid plan")
)

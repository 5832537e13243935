package domain

import "errors"

// Error kinds surfaced by the decision engine. Compare with errors.Is.
var (
	ErrOpenDecisionExists = errors.New("an open decision already exists for this group")
	ErrDecisionNotFound   = errors.New("decision not found")
	ErrDecisionClosed     = errors.New("decision is closed")
	ErrAlreadyRerolled    = errors.New("decision was already rerolled")
	ErrUpdateFailed       = errors.New("decision update failed")
	ErrCreateFailed       = errors.New("decision create failed")
	ErrReadFailed         = errors.New("decision read failed")
	ErrInvalidCategory    = errors.New("invalid decision category")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRerollInProgress   = errors.New("reroll with this idempotency key is in progress")

	// ErrVoteConflict means the stored votes no longer match the expected
	// baseline. Retried inside the service, never returned to callers.
	ErrVoteConflict = errors.New("vote set changed concurrently")
)

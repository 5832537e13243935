package service

import (
	"context"
	"time"
)

// DecisionEvent is the reference handed to the chat subsystem when a
// decision opens. It never carries mutable decision state.
type DecisionEvent struct {
	Type         string    `json:"type"`
	DecisionID   string    `json:"decision_id"`
	GroupID      string    `json:"group_id"`
	RerolledFrom *string   `json:"rerolled_from,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Event types
const (
	EventDecisionCreated  = "decision.created"
	EventDecisionRerolled = "decision.rerolled"
)

// ChatNotifier delivers decision events to the chat subsystem.
// Delivery is best effort; the engine never rolls back on failure.
type ChatNotifier interface {
	DecisionOpened(ctx context.Context, event DecisionEvent) error
}

// EventBacklog replays a group's recent decision events, newest first
type EventBacklog interface {
	Backlog(ctx context.Context, groupID string) ([]DecisionEvent, error)
}

// IdempotencyStore tracks reroll idempotency keys, scoped per actor and
// rerolled decision
type IdempotencyStore interface {
	// Claim returns true when the key was free and is now held
	Claim(ctx context.Context, actor, decisionID, key string) (bool, error)

	// Complete stores the outcome so a replay can return it
	Complete(ctx context.Context, actor, decisionID, key, resultID string) error

	// Lookup returns the stored outcome, or "" while the claim is pending
	Lookup(ctx context.Context, actor, decisionID, key string) (string, error)

	// Release drops a claim whose operation failed
	Release(ctx context.Context, actor, decisionID, key string) error
}

// BackgroundService is a component with a managed goroutine
type BackgroundService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Services aggregates the application services
type Services struct {
	Decisions *DecisionService
	Sweeper   BackgroundService
}

package repository

import (
	"context"
	"time"

	"dicedecision/internal/domain"
)

// DecisionRepository is the transactional boundary for decision records.
// Every method is a single transaction and returns only domain error kinds,
// never raw driver errors.
type DecisionRepository interface {
	// TryCreateOpen inserts d (status open) unless the group already has an
	// open decision, in which case it returns domain.ErrOpenDecisionExists.
	TryCreateOpen(ctx context.Context, d *domain.Decision) error

	// CompareAndSwapVotes replaces the vote set only while the stored set
	// still equals expected and the decision is open. A stale baseline
	// returns domain.ErrVoteConflict.
	CompareAndSwapVotes(ctx context.Context, id string, expected, next domain.VoteSet, status domain.Status, acceptedAt *time.Time) error

	// ReplaceWithReroll closes oldID as rerolled and inserts next in one
	// transaction. Readers never observe zero or two open decisions.
	ReplaceWithReroll(ctx context.Context, oldID string, next *domain.Decision, closedAt time.Time) error

	// Get returns domain.ErrDecisionNotFound when id does not exist
	Get(ctx context.Context, id string) (*domain.Decision, error)

	// FindOpen returns nil, nil when the group has no open decision
	FindOpen(ctx context.Context, groupID string) (*domain.Decision, error)

	// ListByGroup returns the group's decisions, newest first
	ListByGroup(ctx context.Context, groupID string, limit int) ([]*domain.Decision, error)

	// ExpireOpenBefore moves open decisions created before cutoff to expired
	// and returns their ids
	ExpireOpenBefore(ctx context.Context, cutoff, closedAt time.Time) ([]string, error)
}

// MembershipRepository is the group roster owned by the groups subsystem.
// The engine only reads counts from it, always fresh.
type MembershipRepository interface {
	// MemberCount returns the current number of members in the group
	MemberCount(ctx context.Context, groupID string) (int, error)

	// AddMember is idempotent
	AddMember(ctx context.Context, groupID, memberID string) error

	// RemoveMember is idempotent
	RemoveMember(ctx context.Context, groupID, memberID string) error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Decisions   DecisionRepository
	Memberships MembershipRepository
}

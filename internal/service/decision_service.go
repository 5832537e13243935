package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"dicedecision/internal/dice"
	"dicedecision/internal/domain"
	"dicedecision/internal/quorum"
	"dicedecision/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultVoteMaxRetries = 8
	DefaultHistoryLimit   = 20
	MaxHistoryLimit       = 100

	voteBackoffBase = 2 * time.Millisecond
	voteBackoffMax  = 50 * time.Millisecond
)

// DecisionConfig tunes the lifecycle manager
type DecisionConfig struct {
	VoteMaxRetries int
	DecisionTTL    time.Duration
}

// DecisionService owns the decision state machine:
// open -> accepted | rerolled | expired, all terminal.
type DecisionService struct {
	decisions  repository.DecisionRepository
	members    repository.MembershipRepository
	generator  *dice.Generator
	notifier   ChatNotifier
	cache      *DecisionCache
	logger     *zap.Logger
	maxRetries int
	ttl        time.Duration
	now        func() time.Time
	newID      func() string
}

func NewDecisionService(repos repository.Repositories, generator *dice.Generator, notifier ChatNotifier, logger *zap.Logger, cfg DecisionConfig) *DecisionService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.VoteMaxRetries <= 0 {
		cfg.VoteMaxRetries = DefaultVoteMaxRetries
	}
	return &DecisionService{
		decisions:  repos.Decisions,
		members:    repos.Memberships,
		generator:  generator,
		notifier:   notifier,
		logger:     logger,
		maxRetries: cfg.VoteMaxRetries,
		ttl:        cfg.DecisionTTL,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// CreateDecision draws results and opens a decision for the group.
// Fails with domain.ErrOpenDecisionExists if the group already has one.
func (s *DecisionService) CreateDecision(ctx context.Context, groupID, actor string, category domain.Category) (*domain.Decision, error) {
	if err := requireIDs(groupID, actor); err != nil {
		return nil, err
	}
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidCategory, category)
	}

	d := &domain.Decision{
		ID:        s.newID(),
		GroupID:   groupID,
		CreatedBy: actor,
		Category:  category,
		Results:   s.generator.Draw(category),
		Status:    domain.StatusOpen,
		Votes:     domain.VoteSet{},
		CreatedAt: s.timestamp(),
	}

	if err := s.decisions.TryCreateOpen(ctx, d); err != nil {
		if !errors.Is(err, domain.ErrOpenDecisionExists) {
			s.logger.Error("Failed to create decision",
				zap.String("group_id", groupID),
				zap.String("category", string(category)),
				zap.Error(err))
		}
		return nil, kindOr(err, domain.ErrCreateFailed)
	}

	s.logger.Info("Decision created",
		zap.String("decision_id", d.ID),
		zap.String("group_id", groupID),
		zap.String("category", string(category)),
		zap.String("actor", actor))

	s.notify(ctx, EventDecisionCreated, d)
	return d, nil
}

// ToggleVote adds the actor's vote if absent or removes it if present, then
// re-evaluates quorum against the current roster size. Concurrent toggles are
// serialized through a compare-and-swap on the vote set.
func (s *DecisionService) ToggleVote(ctx context.Context, decisionID, actor string) (*domain.VoteOutcome, error) {
	if err := requireIDs(decisionID, actor); err != nil {
		return nil, err
	}

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := s.backoff(ctx, attempt); err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrUpdateFailed, err)
			}
		}

		current, err := s.decisions.Get(ctx, decisionID)
		if err != nil {
			return nil, kindOr(err, domain.ErrUpdateFailed)
		}
		if !current.IsOpen() {
			return nil, domain.ErrDecisionClosed
		}

		next := current.Votes.Toggle(actor)

		memberCount, err := s.members.MemberCount(ctx, current.GroupID)
		if err != nil {
			return nil, fmt.Errorf("%w: member count: %v", domain.ErrUpdateFailed, err)
		}
		threshold := quorum.Threshold(memberCount)

		status := domain.StatusOpen
		var acceptedAt *time.Time
		if next.Len() >= threshold {
			status = domain.StatusAccepted
			ts := s.timestamp()
			acceptedAt = &ts
		}

		err = s.decisions.CompareAndSwapVotes(ctx, decisionID, current.Votes, next, status, acceptedAt)
		if errors.Is(err, domain.ErrVoteConflict) {
			s.logger.Debug("Vote conflict, retrying",
				zap.String("decision_id", decisionID),
				zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, kindOr(err, domain.ErrUpdateFailed)
		}

		updated := *current
		updated.Votes = next
		updated.Status = status
		updated.AcceptedAt = acceptedAt
		if status.Terminal() {
			updated.ClosedAt = acceptedAt
		}

		outcome := &domain.VoteOutcome{
			Decision:  &updated,
			Voted:     next.Contains(actor),
			Accepted:  status == domain.StatusAccepted,
			Threshold: threshold,
		}
		if outcome.Accepted {
			s.logger.Info("Decision accepted",
				zap.String("decision_id", decisionID),
				zap.String("group_id", current.GroupID),
				zap.Int("votes", next.Len()),
				zap.Int("threshold", threshold),
				zap.Int("members", memberCount))
		}
		return outcome, nil
	}

	s.logger.Warn("Vote retries exhausted",
		zap.String("decision_id", decisionID),
		zap.Int("max_retries", s.maxRetries))
	return nil, fmt.Errorf("%w: vote retries exhausted", domain.ErrUpdateFailed)
}

// RerollDecision replaces an open decision with a fresh draw of the same
// category. A decision that is itself a reroll can't be rerolled.
func (s *DecisionService) RerollDecision(ctx context.Context, decisionID, actor string) (*domain.Decision, error) {
	if err := requireIDs(decisionID, actor); err != nil {
		return nil, err
	}

	old, err := s.decisions.Get(ctx, decisionID)
	if err != nil {
		return nil, kindOr(err, domain.ErrUpdateFailed)
	}
	if !old.IsOpen() {
		return nil, domain.ErrDecisionClosed
	}
	if old.IsReroll() {
		return nil, domain.ErrAlreadyRerolled
	}

	now := s.timestamp()
	parentID := old.ID
	next := &domain.Decision{
		ID:           s.newID(),
		GroupID:      old.GroupID,
		CreatedBy:    actor,
		Category:     old.Category,
		Results:      s.generator.Draw(old.Category),
		Status:       domain.StatusOpen,
		Votes:        domain.VoteSet{},
		RerolledFrom: &parentID,
		CreatedAt:    now,
	}

	if err := s.decisions.ReplaceWithReroll(ctx, old.ID, next, now); err != nil {
		s.logger.Warn("Reroll rejected",
			zap.String("decision_id", decisionID),
			zap.Error(err))
		return nil, kindOr(err, domain.ErrUpdateFailed)
	}

	s.logger.Info("Decision rerolled",
		zap.String("decision_id", next.ID),
		zap.String("rerolled_from", old.ID),
		zap.String("group_id", old.GroupID),
		zap.String("actor", actor))

	s.notify(ctx, EventDecisionRerolled, next)
	return next, nil
}

// GetDecision returns domain.ErrDecisionNotFound for unknown ids
func (s *DecisionService) GetDecision(ctx context.Context, decisionID string) (*domain.Decision, error) {
	if decisionID == "" {
		return nil, fmt.Errorf("%w: decision id is required", domain.ErrInvalidInput)
	}
	var (
		d   *domain.Decision
		err error
	)
	if s.cache != nil {
		d, err = s.cache.GetDecision(ctx, decisionID, s.decisions.Get)
	} else {
		d, err = s.decisions.Get(ctx, decisionID)
	}
	if err != nil {
		return nil, kindOr(err, domain.ErrReadFailed)
	}
	return d, nil
}

// UseCache serves GetDecision for closed decisions through cache
func (s *DecisionService) UseCache(cache *DecisionCache) {
	s.cache = cache
}

// HasOpenDecision reports whether the group currently has a live decision
func (s *DecisionService) HasOpenDecision(ctx context.Context, groupID string) (bool, error) {
	d, err := s.GetOpenDecision(ctx, groupID)
	if err != nil {
		return false, err
	}
	return d != nil, nil
}

// GetOpenDecision returns the group's open decision, or nil if there is none
func (s *DecisionService) GetOpenDecision(ctx context.Context, groupID string) (*domain.Decision, error) {
	if groupID == "" {
		return nil, fmt.Errorf("%w: group id is required", domain.ErrInvalidInput)
	}
	d, err := s.decisions.FindOpen(ctx, groupID)
	if err != nil {
		return nil, kindOr(err, domain.ErrReadFailed)
	}
	return d, nil
}

// ListDecisions returns the group's decision history, newest first
func (s *DecisionService) ListDecisions(ctx context.Context, groupID string, limit int) ([]*domain.Decision, error) {
	if groupID == "" {
		return nil, fmt.Errorf("%w: group id is required", domain.ErrInvalidInput)
	}
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	decisions, err := s.decisions.ListByGroup(ctx, groupID, limit)
	if err != nil {
		return nil, kindOr(err, domain.ErrReadFailed)
	}
	if decisions == nil {
		decisions = []*domain.Decision{}
	}
	return decisions, nil
}

// ExpireStale closes open decisions older than the configured TTL.
// A zero TTL disables expiry.
func (s *DecisionService) ExpireStale(ctx context.Context) ([]string, error) {
	if s.ttl <= 0 {
		return nil, nil
	}
	now := s.timestamp()
	ids, err := s.decisions.ExpireOpenBefore(ctx, now.Add(-s.ttl), now)
	if err != nil {
		return nil, kindOr(err, domain.ErrUpdateFailed)
	}
	if len(ids) > 0 {
		s.logger.Info("Expired stale decisions",
			zap.Int("count", len(ids)),
			zap.Duration("ttl", s.ttl))
	}
	return ids, nil
}

func (s *DecisionService) notify(ctx context.Context, eventType string, d *domain.Decision) {
	event := DecisionEvent{
		Type:         eventType,
		DecisionID:   d.ID,
		GroupID:      d.GroupID,
		RerolledFrom: d.RerolledFrom,
		OccurredAt:   d.CreatedAt,
	}
	if err := s.notifier.DecisionOpened(ctx, event); err != nil {
		s.logger.Warn("Failed to notify chat of decision",
			zap.String("event", eventType),
			zap.String("decision_id", d.ID),
			zap.String("group_id", d.GroupID),
			zap.Error(err))
	}
}

// backoff sleeps a jittered, linearly growing interval
func (s *DecisionService) backoff(ctx context.Context, attempt int) error {
	wait := time.Duration(attempt) * voteBackoffBase
	if wait > voteBackoffMax {
		wait = voteBackoffMax
	}
	wait += rand.N(voteBackoffBase)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// timestamp is millisecond precision so both stores round-trip it exactly
func (s *DecisionService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// decisionKinds are the errors the service may return unchanged
var decisionKinds = []error{
	domain.ErrOpenDecisionExists,
	domain.ErrDecisionNotFound,
	domain.ErrDecisionClosed,
	domain.ErrAlreadyRerolled,
	domain.ErrUpdateFailed,
	domain.ErrCreateFailed,
	domain.ErrInvalidCategory,
	domain.ErrInvalidInput,
}

// kindOr passes engine error kinds through and folds anything else into
// fallback. A failed read inside a write surfaces as the write's kind.
func kindOr(err, fallback error) error {
	if errors.Is(err, fallback) {
		return err
	}
	for _, kind := range decisionKinds {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", fallback, err)
}

func requireIDs(id, actor string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", domain.ErrInvalidInput)
	}
	if actor == "" {
		return fmt.Errorf("%w: actor is required", domain.ErrInvalidInput)
	}
	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"

	"dicedecision/internal/domain"
	"dicedecision/pkg/redis"

	"go.uber.org/zap"
)

const idempotencyPending = "pending"

// RedisIdempotencyStore claims keys with SETNX
type RedisIdempotencyStore struct {
	redis *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{redis: client}
}

func (s *RedisIdempotencyStore) Claim(ctx context.Context, actor, decisionID, key string) (bool, error) {
	return s.redis.SetNX(ctx, s.redis.KeyBuilder.KeyRerollIdempotency(actor, decisionID, key), idempotencyPending, redis.TTLRerollIdempotency)
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, actor, decisionID, key, resultID string) error {
	return s.redis.Set(ctx, s.redis.KeyBuilder.KeyRerollIdempotency(actor, decisionID, key), resultID, redis.TTLRerollIdempotency)
}

func (s *RedisIdempotencyStore) Lookup(ctx context.Context, actor, decisionID, key string) (string, error) {
	val, err := s.redis.Get(ctx, s.redis.KeyBuilder.KeyRerollIdempotency(actor, decisionID, key))
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if val == idempotencyPending {
		return "", nil
	}
	return val, nil
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, actor, decisionID, key string) error {
	return s.redis.Delete(ctx, s.redis.KeyBuilder.KeyRerollIdempotency(actor, decisionID, key))
}

// RerollOnce runs RerollDecision at most once per (actor, key). A replay
// returns the decision the first call produced; replayed reports whether
// this call was one. Without a store or key it is a plain reroll.
func (s *DecisionService) RerollOnce(ctx context.Context, store IdempotencyStore, decisionID, actor, key string) (d *domain.Decision, replayed bool, err error) {
	if store == nil || key == "" {
		d, err = s.RerollDecision(ctx, decisionID, actor)
		return d, false, err
	}

	claimed, err := store.Claim(ctx, actor, decisionID, key)
	if err != nil {
		// Redis trouble shouldn't block rerolls; the database still rejects a second one
		s.logger.Warn("Idempotency claim failed, proceeding without it", zap.Error(err))
		d, err = s.RerollDecision(ctx, decisionID, actor)
		return d, false, err
	}

	if !claimed {
		prior, err := store.Lookup(ctx, actor, decisionID, key)
		if err != nil {
			return nil, false, fmt.Errorf("idempotency lookup: %w", err)
		}
		if prior == "" {
			return nil, false, domain.ErrRerollInProgress
		}
		d, err = s.GetDecision(ctx, prior)
		return d, true, err
	}

	d, err = s.RerollDecision(ctx, decisionID, actor)
	if err != nil {
		if relErr := store.Release(ctx, actor, decisionID, key); relErr != nil {
			s.logger.Warn("Failed to release idempotency key", zap.Error(relErr))
		}
		return nil, false, err
	}
	if err := store.Complete(ctx, actor, decisionID, key, d.ID); err != nil {
		s.logger.Warn("Failed to record idempotency outcome", zap.Error(err))
	}
	return d, false, nil
}

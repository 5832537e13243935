package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"dicedecision/internal/domain"
	"dicedecision/pkg/redis"

	"go.uber.org/zap"
)

// DecisionCache is a cache-aside layer for terminal decisions. Open
// decisions are never cached since their votes still change.
type DecisionCache struct {
	redis  *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

func NewDecisionCache(client *redis.Client, logger *zap.Logger) *DecisionCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecisionCache{redis: client, logger: logger, ttl: redis.TTLClosedDecision}
}

// GetDecision serves a cached snapshot when present and otherwise loads
// through fallback, caching the result once it is closed
func (c *DecisionCache) GetDecision(ctx context.Context, decisionID string, fallback func(ctx context.Context, id string) (*domain.Decision, error)) (*domain.Decision, error) {
	cacheKey := c.redis.KeyBuilder.KeyClosedDecision(decisionID)

	cached, err := c.redis.Get(ctx, cacheKey)
	switch {
	case err == nil:
		var d domain.Decision
		if unmarshalErr := json.Unmarshal([]byte(cached), &d); unmarshalErr == nil {
			c.logger.Debug("Decision cache hit", zap.String("decision_id", decisionID))
			return &d, nil
		} else {
			c.logger.Warn("Decision cache corrupted, falling back to store",
				zap.String("decision_id", decisionID),
				zap.Error(unmarshalErr))
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Decision cache error, falling back to store",
			zap.String("decision_id", decisionID),
			zap.Error(err))
	}

	d, err := fallback(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if !d.IsOpen() {
		c.store(ctx, d)
	}
	return d, nil
}

func (c *DecisionCache) store(ctx context.Context, d *domain.Decision) {
	data, err := json.Marshal(d)
	if err != nil {
		c.logger.Error("Failed to marshal decision for caching",
			zap.String("decision_id", d.ID),
			zap.Error(err))
		return
	}
	if err := c.redis.Set(ctx, c.redis.KeyBuilder.KeyClosedDecision(d.ID), string(data), c.ttl); err != nil {
		c.logger.Warn("Failed to cache decision",
			zap.String("decision_id", d.ID),
			zap.Error(err))
	}
}

package service

import (
	"context"
	"encoding/json"
	"fmt"

	"dicedecision/pkg/redis"

	"go.uber.org/zap"
)

// DefaultChatBacklogSize bounds the per-group replay list
const DefaultChatBacklogSize = 50

// RedisNotifier publishes decision events on a per-group channel and keeps a
// short backlog so a chat worker that missed the publish can catch up
type RedisNotifier struct {
	redis       *redis.Client
	logger      *zap.Logger
	backlogSize int64
}

func NewRedisNotifier(client *redis.Client, logger *zap.Logger, backlogSize int) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if backlogSize <= 0 {
		backlogSize = DefaultChatBacklogSize
	}
	return &RedisNotifier{redis: client, logger: logger, backlogSize: int64(backlogSize)}
}

// DecisionOpened publishes event and appends it to the group backlog
func (n *RedisNotifier) DecisionOpened(ctx context.Context, event DecisionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode decision event: %w", err)
	}

	backlogKey := n.redis.KeyBuilder.KeyGroupDecisionBacklog(event.GroupID)
	if err := n.redis.PushBounded(ctx, backlogKey, payload, n.backlogSize, redis.TTLDecisionBacklog); err != nil {
		return fmt.Errorf("failed to append decision backlog: %w", err)
	}

	channel := n.redis.KeyBuilder.KeyGroupDecisionChannel(event.GroupID)
	receivers, err := n.redis.Publish(ctx, channel, payload)
	if err != nil {
		return fmt.Errorf("failed to publish decision event: %w", err)
	}

	n.logger.Debug("Published decision event",
		zap.String("event", event.Type),
		zap.String("decision_id", event.DecisionID),
		zap.String("channel", channel),
		zap.Int64("receivers", receivers))
	return nil
}

// Backlog returns the group's recent events, newest first
func (n *RedisNotifier) Backlog(ctx context.Context, groupID string) ([]DecisionEvent, error) {
	raw, err := n.redis.Range(ctx, n.redis.KeyBuilder.KeyGroupDecisionBacklog(groupID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to read decision backlog: %w", err)
	}

	events := make([]DecisionEvent, 0, len(raw))
	for _, item := range raw {
		var event DecisionEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			n.logger.Warn("Skipping malformed backlog entry", zap.String("group_id", groupID), zap.Error(err))
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// NopNotifier drops every event. Used when Redis is not configured.
type NopNotifier struct{}

func (NopNotifier) DecisionOpened(context.Context, DecisionEvent) error { return nil }

package service

import (
	"context"
	"testing"

	"dicedecision/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRerollOnce_ReplaysFirstOutcome(t *testing.T) {
	env := newTestEnv(t)
	_, client := setupTestRedis(t)
	ctx := context.Background()
	store := NewRedisIdempotencyStore(client)

	d, err := env.svc.CreateDecision(ctx, "g1", "m1", domain.CategoryFood)
	require.NoError(t, err)

	first, replayed, err := env.svc.RerollOnce(ctx, store, d.ID, "m1", "key-1")
	require.NoError(t, err)
	assert.False(t, replayed)

	again, replayed, err := env.svc.RerollOnce(ctx, store, d.ID, "m1", "key-1")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, again.ID)

	// Keys are scoped per actor, so another member's retry hits the store guard
	_, _, err = env.svc.RerollOnce(ctx, store, d.ID, "m2", "key-1")
	assert.ErrorIs(t, err, domain.ErrDecisionClosed)
}

func TestRerollOnce_PendingClaim(t *testing.T) {
	env := newTestEnv(t)
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	store := NewRedisIdempotencyStore(client)

	d, err := env.svc.CreateDecision(ctx, "g1", "m1", domain.CategoryFood)
	require.NoError(t, err)

	require.NoError(t, mr.Set(client.KeyBuilder.KeyRerollIdempotency("m1", d.ID, "key-1"), idempotencyPending))

	_, _, err = env.svc.RerollOnce(ctx, store, d.ID, "m1", "key-1")
	assert.ErrorIs(t, err, domain.ErrRerollInProgress)

	got, err := env.svc.GetDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, got.Status)
}

func TestRerollOnce_FailureReleasesKey(t *testing.T) {
	env := newTestEnv(t)
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	store := NewRedisIdempotencyStore(client)

	_, _, err := env.svc.RerollOnce(ctx, store, "missing", "m1", "key-1")
	assert.ErrorIs(t, err, domain.ErrDecisionNotFound)
	assert.False(t, mr.Exists(client.KeyBuilder.KeyRerollIdempotency("m1", "missing", "key-1")))
}

func TestRerollOnce_NoStoreOrKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	d, err := env.svc.CreateDecision(ctx, "g1", "m1", domain.CategoryFood)
	require.NoError(t, err)

	next, replayed, err := env.svc.RerollOnce(ctx, nil, d.ID, "m1", "key-1")
	require.NoError(t, err)
	assert.False(t, replayed)
	require.NotNil(t, next.RerolledFrom)
	assert.Equal(t, d.ID, *next.RerolledFrom)
}

func TestRerollOnce_RedisDownFallsThrough(t *testing.T) {
	env := newTestEnv(t)
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	store := NewRedisIdempotencyStore(client)

	d, err := env.svc.CreateDecision(ctx, "g1", "m1", domain.CategoryFood)
	require.NoError(t, err)

	mr.SetError("server down")
	next, replayed, err := env.svc.RerollOnce(ctx, store, d.ID, "m1", "key-1")
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.NotEqual(t, d.ID, next.ID)
}

func TestRerollOnce_KeyReusedOnAnotherDecision(t *testing.T) {
	env := newTestEnv(t)
	_, client := setupTestRedis(t)
	ctx := context.Background()
	store := NewRedisIdempotencyStore(client)

	a, err := env.svc.CreateDecision(ctx, "g1", "m1", domain.CategoryFood)
	require.NoError(t, err)
	b, err := env.svc.CreateDecision(ctx, "g2", "m1", domain.CategoryMovie)
	require.NoError(t, err)

	fromA, _, err := env.svc.RerollOnce(ctx, store, a.ID, "m1", "shared-key")
	require.NoError(t, err)

	// The same key on a different decision performs a real reroll of that decision
	fromB, replayed, err := env.svc.RerollOnce(ctx, store, b.ID, "m1", "shared-key")
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.NotEqual(t, fromA.ID, fromB.ID)
	require.NotNil(t, fromB.RerolledFrom)
	assert.Equal(t, b.ID, *fromB.RerolledFrom)
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"dicedecision/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLoader struct {
	decision *domain.Decision
	err      error
	calls    int
}

func (l *countingLoader) load(ctx context.Context, id string) (*domain.Decision, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.decision, nil
}

func sampleDecision(status domain.Status) *domain.Decision {
	closedAt := time.Now().UTC().Truncate(time.Millisecond)
	d := &domain.Decision{
		ID:        "d1",
		GroupID:   "g1",
		CreatedBy: "alice",
		Category:  domain.CategoryFood,
		Results:   []domain.Result{{FaceID: "food_pizza", Emoji: "🍕", Label: domain.Label{EN: "Pizza", FR: "Pizza"}}},
		Status:    status,
		Votes:     domain.NewVoteSet("alice"),
		CreatedAt: closedAt.Add(-time.Minute),
	}
	if status != domain.StatusOpen {
		d.ClosedAt = &closedAt
	}
	return d
}

func TestDecisionCache_CachesClosedDecisions(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	cache := NewDecisionCache(client, nil)
	loader := &countingLoader{decision: sampleDecision(domain.StatusAccepted)}

	first, err := cache.GetDecision(ctx, "d1", loader.load)
	require.NoError(t, err)
	second, err := cache.GetDecision(ctx, "d1", loader.load)
	require.NoError(t, err)

	assert.Equal(t, 1, loader.calls)
	assert.True(t, mr.Exists("test:decision:d1:closed"))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.StatusAccepted, second.Status)
	assert.Equal(t, domain.NewVoteSet("alice"), second.Votes)
	assert.Equal(t, first.Results, second.Results)
}

func TestDecisionCache_SkipsOpenDecisions(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	cache := NewDecisionCache(client, nil)
	loader := &countingLoader{decision: sampleDecision(domain.StatusOpen)}

	for i := 0; i < 3; i++ {
		_, err := cache.GetDecision(ctx, "d1", loader.load)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, loader.calls)
	assert.False(t, mr.Exists("test:decision:d1:closed"))
}

func TestDecisionCache_CorruptedEntryFallsBack(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("test:decision:d1:closed", "{not json"))

	cache := NewDecisionCache(client, nil)
	loader := &countingLoader{decision: sampleDecision(domain.StatusExpired)}

	d, err := cache.GetDecision(ctx, "d1", loader.load)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, d.Status)
	assert.Equal(t, 1, loader.calls)

	// The corrupted entry was overwritten with a valid snapshot
	_, err = cache.GetDecision(ctx, "d1", loader.load)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls)
}

func TestDecisionCache_FallbackErrorPropagates(t *testing.T) {
	_, client := setupTestRedis(t)
	cache := NewDecisionCache(client, nil)
	loader := &countingLoader{err: domain.ErrDecisionNotFound}

	d, err := cache.GetDecision(context.Background(), "missing", loader.load)
	assert.Nil(t, d)
	assert.True(t, errors.Is(err, domain.ErrDecisionNotFound))
}

func TestDecisionCache_RedisDownServesFromStore(t *testing.T) {
	mr, client := setupTestRedis(t)
	cache := NewDecisionCache(client, nil)
	loader := &countingLoader{decision: sampleDecision(domain.StatusAccepted)}
	mr.Close()

	d, err := cache.GetDecision(context.Background(), "d1", loader.load)
	require.NoError(t, err)
	assert.Equal(t, "d1", d.ID)
	assert.Equal(t, 1, loader.calls)
}

func TestDecisionService_GetDecisionThroughCache(t *testing.T) {
	env := newTestEnv(t)
	mr, client := setupTestRedis(t)
	ctx := context.Background()
	env.svc.UseCache(NewDecisionCache(client, nil))
	members := env.addMembers(t, "g1", 1)

	d, err := env.svc.CreateDecision(ctx, "g1", members[0], domain.CategoryQuick)
	require.NoError(t, err)

	_, err = env.svc.GetDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:decision:"+d.ID+":closed"))

	out, err := env.svc.ToggleVote(ctx, d.ID, members[0])
	require.NoError(t, err)
	require.True(t, out.Accepted)

	got, err := env.svc.GetDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, got.Status)
	assert.True(t, mr.Exists("test:decision:"+d.ID+":closed"))
}

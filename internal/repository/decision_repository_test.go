package repository

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"dicedecision/internal/domain"
	"dicedecision/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real server only when TEST_DATABASE_URL is set
func newTestPostgres(t *testing.T) (*PostgresDecisionRepository, *PostgresMembershipRepository) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	db, err := database.NewPostgresDB(ctx, url, database.PoolOptions{MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	for _, stmt := range PostgresSchema {
		_, err := db.Pool.Exec(ctx, stmt)
		require.NoError(t, err)
	}
	return NewPostgresDecisionRepository(db), NewPostgresMembershipRepository(db)
}

func TestPostgresDecisionRepository_Lifecycle(t *testing.T) {
	repo, _ := newTestPostgres(t)
	ctx := context.Background()
	groupID := "g-" + uuid.NewString()

	d := newOpenDecision(groupID, time.Now())
	require.NoError(t, repo.TryCreateOpen(ctx, d))
	assert.ErrorIs(t, repo.TryCreateOpen(ctx, newOpenDecision(groupID, time.Now())), domain.ErrOpenDecisionExists)

	got, err := repo.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Results, got.Results)
	assert.Empty(t, got.Votes)

	require.NoError(t, repo.CompareAndSwapVotes(ctx, d.ID, domain.VoteSet{}, domain.NewVoteSet("bob"), domain.StatusOpen, nil))
	assert.ErrorIs(t, repo.CompareAndSwapVotes(ctx, d.ID, domain.VoteSet{}, domain.NewVoteSet("carol"), domain.StatusOpen, nil), domain.ErrVoteConflict)

	child := newOpenDecision(groupID, time.Now())
	child.RerolledFrom = &d.ID
	require.NoError(t, repo.ReplaceWithReroll(ctx, d.ID, child, time.Now()))

	open, err := repo.FindOpen(ctx, groupID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, child.ID, open.ID)

	grandchild := newOpenDecision(groupID, time.Now())
	grandchild.RerolledFrom = &child.ID
	assert.ErrorIs(t, repo.ReplaceWithReroll(ctx, child.ID, grandchild, time.Now()), domain.ErrAlreadyRerolled)
	assert.ErrorIs(t, repo.CompareAndSwapVotes(ctx, d.ID, domain.NewVoteSet("bob"), domain.VoteSet{}, domain.StatusOpen, nil), domain.ErrDecisionClosed)

	list, err := repo.ListByGroup(ctx, groupID, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = repo.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrDecisionNotFound)
}

func TestPostgresDecisionRepository_ConcurrentCreate(t *testing.T) {
	repo, _ := newTestPostgres(t)
	ctx := context.Background()
	groupID := "g-" + uuid.NewString()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.TryCreateOpen(ctx, newOpenDecision(groupID, time.Now()))
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrOpenDecisionExists)
				return
			}
			mu.Lock()
			wins++
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestPostgresMembershipRepository(t *testing.T) {
	_, members := newTestPostgres(t)
	ctx := context.Background()
	groupID := "g-" + uuid.NewString()

	require.NoError(t, members.AddMember(ctx, groupID, "alice"))
	require.NoError(t, members.AddMember(ctx, groupID, "alice"))
	require.NoError(t, members.AddMember(ctx, groupID, "bob"))

	count, err := members.MemberCount(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, members.RemoveMember(ctx, groupID, "bob"))
	count, err = members.MemberCount(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPostgresDecisionRepository_SecondChildOfSameParent(t *testing.T) {
	repo, _ := newTestPostgres(t)
	ctx := context.Background()
	groupA := "g-" + uuid.NewString()
	groupB := "g-" + uuid.NewString()

	parent := newOpenDecision(groupA, time.Now())
	require.NoError(t, repo.TryCreateOpen(ctx, parent))
	first := newOpenDecision(groupA, time.Now())
	first.RerolledFrom = &parent.ID
	require.NoError(t, repo.ReplaceWithReroll(ctx, parent.ID, first, time.Now()))

	other := newOpenDecision(groupB, time.Now())
	require.NoError(t, repo.TryCreateOpen(ctx, other))
	second := newOpenDecision(groupB, time.Now())
	second.RerolledFrom = &parent.ID

	err := repo.ReplaceWithReroll(ctx, other.ID, second, time.Now())
	assert.ErrorIs(t, err, domain.ErrAlreadyRerolled)

	got, err := repo.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, got.Status)
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dicedecision/internal/domain"
	"dicedecision/pkg/database"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// PostgresDecisionRepository stores decisions in PostgreSQL.
// Votes are a canonical sorted text[] so the CAS is one conditional UPDATE.
type PostgresDecisionRepository struct {
	db *database.PostgresDB
}

func NewPostgresDecisionRepository(db *database.PostgresDB) *PostgresDecisionRepository {
	return &PostgresDecisionRepository{db: db}
}

const pgDecisionColumns = `id, group_id, created_by, category, status, votes, rerolled_from, created_at, accepted_at, closed_at`

// TryCreateOpen inserts an open decision guarded by decisions_one_open_per_group
func (r *PostgresDecisionRepository) TryCreateOpen(ctx context.Context, d *domain.Decision) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrCreateFailed, err)
	}
	defer tx.Rollback(ctx)

	if err := pgInsertDecision(ctx, tx, d); err != nil {
		if isPgUniqueViolation(err, indexOneOpenPerGroup) {
			return domain.ErrOpenDecisionExists
		}
		return fmt.Errorf("%w: %v", domain.ErrCreateFailed, err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isPgUniqueViolation(err, indexOneOpenPerGroup) {
			return domain.ErrOpenDecisionExists
		}
		return fmt.Errorf("%w: commit: %v", domain.ErrCreateFailed, err)
	}
	return nil
}

// CompareAndSwapVotes applies next only if the stored votes equal expected
func (r *PostgresDecisionRepository) CompareAndSwapVotes(ctx context.Context, id string, expected, next domain.VoteSet, status domain.Status, acceptedAt *time.Time) error {
	var closedAt *time.Time
	if status.Terminal() {
		closedAt = acceptedAt
	}

	query := `
		UPDATE decisions
		SET votes = $3, status = $4, accepted_at = $5, closed_at = $6
		WHERE id = $1 AND status = 'open' AND votes = $2
	`
	tag, err := r.db.Pool.Exec(ctx, query, id, voteArray(expected), voteArray(next), string(status), acceptedAt, closedAt)
	if err != nil {
		return fmt.Errorf("%w: swap votes: %v", domain.ErrUpdateFailed, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing matched: report why
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !current.IsOpen() {
		return domain.ErrDecisionClosed
	}
	return domain.ErrVoteConflict
}

// ReplaceWithReroll closes oldID and opens next in one transaction
func (r *PostgresDecisionRepository) ReplaceWithReroll(ctx context.Context, oldID string, next *domain.Decision, closedAt time.Time) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrUpdateFailed, err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE decisions
		SET status = 'rerolled', closed_at = $2
		WHERE id = $1 AND status = 'open' AND rerolled_from IS NULL
	`
	tag, err := tx.Exec(ctx, query, oldID, closedAt)
	if err != nil {
		return fmt.Errorf("%w: close old decision: %v", domain.ErrUpdateFailed, err)
	}
	if tag.RowsAffected() != 1 {
		old, err := pgGetDecision(ctx, tx, oldID)
		if err != nil {
			return err
		}
		return rerollRejection(old)
	}

	if err := pgInsertDecision(ctx, tx, next); err != nil {
		if isPgUniqueViolation(err, indexOneRerollPerParent) {
			return domain.ErrAlreadyRerolled
		}
		return fmt.Errorf("%w: insert reroll: %v", domain.ErrUpdateFailed, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrUpdateFailed, err)
	}
	return nil
}

// Get loads a decision with its results
func (r *PostgresDecisionRepository) Get(ctx context.Context, id string) (*domain.Decision, error) {
	return pgGetDecision(ctx, r.db.Pool, id)
}

// FindOpen returns the group's open decision, or nil
func (r *PostgresDecisionRepository) FindOpen(ctx context.Context, groupID string) (*domain.Decision, error) {
	query := `SELECT ` + pgDecisionColumns + ` FROM decisions WHERE group_id = $1 AND status = 'open'`
	d, err := scanPgDecision(r.db.Pool.QueryRow(ctx, query, groupID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find open decision: %v", domain.ErrReadFailed, err)
	}
	if err := pgLoadResults(ctx, r.db.Pool, []*domain.Decision{d}); err != nil {
		return nil, err
	}
	return d, nil
}

// ListByGroup returns decision history, newest first
func (r *PostgresDecisionRepository) ListByGroup(ctx context.Context, groupID string, limit int) ([]*domain.Decision, error) {
	query := `
		SELECT ` + pgDecisionColumns + `
		FROM decisions
		WHERE group_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list decisions: %v", domain.ErrReadFailed, err)
	}
	defer rows.Close()

	var decisions []*domain.Decision
	for rows.Next() {
		d, err := scanPgDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan decision: %v", domain.ErrReadFailed, err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list decisions: %v", domain.ErrReadFailed, err)
	}

	if err := pgLoadResults(ctx, r.db.Pool, decisions); err != nil {
		return nil, err
	}
	return decisions, nil
}

// ExpireOpenBefore closes stale open decisions
func (r *PostgresDecisionRepository) ExpireOpenBefore(ctx context.Context, cutoff, closedAt time.Time) ([]string, error) {
	query := `
		UPDATE decisions
		SET status = 'expired', closed_at = $2
		WHERE status = 'open' AND created_at < $1
		RETURNING id
	`
	rows, err := r.db.Pool.Query(ctx, query, cutoff, closedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: expire: %v", domain.ErrUpdateFailed, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%w: expire: %v", domain.ErrUpdateFailed, err)
	}
	return ids, nil
}

// pgQuerier is satisfied by both the pool and a transaction
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pgInsertDecision(ctx context.Context, q pgQuerier, d *domain.Decision) error {
	query := `
		INSERT INTO decisions (` + pgDecisionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := q.Exec(ctx, query,
		d.ID,
		d.GroupID,
		d.CreatedBy,
		string(d.Category),
		string(d.Status),
		voteArray(d.Votes),
		d.RerolledFrom,
		d.CreatedAt,
		d.AcceptedAt,
		d.ClosedAt,
	)
	if err != nil {
		return err
	}

	for i, res := range d.Results {
		_, err := q.Exec(ctx, `
			INSERT INTO decision_results (decision_id, position, face_id, emoji, label_en, label_fr)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, d.ID, i, res.FaceID, res.Emoji, res.Label.EN, res.Label.FR)
		if err != nil {
			return err
		}
	}
	return nil
}

func pgGetDecision(ctx context.Context, q pgQuerier, id string) (*domain.Decision, error) {
	query := `SELECT ` + pgDecisionColumns + ` FROM decisions WHERE id = $1`
	d, err := scanPgDecision(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDecisionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get decision: %v", domain.ErrReadFailed, err)
	}
	if err := pgLoadResults(ctx, q, []*domain.Decision{d}); err != nil {
		return nil, err
	}
	return d, nil
}

func scanPgDecision(row pgx.Row) (*domain.Decision, error) {
	var (
		d        domain.Decision
		category string
		status   string
		votes    []string
	)
	err := row.Scan(
		&d.ID,
		&d.GroupID,
		&d.CreatedBy,
		&category,
		&status,
		&votes,
		&d.RerolledFrom,
		&d.CreatedAt,
		&d.AcceptedAt,
		&d.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Category = domain.Category(category)
	d.Status = domain.Status(status)
	d.Votes = domain.NewVoteSet(votes...)
	return &d, nil
}

func pgLoadResults(ctx context.Context, q pgQuerier, decisions []*domain.Decision) error {
	if len(decisions) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Decision, len(decisions))
	ids := make([]string, 0, len(decisions))
	for _, d := range decisions {
		byID[d.ID] = d
		ids = append(ids, d.ID)
		d.Results = []domain.Result{}
	}

	rows, err := q.Query(ctx, `
		SELECT decision_id, face_id, emoji, label_en, label_fr
		FROM decision_results
		WHERE decision_id = ANY($1)
		ORDER BY decision_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("%w: load decision results: %v", domain.ErrReadFailed, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			decisionID string
			res        domain.Result
		)
		if err := rows.Scan(&decisionID, &res.FaceID, &res.Emoji, &res.Label.EN, &res.Label.FR); err != nil {
			return fmt.Errorf("%w: scan decision result: %v", domain.ErrReadFailed, err)
		}
		if d, ok := byID[decisionID]; ok {
			d.Results = append(d.Results, res)
		}
	}
	return rows.Err()
}

func isPgUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
}

// voteArray never returns nil: pgx encodes a nil slice as NULL
func voteArray(v domain.VoteSet) []string {
	if v == nil {
		return []string{}
	}
	return []string(v)
}

// rerollRejection explains why a reroll's close-old step matched nothing
func rerollRejection(old *domain.Decision) error {
	switch {
	case !old.IsOpen():
		return domain.ErrDecisionClosed
	case old.IsReroll():
		return domain.ErrAlreadyRerolled
	default:
		return domain.ErrUpdateFailed
	}
}

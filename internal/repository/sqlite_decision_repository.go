package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"dicedecision/internal/domain"
	"dicedecision/pkg/database"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// ApplySQLiteSchema creates the decision tables if they do not exist
func ApplySQLiteSchema(ctx context.Context, db *database.SQLiteDB) error {
	for _, stmt := range sqliteSchema {
		if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply sqlite schema: %w", err)
		}
	}
	return nil
}

// SQLiteDecisionRepository stores decisions in a single-connection SQLite
// database. Every statement inside a transaction runs on the tx; touching
// db.DB there would block on the one connection.
type SQLiteDecisionRepository struct {
	db *database.SQLiteDB
}

func NewSQLiteDecisionRepository(db *database.SQLiteDB) *SQLiteDecisionRepository {
	return &SQLiteDecisionRepository{db: db}
}

const sqliteDecisionColumns = `id, group_id, created_by, category, status, rerolled_from, created_at, accepted_at, closed_at`

func (r *SQLiteDecisionRepository) TryCreateOpen(ctx context.Context, d *domain.Decision) error {
	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrCreateFailed, err)
	}
	defer tx.Rollback()

	if err := sqliteInsertDecision(ctx, tx, d); err != nil {
		if isSQLiteUniqueViolation(err, "decisions.group_id") {
			return domain.ErrOpenDecisionExists
		}
		return fmt.Errorf("%w: %v", domain.ErrCreateFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrCreateFailed, err)
	}
	return nil
}

func (r *SQLiteDecisionRepository) CompareAndSwapVotes(ctx context.Context, id string, expected, next domain.VoteSet, status domain.Status, acceptedAt *time.Time) error {
	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrUpdateFailed, err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM decisions WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrDecisionNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: read status: %v", domain.ErrUpdateFailed, err)
	}
	if domain.Status(current) != domain.StatusOpen {
		return domain.ErrDecisionClosed
	}

	stored, err := sqliteLoadVotes(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("%w: read votes: %v", domain.ErrUpdateFailed, err)
	}
	if !stored.Equal(domain.NewVoteSet(expected...)) {
		return domain.ErrVoteConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM decision_votes WHERE decision_id = ?`, id); err != nil {
		return fmt.Errorf("%w: clear votes: %v", domain.ErrUpdateFailed, err)
	}
	for _, member := range next {
		if _, err := tx.ExecContext(ctx, `INSERT INTO decision_votes (decision_id, member_id) VALUES (?, ?)`, id, member); err != nil {
			return fmt.Errorf("%w: write vote: %v", domain.ErrUpdateFailed, err)
		}
	}

	var closedAt *time.Time
	if status.Terminal() {
		closedAt = acceptedAt
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE decisions SET status = ?, accepted_at = ?, closed_at = ? WHERE id = ?`,
		string(status), nullableMillis(acceptedAt), nullableMillis(closedAt), id,
	)
	if err != nil {
		return fmt.Errorf("%w: update status: %v", domain.ErrUpdateFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrUpdateFailed, err)
	}
	return nil
}

func (r *SQLiteDecisionRepository) ReplaceWithReroll(ctx context.Context, oldID string, next *domain.Decision, closedAt time.Time) error {
	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrUpdateFailed, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE decisions
		SET status = 'rerolled', closed_at = ?
		WHERE id = ? AND status = 'open' AND rerolled_from IS NULL
	`, closedAt.UnixMilli(), oldID)
	if err != nil {
		return fmt.Errorf("%w: close old decision: %v", domain.ErrUpdateFailed, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: close old decision: %v", domain.ErrUpdateFailed, err)
	}
	if affected != 1 {
		old, err := sqliteGetDecision(ctx, tx, oldID)
		if err != nil {
			return err
		}
		return rerollRejection(old)
	}

	if err := sqliteInsertDecision(ctx, tx, next); err != nil {
		if isSQLiteUniqueViolation(err, "decisions.rerolled_from") {
			return domain.ErrAlreadyRerolled
		}
		return fmt.Errorf("%w: insert reroll: %v", domain.ErrUpdateFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrUpdateFailed, err)
	}
	return nil
}

func (r *SQLiteDecisionRepository) Get(ctx context.Context, id string) (*domain.Decision, error) {
	return sqliteGetDecision(ctx, r.db.DB, id)
}

func (r *SQLiteDecisionRepository) FindOpen(ctx context.Context, groupID string) (*domain.Decision, error) {
	query := `SELECT ` + sqliteDecisionColumns + ` FROM decisions WHERE group_id = ? AND status = 'open'`
	d, err := scanSQLiteDecision(r.db.DB.QueryRowContext(ctx, query, groupID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find open decision: %v", domain.ErrReadFailed, err)
	}
	if err := sqliteHydrate(ctx, r.db.DB, []*domain.Decision{d}); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *SQLiteDecisionRepository) ListByGroup(ctx context.Context, groupID string, limit int) ([]*domain.Decision, error) {
	query := `
		SELECT ` + sqliteDecisionColumns + `
		FROM decisions
		WHERE group_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := r.db.DB.QueryContext(ctx, query, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list decisions: %v", domain.ErrReadFailed, err)
	}

	var decisions []*domain.Decision
	for rows.Next() {
		d, err := scanSQLiteDecision(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scan decision: %v", domain.ErrReadFailed, err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("%w: list decisions: %v", domain.ErrReadFailed, err)
	}
	// Release the connection before hydrating
	rows.Close()

	if err := sqliteHydrate(ctx, r.db.DB, decisions); err != nil {
		return nil, err
	}
	return decisions, nil
}

func (r *SQLiteDecisionRepository) ExpireOpenBefore(ctx context.Context, cutoff, closedAt time.Time) ([]string, error) {
	rows, err := r.db.DB.QueryContext(ctx, `
		UPDATE decisions
		SET status = 'expired', closed_at = ?
		WHERE status = 'open' AND created_at < ?
		RETURNING id
	`, closedAt.UnixMilli(), cutoff.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("%w: expire: %v", domain.ErrUpdateFailed, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: expire: %v", domain.ErrUpdateFailed, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: expire: %v", domain.ErrUpdateFailed, err)
	}
	return ids, nil
}

// SQLiteMembershipRepository is the group roster stored alongside decisions
type SQLiteMembershipRepository struct {
	db  *database.SQLiteDB
	now func() time.Time
}

func NewSQLiteMembershipRepository(db *database.SQLiteDB) *SQLiteMembershipRepository {
	return &SQLiteMembershipRepository{db: db, now: time.Now}
}

func (r *SQLiteMembershipRepository) MemberCount(ctx context.Context, groupID string) (int, error) {
	var count int
	err := r.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM group_members WHERE group_id = ?`, groupID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count group members: %w", err)
	}
	return count, nil
}

func (r *SQLiteMembershipRepository) AddMember(ctx context.Context, groupID, memberID string) error {
	_, err := r.db.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_members (group_id, member_id, joined_at) VALUES (?, ?, ?)`,
		groupID, memberID, r.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

func (r *SQLiteMembershipRepository) RemoveMember(ctx context.Context, groupID, memberID string) error {
	_, err := r.db.DB.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ? AND member_id = ?`, groupID, memberID)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	return nil
}

// sqliteQuerier is satisfied by *sql.DB and *sql.Tx
type sqliteQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func sqliteInsertDecision(ctx context.Context, q sqliteQuerier, d *domain.Decision) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO decisions (`+sqliteDecisionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID,
		d.GroupID,
		d.CreatedBy,
		string(d.Category),
		string(d.Status),
		d.RerolledFrom,
		d.CreatedAt.UnixMilli(),
		nullableMillis(d.AcceptedAt),
		nullableMillis(d.ClosedAt),
	)
	if err != nil {
		return err
	}

	for i, res := range d.Results {
		_, err := q.ExecContext(ctx, `
			INSERT INTO decision_results (decision_id, position, face_id, emoji, label_en, label_fr)
			VALUES (?, ?, ?, ?, ?, ?)
		`, d.ID, i, res.FaceID, res.Emoji, res.Label.EN, res.Label.FR)
		if err != nil {
			return err
		}
	}
	for _, member := range d.Votes {
		if _, err := q.ExecContext(ctx, `INSERT INTO decision_votes (decision_id, member_id) VALUES (?, ?)`, d.ID, member); err != nil {
			return err
		}
	}
	return nil
}

func sqliteGetDecision(ctx context.Context, q sqliteQuerier, id string) (*domain.Decision, error) {
	query := `SELECT ` + sqliteDecisionColumns + ` FROM decisions WHERE id = ?`
	d, err := scanSQLiteDecision(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDecisionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get decision: %v", domain.ErrReadFailed, err)
	}
	if err := sqliteHydrate(ctx, q, []*domain.Decision{d}); err != nil {
		return nil, err
	}
	return d, nil
}

func scanSQLiteDecision(row rowScanner) (*domain.Decision, error) {
	var (
		d            domain.Decision
		category     string
		status       string
		rerolledFrom sql.NullString
		createdAt    int64
		acceptedAt   sql.NullInt64
		closedAt     sql.NullInt64
	)
	err := row.Scan(
		&d.ID,
		&d.GroupID,
		&d.CreatedBy,
		&category,
		&status,
		&rerolledFrom,
		&createdAt,
		&acceptedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Category = domain.Category(category)
	d.Status = domain.Status(status)
	if rerolledFrom.Valid {
		parent := rerolledFrom.String
		d.RerolledFrom = &parent
	}
	d.CreatedAt = time.UnixMilli(createdAt).UTC()
	d.AcceptedAt = timeFromMillis(acceptedAt)
	d.ClosedAt = timeFromMillis(closedAt)
	d.Votes = domain.VoteSet{}
	d.Results = []domain.Result{}
	return &d, nil
}

// sqliteHydrate attaches results and votes to each decision
func sqliteHydrate(ctx context.Context, q sqliteQuerier, decisions []*domain.Decision) error {
	if len(decisions) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Decision, len(decisions))
	args := make([]any, 0, len(decisions))
	for _, d := range decisions {
		byID[d.ID] = d
		args = append(args, d.ID)
	}
	in := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")

	rows, err := q.QueryContext(ctx, `
		SELECT decision_id, face_id, emoji, label_en, label_fr
		FROM decision_results
		WHERE decision_id IN (`+in+`)
		ORDER BY decision_id, position
	`, args...)
	if err != nil {
		return fmt.Errorf("%w: load decision results: %v", domain.ErrReadFailed, err)
	}
	for rows.Next() {
		var (
			decisionID string
			res        domain.Result
		)
		if err := rows.Scan(&decisionID, &res.FaceID, &res.Emoji, &res.Label.EN, &res.Label.FR); err != nil {
			rows.Close()
			return fmt.Errorf("%w: scan decision result: %v", domain.ErrReadFailed, err)
		}
		if d, ok := byID[decisionID]; ok {
			d.Results = append(d.Results, res)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("%w: load decision results: %v", domain.ErrReadFailed, err)
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `
		SELECT decision_id, member_id
		FROM decision_votes
		WHERE decision_id IN (`+in+`)
		ORDER BY decision_id, member_id
	`, args...)
	if err != nil {
		return fmt.Errorf("%w: load decision votes: %v", domain.ErrReadFailed, err)
	}
	defer rows.Close()
	for rows.Next() {
		var decisionID, member string
		if err := rows.Scan(&decisionID, &member); err != nil {
			return fmt.Errorf("%w: scan decision vote: %v", domain.ErrReadFailed, err)
		}
		if d, ok := byID[decisionID]; ok {
			d.Votes = append(d.Votes, member)
		}
	}
	return rows.Err()
}

func sqliteLoadVotes(ctx context.Context, q sqliteQuerier, id string) (domain.VoteSet, error) {
	rows, err := q.QueryContext(ctx, `SELECT member_id FROM decision_votes WHERE decision_id = ? ORDER BY member_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	votes := domain.VoteSet{}
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, err
		}
		votes = append(votes, member)
	}
	return votes, rows.Err()
}

// isSQLiteUniqueViolation matches a unique failure on the given table.column
func isSQLiteUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() != sqlite3lib.SQLITE_CONSTRAINT_UNIQUE {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") && strings.Contains(message, column)
}

func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func timeFromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

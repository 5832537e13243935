package repository

import (
	"context"
	"fmt"

	"dicedecision/pkg/database"
)

// PostgresMembershipRepository reads the group roster from group_members
type PostgresMembershipRepository struct {
	db *database.PostgresDB
}

func NewPostgresMembershipRepository(db *database.PostgresDB) *PostgresMembershipRepository {
	return &PostgresMembershipRepository{db: db}
}

// MemberCount returns the current roster size
func (r *PostgresMembershipRepository) MemberCount(ctx context.Context, groupID string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM group_members WHERE group_id = $1`, groupID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count group members: %w", err)
	}
	return count, nil
}

// AddMember inserts a roster row if absent
func (r *PostgresMembershipRepository) AddMember(ctx context.Context, groupID, memberID string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO group_members (group_id, member_id)
		VALUES ($1, $2)
		ON CONFLICT (group_id, member_id) DO NOTHING
	`, groupID, memberID)
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

// RemoveMember deletes a roster row if present
func (r *PostgresMembershipRepository) RemoveMember(ctx context.Context, groupID, memberID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM group_members WHERE group_id = $1 AND member_id = $2`, groupID, memberID)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	return nil
}

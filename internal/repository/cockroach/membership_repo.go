package cockroach

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MembershipRepository handles room membership lookups
type MembershipRepository struct {
	pool *pgxpool.Pool
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(pool *pgxpool.Pool) *MembershipRepository {
	return &MembershipRepository{pool: pool}
}

// IsMember checks if a user belongs to a chat room
func (r *MembershipRepository) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, roomID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}

	return exists, nil
}

// ListMemberIDs retrieves all member ids of a chat room
func (r *MembershipRepository) ListMemberIDs(ctx context.Context, roomID int64) ([]int64, error) {
	query := `
		SELECT user_id
		FROM room_members
		WHERE room_id = $1
		ORDER BY joined_at ASC
	`

	rows, err := r.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return ids, nil
}

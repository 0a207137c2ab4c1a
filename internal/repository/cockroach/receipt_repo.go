package cockroach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cipherlink-backend/internal/domain"
)

// uniqueViolation is the PostgreSQL/CockroachDB error code for a duplicate key
const uniqueViolation = "23505"

// ReceiptRepository handles read receipt persistence
type ReceiptRepository struct {
	pool *pgxpool.Pool
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(pool *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{pool: pool}
}

// Find retrieves the receipt for (messageID, userID), or domain.ErrNotFound
func (r *ReceiptRepository) Find(ctx context.Context, messageID, userID int64) (*domain.ReadReceipt, error) {
	query := `
		SELECT message_id, user_id, read_at
		FROM read_receipts
		WHERE message_id = $1 AND user_id = $2
	`

	receipt := &domain.ReadReceipt{}
	err := r.pool.QueryRow(ctx, query, messageID, userID).Scan(
		&receipt.MessageID,
		&receipt.UserID,
		&receipt.ReadAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}

	return receipt, nil
}

// Create inserts a receipt with a server-assigned read_at. The primary key
// (message_id, user_id) makes the insert the serialization point for
// concurrent readers: the losing writer gets domain.ErrAlreadyExists.
func (r *ReceiptRepository) Create(ctx context.Context, messageID, userID int64) (*domain.ReadReceipt, error) {
	query := `
		INSERT INTO read_receipts (message_id, user_id, read_at)
		VALUES ($1, $2, $3)
		RETURNING read_at
	`

	receipt := &domain.ReadReceipt{
		MessageID: messageID,
		UserID:    userID,
	}

	err := r.pool.QueryRow(ctx, query, messageID, userID, time.Now().UTC()).Scan(&receipt.ReadAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create receipt: %w", err)
	}

	return receipt, nil
}

// ListByMessage retrieves all receipts for a message
func (r *ReceiptRepository) ListByMessage(ctx context.Context, messageID int64) ([]*domain.ReadReceipt, error) {
	query := `
		SELECT message_id, user_id, read_at
		FROM read_receipts
		WHERE message_id = $1
		ORDER BY read_at ASC
	`

	rows, err := r.pool.Query(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*domain.ReadReceipt
	for rows.Next() {
		receipt := &domain.ReadReceipt{}
		if err := rows.Scan(&receipt.MessageID, &receipt.UserID, &receipt.ReadAt); err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, receipt)
	}

	return receipts, nil
}

package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cipherlink-backend/internal/domain"
	"cipherlink-backend/pkg/constants"
)

// CallRepository handles call data operations
type CallRepository struct {
	pool *pgxpool.Pool
}

// NewCallRepository creates a new call repository
func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

// Create inserts a new call in INITIATED state and fills in its id
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	query := `
		INSERT INTO calls (caller_id, callee_id, chat_id, mode, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING call_id, created_at
	`

	call.Status = constants.CallStatusInitiated
	err := r.pool.QueryRow(ctx, query,
		call.CallerID,
		call.CalleeID,
		call.ChatID,
		call.Mode,
		call.Status,
	).Scan(&call.CallID, &call.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}

	return nil
}

// GetByID retrieves a call by ID
func (r *CallRepository) GetByID(ctx context.Context, callID int64) (*domain.Call, error) {
	query := `
		SELECT call_id, caller_id, callee_id, chat_id, mode, status,
		       accepted_at, ended_at, created_at
		FROM calls
		WHERE call_id = $1
	`

	call := &domain.Call{}
	err := r.pool.QueryRow(ctx, query, callID).Scan(
		&call.CallID,
		&call.CallerID,
		&call.CalleeID,
		&call.ChatID,
		&call.Mode,
		&call.Status,
		&call.AcceptedAt,
		&call.EndedAt,
		&call.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}

	return call, nil
}

// MarkAnswered transitions the call to ANSWERED and stamps accepted_at
func (r *CallRepository) MarkAnswered(ctx context.Context, callID int64) (*domain.Call, error) {
	query := `
		UPDATE calls
		SET status = $2, accepted_at = NOW()
		WHERE call_id = $1
		RETURNING call_id, caller_id, callee_id, chat_id, mode, status,
		          accepted_at, ended_at, created_at
	`
	return r.scanUpdate(ctx, query, callID, constants.CallStatusAnswered)
}

// MarkRejected transitions the call to REJECTED and stamps ended_at
func (r *CallRepository) MarkRejected(ctx context.Context, callID int64) (*domain.Call, error) {
	query := `
		UPDATE calls
		SET status = $2, ended_at = NOW()
		WHERE call_id = $1
		RETURNING call_id, caller_id, callee_id, chat_id, mode, status,
		          accepted_at, ended_at, created_at
	`
	return r.scanUpdate(ctx, query, callID, constants.CallStatusRejected)
}

// MarkEnded transitions the call to ENDED and stamps ended_at
func (r *CallRepository) MarkEnded(ctx context.Context, callID int64) (*domain.Call, error) {
	query := `
		UPDATE calls
		SET status = $2, ended_at = NOW()
		WHERE call_id = $1
		RETURNING call_id, caller_id, callee_id, chat_id, mode, status,
		          accepted_at, ended_at, created_at
	`
	return r.scanUpdate(ctx, query, callID, constants.CallStatusEnded)
}

func (r *CallRepository) scanUpdate(ctx context.Context, query string, callID int64, status string) (*domain.Call, error) {
	call := &domain.Call{}
	err := r.pool.QueryRow(ctx, query, callID, status).Scan(
		&call.CallID,
		&call.CallerID,
		&call.CalleeID,
		&call.ChatID,
		&call.Mode,
		&call.Status,
		&call.AcceptedAt,
		&call.EndedAt,
		&call.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update call: %w", err)
	}

	return call, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nurselink-backend/internal/domain"
)

// ErrCallNotFound is returned when no call row matches the lookup
var ErrCallNotFound = errors.New("call not found")

// CallRepository handles call data operations
type CallRepository struct {
	pool *pgxpool.Pool
}

// NewCallRepository creates a new call repository
func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

// Create creates a new call record
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	query := `
		INSERT INTO calls (
			id, conversation_id, room_name, started_by, status, started_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		call.ID,
		call.ConversationID,
		call.RoomName,
		call.StartedBy,
		call.Status,
		call.StartedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}

	return nil
}

// GetByID retrieves a call by ID
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	query := `
		SELECT id, conversation_id, room_name, started_by, status,
		       started_at, ended_at, duration
		FROM calls
		WHERE id = $1
	`

	return r.scanOne(r.pool.QueryRow(ctx, query, callID))
}

// GetByRoomName retrieves a call by its media room name
func (r *CallRepository) GetByRoomName(ctx context.Context, roomName string) (*domain.Call, error) {
	query := `
		SELECT id, conversation_id, room_name, started_by, status,
		       started_at, ended_at, duration
		FROM calls
		WHERE room_name = $1
	`

	return r.scanOne(r.pool.QueryRow(ctx, query, roomName))
}

// GetOngoing retrieves the unterminated call for a conversation, if any
func (r *CallRepository) GetOngoing(ctx context.Context, conversationID uuid.UUID) (*domain.Call, error) {
	query := `
		SELECT id, conversation_id, room_name, started_by, status,
		       started_at, ended_at, duration
		FROM calls
		WHERE conversation_id = $1 AND status = $2
		ORDER BY started_at DESC
		LIMIT 1
	`

	return r.scanOne(r.pool.QueryRow(ctx, query, conversationID, domain.CallStatusActive))
}

// GetHistory retrieves past calls for a conversation, newest first
func (r *CallRepository) GetHistory(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	query := `
		SELECT id, conversation_id, room_name, started_by, status,
		       started_at, ended_at, duration
		FROM calls
		WHERE conversation_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get call history: %w", err)
	}
	defer rows.Close()

	var calls []*domain.Call
	for rows.Next() {
		call := &domain.Call{}
		err := rows.Scan(
			&call.ID,
			&call.ConversationID,
			&call.RoomName,
			&call.StartedBy,
			&call.Status,
			&call.StartedAt,
			&call.EndedAt,
			&call.Duration,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, call)
	}

	return calls, nil
}

// MarkEnded marks a call as ended and calculates duration
func (r *CallRepository) MarkEnded(ctx context.Context, callID uuid.UUID) error {
	query := `
		UPDATE calls
		SET status = $2,
		    ended_at = NOW(),
		    duration = EXTRACT(EPOCH FROM (NOW() - started_at))::INT
		WHERE id = $1 AND status = $3
	`

	_, err := r.pool.Exec(ctx, query, callID, domain.CallStatusEnded, domain.CallStatusActive)
	if err != nil {
		return fmt.Errorf("failed to end call: %w", err)
	}

	return nil
}

func (r *CallRepository) scanOne(row pgx.Row) (*domain.Call, error) {
	call := &domain.Call{}
	err := row.Scan(
		&call.ID,
		&call.ConversationID,
		&call.RoomName,
		&call.StartedBy,
		&call.Status,
		&call.StartedAt,
		&call.EndedAt,
		&call.Duration,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}

	return call, nil
}

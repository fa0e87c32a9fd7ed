package cassandra

import (
	"fmt"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"nurselink-backend/internal/domain"
)

// CallEventRepository handles the append-only call lifecycle audit log in Cassandra
type CallEventRepository struct {
	session *gocql.Session
}

// NewCallEventRepository creates a new CallEventRepository
func NewCallEventRepository(session *gocql.Session) *CallEventRepository {
	return &CallEventRepository{session: session}
}

// Append inserts a lifecycle transition record
func (r *CallEventRepository) Append(event *domain.CallEvent) error {
	query := `
		INSERT INTO call_events (
			conversation_id, call_id, actor_id, kind, occurred_at
		) VALUES (?, ?, ?, ?, ?)
	`

	err := r.session.Query(query,
		event.ConversationID,
		event.CallID,
		event.ActorID,
		event.Kind,
		event.OccurredAt,
	).Exec()

	if err != nil {
		return fmt.Errorf("failed to append call event: %w", err)
	}

	return nil
}

// GetByCall retrieves the lifecycle trail of one call, oldest first
func (r *CallEventRepository) GetByCall(conversationID, callID uuid.UUID) ([]*domain.CallEvent, error) {
	query := `
		SELECT conversation_id, call_id, actor_id, kind, occurred_at
		FROM call_events
		WHERE conversation_id = ? AND call_id = ?
		ORDER BY occurred_at ASC
	`

	iter := r.session.Query(query, conversationID, callID).Iter()
	defer iter.Close()

	var events []*domain.CallEvent
	for {
		event := &domain.CallEvent{}
		if !iter.Scan(
			&event.ConversationID,
			&event.CallID,
			&event.ActorID,
			&event.Kind,
			&event.OccurredAt,
		) {
			break
		}
		events = append(events, event)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to read call events: %w", err)
	}

	return events, nil
}

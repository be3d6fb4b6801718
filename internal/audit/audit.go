// Package audit records immutable visit workflow events for the
// clinical audit trail.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of visit audit event.
type EventType string

const (
	// EventVisitOpened is logged when a visit session is created.
	EventVisitOpened EventType = "visit.opened"
	// EventVisitClosed is logged when a visit session ends.
	EventVisitClosed EventType = "visit.closed"
	// EventQuestionAnswered is logged when a suggested question is answered.
	EventQuestionAnswered EventType = "visit.question_answered"
	// EventBatchReplaced is logged when a new question batch replaces the current one.
	EventBatchReplaced EventType = "visit.batch_replaced"
	// EventSuggestionsRequested is logged when a care-suggestion refresh is enqueued.
	EventSuggestionsRequested EventType = "visit.suggestions_requested"
)

// Event is an immutable audit record for a visit.
type Event struct {
	ID        string          `json:"id"`
	EventType EventType       `json:"event_type"`
	VisitID   string          `json:"visit_id"`
	PatientID string          `json:"patient_id,omitempty"`
	DoctorID  string          `json:"doctor_id,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Service handles visit audit logging.
type Service struct {
	db *sql.DB
}

// NewService creates a new audit service. A nil db disables auditing.
func NewService(db *sql.DB) *Service {
	if db == nil {
		return nil
	}
	return &Service{db: db}
}

// LogEvent records a visit audit event.
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if s == nil || s.db == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO visit_audit_events (
			id, event_type, visit_id, patient_id, doctor_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.EventType),
		event.VisitID,
		nullIfEmpty(event.PatientID),
		nullIfEmpty(event.DoctorID),
		nullIfEmptyBytes(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// RecentEvents returns the newest events for a visit, newest first.
func (s *Service) RecentEvents(ctx context.Context, visitID string, limit int) ([]Event, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, event_type, visit_id, patient_id, doctor_id, details, created_at
		FROM visit_audit_events
		WHERE visit_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, visitID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			evt       Event
			eventType string
			patientID sql.NullString
			doctorID  sql.NullString
			details   []byte
		)
		if err := rows.Scan(&evt.ID, &eventType, &evt.VisitID, &patientID, &doctorID, &details, &evt.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		evt.EventType = EventType(eventType)
		evt.PatientID = patientID.String
		evt.DoctorID = doctorID.String
		if len(details) > 0 {
			evt.Details = json.RawMessage(details)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate events: %w", err)
	}
	return events, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfEmptyBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

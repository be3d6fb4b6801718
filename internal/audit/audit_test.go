package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_LogEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO visit_audit_events").
		WithArgs(sqlmock.AnyArg(), "visit.opened", "visit-1", "patient-9", "doctor-1", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	svc := NewService(db)
	err = svc.LogEvent(context.Background(), Event{
		EventType: EventVisitOpened,
		VisitID:   "visit-1",
		PatientID: "patient-9",
		DoctorID:  "doctor-1",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_LogEventNullsEmptyFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO visit_audit_events").
		WithArgs(sqlmock.AnyArg(), "visit.closed", "visit-1", nil, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	svc := NewService(db)
	err = svc.LogEvent(context.Background(), Event{
		EventType: EventVisitClosed,
		VisitID:   "visit-1",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_RecentEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	details := []byte(`{"source":"objects"}`)

	mock.ExpectQuery("SELECT id, event_type, visit_id, patient_id, doctor_id, details, created_at").
		WithArgs("visit-1", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "visit_id", "patient_id", "doctor_id", "details", "created_at"}).
			AddRow("evt-2", "visit.batch_replaced", "visit-1", "patient-9", nil, details, created.Add(time.Minute)).
			AddRow("evt-1", "visit.opened", "visit-1", "patient-9", "doctor-1", nil, created))

	svc := NewService(db)
	events, err := svc.RecentEvents(context.Background(), "visit-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, EventBatchReplaced, events[0].EventType)
	assert.Equal(t, json.RawMessage(details), events[0].Details)
	assert.Empty(t, events[0].DoctorID)
	assert.Equal(t, "doctor-1", events[1].DoctorID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_NilServiceIsNoOp(t *testing.T) {
	var svc *Service

	assert.NoError(t, svc.LogEvent(context.Background(), Event{EventType: EventVisitOpened}))
	events, err := svc.RecentEvents(context.Background(), "visit-1", 5)
	assert.NoError(t, err)
	assert.Nil(t, events)
	assert.Nil(t, NewService(nil))
}

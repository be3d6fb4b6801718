package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type statsDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// VisitActivityDay captures per-day visit funnel counts derived from
// the audit event stream.
type VisitActivityDay struct {
	Day               time.Time `json:"-"`
	DayLabel          string    `json:"day"`
	VisitsOpened      int64     `json:"visits_opened"`
	VisitsClosed      int64     `json:"visits_closed"`
	QuestionsAnswered int64     `json:"questions_answered"`
}

// Repository queries visit activity metrics from the audit event table.
type Repository struct {
	db statsDB
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("stats: pgx pool required")
	}
	return &Repository{db: pool}
}

func NewRepositoryWithDB(db statsDB) *Repository {
	return &Repository{db: db}
}

// VisitActivityByDay aggregates audit events into per-day open, close,
// and answered-question counts for the given window.
func (r *Repository) VisitActivityByDay(ctx context.Context, start, end time.Time) ([]VisitActivityDay, error) {
	if end.Before(start) || end.Equal(start) {
		return nil, fmt.Errorf("stats: invalid time range")
	}

	query := `
		SELECT date_trunc('day', created_at) AS day,
		       COUNT(*) FILTER (WHERE event_type = 'visit.opened') AS visits_opened,
		       COUNT(*) FILTER (WHERE event_type = 'visit.closed') AS visits_closed,
		       COUNT(*) FILTER (WHERE event_type = 'visit.question_answered') AS questions_answered
		FROM visit_audit_events
		WHERE created_at >= $1
		  AND created_at < $2
		GROUP BY day
		ORDER BY day
	`

	rows, err := r.db.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("stats: query activity: %w", err)
	}
	defer rows.Close()

	var results []VisitActivityDay
	for rows.Next() {
		var day time.Time
		var opened, closed, answered int64
		if err := rows.Scan(&day, &opened, &closed, &answered); err != nil {
			return nil, fmt.Errorf("stats: scan activity: %w", err)
		}
		results = append(results, VisitActivityDay{
			Day:               day.UTC(),
			DayLabel:          day.UTC().Format("2006-01-02"),
			VisitsOpened:      opened,
			VisitsClosed:      closed,
			QuestionsAnswered: answered,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stats: iterate activity: %w", err)
	}
	return results, nil
}

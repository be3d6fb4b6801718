package suggestions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const resultKeyPrefix = "visit_suggestions:"

// Result is the latest care-recommendation output for a visit. The
// payload is the chatbot's free-form recommendation object, served
// verbatim.
type Result struct {
	VisitID     string          `json:"visit_id"`
	Status      string          `json:"status"` // "pending", "ready", "failed"
	Payload     json.RawMessage `json:"payload,omitempty"`
	Error       string          `json:"error,omitempty"`
	RequestedAt time.Time       `json:"requested_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ResultStore keeps the latest suggestion result per visit in Redis,
// with the same session-scoped TTL as the rest of the visit state. A
// nil store no-ops.
type ResultStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
}

// NewResultStore creates a result store with the given TTL.
func NewResultStore(redisClient *redis.Client, ttl time.Duration) *ResultStore {
	if redisClient == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &ResultStore{
		redis:  redisClient,
		tracer: otel.Tracer("docsentra.internal.suggestions.results"),
		ttl:    ttl,
	}
}

// Save overwrites the result for a visit.
func (s *ResultStore) Save(ctx context.Context, result Result) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if result.VisitID == "" {
		return errors.New("suggestions: result visitID required")
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("suggestions: marshal result: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "suggestions.results.save")
	defer span.End()

	if err := s.redis.Set(ctx, resultKey(result.VisitID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("suggestions: save result: %w", err)
	}
	return nil
}

// Get returns the latest result for a visit, or nil when none exists.
func (s *ResultStore) Get(ctx context.Context, visitID string) (*Result, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}
	if visitID == "" {
		return nil, errors.New("suggestions: result visitID required")
	}

	ctx, span := s.tracer.Start(ctx, "suggestions.results.get")
	defer span.End()

	data, err := s.redis.Get(ctx, resultKey(visitID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("suggestions: load result: %w", err)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("suggestions: decode result: %w", err)
	}
	return &result, nil
}

func resultKey(visitID string) string {
	return resultKeyPrefix + visitID
}

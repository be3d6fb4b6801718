package visit

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

const transcriptKeyPrefix = "visit_transcript:"

// TranscriptStore mirrors a session's transcript into Redis so a
// reconnecting workbench can restore the visible log. The mirror lives
// only as long as the session TTL; it is not a durable record.
//
// A nil store is valid and turns every method into a no-op, matching
// deployments without Redis.
type TranscriptStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
}

// NewTranscriptStore creates a transcript mirror with the given
// session-scoped TTL.
func NewTranscriptStore(redisClient *redis.Client, ttl time.Duration) *TranscriptStore {
	if redisClient == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &TranscriptStore{
		redis:  redisClient,
		tracer: otel.Tracer("docsentra.internal.visit.transcript"),
		ttl:    ttl,
	}
}

// Save overwrites the mirrored transcript for the visit.
func (s *TranscriptStore) Save(ctx context.Context, visitID string, messages []TranscriptMessage) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if visitID == "" {
		return errors.New("visit: transcript visitID required")
	}

	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("visit: marshal transcript: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "visit.transcript.save")
	defer span.End()

	if err := s.redis.Set(ctx, transcriptKey(visitID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("visit: save transcript: %w", err)
	}
	return nil
}

// Load returns the mirrored transcript, or an empty slice when the visit
// has no mirror.
func (s *TranscriptStore) Load(ctx context.Context, visitID string) ([]TranscriptMessage, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}
	if visitID == "" {
		return nil, errors.New("visit: transcript visitID required")
	}

	ctx, span := s.tracer.Start(ctx, "visit.transcript.load")
	defer span.End()

	data, err := s.redis.Get(ctx, transcriptKey(visitID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return []TranscriptMessage{}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("visit: load transcript: %w", err)
	}

	var messages []TranscriptMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("visit: decode transcript: %w", err)
	}
	return messages, nil
}

// Delete drops the mirror when a session ends.
func (s *TranscriptStore) Delete(ctx context.Context, visitID string) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if visitID == "" {
		return errors.New("visit: transcript visitID required")
	}

	ctx, span := s.tracer.Start(ctx, "visit.transcript.delete")
	defer span.End()

	if err := s.redis.Del(ctx, transcriptKey(visitID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("visit: delete transcript: %w", err)
	}
	return nil
}

func transcriptKey(visitID string) string {
	return transcriptKeyPrefix + visitID
}

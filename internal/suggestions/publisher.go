package suggestions

import (
	"context"
	"fmt"

	"github.com/docsentra/consult-platform/pkg/logging"
)

// Publisher enqueues suggestion refresh jobs for asynchronous
// processing.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("suggestions: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueRefresh publishes a care-suggestion refresh job.
func (p *Publisher) EnqueueRefresh(ctx context.Context, jobID string, req RefreshRequest) error {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, body, err := encodePayload(jobID, req)
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("suggestions: failed to enqueue job: %w", err)
	}

	p.logger.Debug("suggestion job enqueued", "job_id", payload.ID, "visit_id", req.VisitID)
	return nil
}

package suggestions

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/docsentra/consult-platform/internal/chatbot"
	"github.com/docsentra/consult-platform/internal/observability/metrics"
	"github.com/docsentra/consult-platform/pkg/logging"
)

// Backend is the subset of the chatbot client the worker calls.
type Backend interface {
	Suggestions(ctx context.Context, req chatbot.SuggestionsRequest) (*chatbot.SuggestionsResponse, error)
}

// Worker consumes suggestion refresh jobs and stores the chatbot's care
// recommendations.
type Worker struct {
	queue   queueClient
	backend Backend
	store   *ResultStore
	logger  *logging.Logger
	metrics *metrics.VisitMetrics

	workers     int
	receiveWait int

	wg sync.WaitGroup
}

// NewWorker creates a suggestions worker pool.
func NewWorker(queue queueClient, backend Backend, store *ResultStore, logger *logging.Logger, m *metrics.VisitMetrics, workers int) *Worker {
	if queue == nil {
		panic("suggestions: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Worker{
		queue:       queue,
		backend:     backend,
		store:       store,
		logger:      logger,
		metrics:     m,
		workers:     workers,
		receiveWait: 5,
	}
}

// Start launches the worker goroutines. They exit when ctx is done.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx)
		}()
	}
}

// Wait blocks until all worker goroutines have exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) runLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		messages, err := w.queue.Receive(ctx, 1, w.receiveWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("suggestions receive failed", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			w.process(ctx, msg)
			if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
				w.logger.Error("suggestions delete failed", "error", err)
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, msg queueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("suggestions job decode failed", "error", err)
		return
	}
	req := payload.Refresh
	if req.VisitID == "" {
		w.logger.Warn("suggestions job missing visit_id", "job_id", payload.ID)
		return
	}

	start := time.Now()
	resp, err := w.backend.Suggestions(ctx, chatbot.SuggestionsRequest{
		PatientName:  req.PatientName,
		Conversation: req.Conversation,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	w.metrics.ObserveChatbotRequest("suggestions", status, time.Since(start).Seconds())

	now := time.Now().UTC()
	result := Result{
		VisitID:     req.VisitID,
		RequestedAt: now,
		CompletedAt: &now,
	}
	if err != nil {
		w.logger.Error("suggestions fetch failed", "error", err, "visit_id", req.VisitID)
		result.Status = "failed"
		result.Error = "could not generate care suggestions"
	} else {
		result.Status = "ready"
		result.Payload = resp.Payload
	}

	if err := w.store.Save(ctx, result); err != nil {
		w.logger.Error("suggestions result save failed", "error", err, "visit_id", req.VisitID)
		return
	}
	w.logger.Info("suggestions job processed", "visit_id", req.VisitID, "status", result.Status)
}

// Package suggestions runs the asynchronous care-recommendation
// pipeline: refresh jobs are queued per visit, a worker forwards the
// conversation to the chatbot backend, and the latest result is stored
// for the workbench to read.
package suggestions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/docsentra/consult-platform/internal/chatbot"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// RefreshRequest asks the worker to regenerate care suggestions for a
// visit from its conversation so far.
type RefreshRequest struct {
	VisitID      string                     `json:"visit_id"`
	PatientName  string                     `json:"patient_name"`
	Conversation []chatbot.ConversationTurn `json:"conversation"`
}

type queuePayload struct {
	ID      string         `json:"id"`
	Refresh RefreshRequest `json:"refresh"`
}

func encodePayload(jobID string, req RefreshRequest) (queuePayload, string, error) {
	payload := queuePayload{ID: jobID, Refresh: req}
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("suggestions: failed to encode payload: %w", err)
	}
	return payload, string(body), nil
}

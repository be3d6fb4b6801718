// Package chatbot provides a client for the external chatbot backend
// that generates suggested questions and care recommendations. The
// backend's implementation lives outside this repository; only the wire
// contract below is depended on.
package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docsentra/consult-platform/pkg/logging"
)

// QuestionsRequest is the payload for POST /chatbot/questions.
type QuestionsRequest struct {
	PatientName string `json:"patient_name"`
	DoctorInput string `json:"doctor_input"`
	PatientID   string `json:"patient_id"`
}

// QuestionsResponse is the reply to a questions request. The questions
// field is not guaranteed to be present, or to be an array; callers go
// through QuestionLines rather than reading it directly.
type QuestionsResponse struct {
	Questions json.RawMessage `json:"questions"`
	Response  string          `json:"response"`
}

// QuestionLines returns the raw lines of the questions field, or nil
// when the field is absent, null, or not an array of strings.
func (r *QuestionsResponse) QuestionLines() []string {
	if r == nil || len(r.Questions) == 0 {
		return nil
	}
	var lines []string
	if err := json.Unmarshal(r.Questions, &lines); err != nil {
		return nil
	}
	return lines
}

// ConversationTurn is one transcript turn forwarded to the suggestions
// endpoint.
type ConversationTurn struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// SuggestionsRequest is the payload for POST /chatbot/suggestions.
type SuggestionsRequest struct {
	PatientName  string             `json:"patient_name"`
	Conversation []ConversationTurn `json:"conversation"`
}

// SuggestionsResponse carries the backend's free-form recommendation
// object. It is stored and served verbatim.
type SuggestionsResponse struct {
	Payload json.RawMessage
}

// Client is an HTTP client for the chatbot backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout sets the request timeout on the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a chatbot backend client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Questions asks the backend for a suggested-question batch for the
// given patient and doctor input.
func (c *Client) Questions(ctx context.Context, req QuestionsRequest) (*QuestionsResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("chatbot: marshal questions request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chatbot/questions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chatbot: create questions request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chatbot: questions request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chatbot: questions request returned status %d: %s", resp.StatusCode, string(raw))
	}

	var result QuestionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("chatbot: decode questions response: %w", err)
	}

	c.logger.Debug("chatbot questions received",
		"patient_id", req.PatientID,
		"raw_questions", len(result.Questions) > 0,
	)
	return &result, nil
}

// Suggestions asks the backend for care recommendations derived from
// the conversation so far.
func (c *Client) Suggestions(ctx context.Context, req SuggestionsRequest) (*SuggestionsResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("chatbot: marshal suggestions request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chatbot/suggestions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chatbot: create suggestions request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chatbot: suggestions request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("chatbot: read suggestions response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chatbot: suggestions request returned status %d: %s", resp.StatusCode, string(raw))
	}

	return &SuggestionsResponse{Payload: json.RawMessage(raw)}, nil
}

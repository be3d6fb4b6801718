package visit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/docsentra/consult-platform/internal/chatbot"
	"github.com/docsentra/consult-platform/internal/observability/metrics"
	"github.com/docsentra/consult-platform/pkg/logging"
)

// State is the interaction controller's position in the guided
// questioning flow.
type State string

const (
	// StateIdle accepts new input.
	StateIdle State = "idle"
	// StateAwaitingFreeformResponse means a free-text message was sent
	// and a chatbot call is in flight.
	StateAwaitingFreeformResponse State = "awaiting_freeform_response"
	// StateAwaitingQuestionAnswer means a suggested question is active
	// and the clinician's typed answer is awaited. No call is in flight.
	StateAwaitingQuestionAnswer State = "awaiting_question_answer"
	// StateSubmittingAnswer means an answer was submitted and a chatbot
	// call is in flight.
	StateSubmittingAnswer State = "submitting_answer"
)

var (
	// ErrBusy rejects a submission while a chatbot call is in flight.
	ErrBusy = errors.New("visit: a chatbot call is already in flight")
	// ErrQuestionActive rejects a freeform message while a suggested
	// question awaits its answer.
	ErrQuestionActive = errors.New("visit: a suggested question is awaiting an answer")
	// ErrNoActiveQuestion rejects an answer when nothing is selected.
	ErrNoActiveQuestion = errors.New("visit: no question is awaiting an answer")
	// ErrClosed rejects operations on an ended session.
	ErrClosed = errors.New("visit: session is closed")
)

const (
	placeholderText    = "Processing your message..."
	genericGreeting    = "Hello! I'm ready to help with this visit. Share an update or pick a suggested question."
	genericErrorReply  = "Sorry, there was an error processing your message. Please try again."
	batchReplacedReply = "I've updated the suggested questions based on the latest information."
	batchIntroReply    = "I've prepared some suggested questions to guide this visit."
)

// Backend is the subset of the chatbot client the controller calls.
type Backend interface {
	Questions(ctx context.Context, req chatbot.QuestionsRequest) (*chatbot.QuestionsResponse, error)
}

// Snapshot is a point-in-time projection of a visit session for the API
// and the live stream.
type Snapshot struct {
	VisitID     string              `json:"visit_id"`
	PatientID   string              `json:"patient_id"`
	PatientName string              `json:"patient_name"`
	State       State               `json:"state"`
	Questions   []SuggestedQuestion `json:"questions"`
	ActiveIndex *int                `json:"active_question_index"`
	IsAnswering bool                `json:"is_answering_question"`
	Transcript  []TranscriptMessage `json:"transcript"`
}

// Controller mediates between clinician actions, the question parser,
// the lifecycle tracker, and the transcript, and drives calls to the
// chatbot backend. One controller exists per open visit screen; its
// mutex serializes operations the way the original cooperative event
// loop did. Chatbot calls happen outside the lock, guarded by the
// in-flight states.
type Controller struct {
	visitID     string
	patientID   string
	patientName string

	backend Backend
	logger  *logging.Logger
	metrics *metrics.VisitMetrics

	mu         sync.Mutex
	state      State
	closed     bool
	tracker    *Tracker
	transcript *Transcript
	onUpdate   func(Snapshot)
}

// NewController creates a controller for one visit session.
func NewController(visitID, patientID, patientName string, backend Backend, logger *logging.Logger, m *metrics.VisitMetrics) *Controller {
	if logger == nil {
		logger = logging.Default()
	}
	return &Controller{
		visitID:     visitID,
		patientID:   patientID,
		patientName: patientName,
		backend:     backend,
		logger:      logger.WithVisit(visitID),
		metrics:     m,
		state:       StateIdle,
		tracker:     NewTracker(),
		transcript:  NewTranscript(),
	}
}

// SetUpdateHook registers a callback invoked with a fresh snapshot after
// every state change. The hook runs outside the controller lock and must
// not block.
func (c *Controller) SetUpdateHook(hook func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = hook
}

// Open fetches the initial question batch for the visit. Failures are
// absorbed: the screen always comes up, falling back to a generic
// greeting with no suggested questions.
func (c *Controller) Open(ctx context.Context, doctorInput string) {
	resp, err := c.callQuestions(ctx, doctorInput)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.logger.Error("initial question fetch failed", "error", err)
		c.transcript.AppendAI(genericGreeting)
		c.metrics.ObserveQuestionBatch("empty")
		c.finishLocked()
		return
	}
	c.applyQuestionBatchLocked(resp, batchIntroReply)
	c.finishLocked()
}

// SendMessage handles a free-text clinician message: a placeholder AI
// turn is appended, the chatbot is called, and the placeholder is
// swapped for either an explanatory message (when a new question batch
// replaces the current one) or the raw response text.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.state {
	case StateAwaitingFreeformResponse, StateSubmittingAnswer:
		c.mu.Unlock()
		c.metrics.ObserveBusyRejected()
		return ErrBusy
	case StateAwaitingQuestionAnswer:
		c.mu.Unlock()
		return ErrQuestionActive
	}
	c.transcript.AppendUser(text)
	c.transcript.AppendAI(placeholderText)
	c.state = StateAwaitingFreeformResponse
	c.finishLocked()

	resp, err := c.callQuestions(ctx, text)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateIdle
	if err != nil {
		c.logger.Error("freeform message failed", "error", err)
		c.transcript.ReplaceLast(isPlaceholder, TranscriptMessage{Sender: SenderAI, Text: genericErrorReply})
		c.finishLocked()
		return nil
	}
	c.applyFreeformResponseLocked(resp)
	c.finishLocked()
	return nil
}

// SelectQuestion activates the suggested question at index, with the
// tracker's deselect/toggle semantics. Rejected while a call is in
// flight.
func (c *Controller) SelectQuestion(index int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateAwaitingFreeformResponse || c.state == StateSubmittingAnswer {
		c.mu.Unlock()
		c.metrics.ObserveBusyRejected()
		return ErrBusy
	}
	c.tracker.Select(index)
	c.syncAnsweringStateLocked()
	c.finishLocked()
	return nil
}

// CancelQuestion deselects the active question, if any.
func (c *Controller) CancelQuestion() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateAwaitingFreeformResponse || c.state == StateSubmittingAnswer {
		c.mu.Unlock()
		c.metrics.ObserveBusyRejected()
		return ErrBusy
	}
	c.tracker.CancelActive()
	c.syncAnsweringStateLocked()
	c.finishLocked()
	return nil
}

// AnswerQuestion records the typed answer for the active question: the
// question is marked answered, the Q/A pair lands on the transcript, and
// the pair is submitted to the chatbot. The submission result never
// replaces the question batch, and a failed submission is logged without
// rolling the answered status back.
func (c *Controller) AnswerQuestion(ctx context.Context, answer string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateAwaitingFreeformResponse || c.state == StateSubmittingAnswer {
		c.mu.Unlock()
		c.metrics.ObserveBusyRejected()
		return ErrBusy
	}
	qa, ok := c.tracker.AnswerActive(answer)
	if !ok {
		c.mu.Unlock()
		return ErrNoActiveQuestion
	}
	c.transcript.AppendQA(qa.Question, qa.Answer)
	c.state = StateSubmittingAnswer
	c.metrics.ObserveQuestionAnswered()
	c.finishLocked()

	_, err := c.callQuestions(ctx, fmt.Sprintf("Q: %s\nA: %s", qa.Question, qa.Answer))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateIdle
	if err != nil {
		// The answered status stays: the original flow has no
		// compensating transaction for a failed submission.
		c.logger.Error("answer submission failed", "error", err, "question", qa.Question)
	}
	c.finishLocked()
	return nil
}

// Close ends the session. Any chatbot call still in flight is discarded
// when it resolves.
func (c *Controller) Close(reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.metrics.ObserveVisitClosed(reason)
	c.logger.Info("visit session closed", "reason", reason)
}

// Closed reports whether the session has ended.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Snapshot returns the current projection of the session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// ConversationTurns projects the transcript into the payload shape the
// chatbot suggestions endpoint expects.
func (c *Controller) ConversationTurns() []chatbot.ConversationTurn {
	msgs := c.transcript.Messages()
	turns := make([]chatbot.ConversationTurn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, chatbot.ConversationTurn{Sender: string(m.Sender), Text: m.Text})
	}
	return turns
}

// PatientName returns the patient's display name.
func (c *Controller) PatientName() string {
	return c.patientName
}

func (c *Controller) callQuestions(ctx context.Context, doctorInput string) (*chatbot.QuestionsResponse, error) {
	start := time.Now()
	resp, err := c.backend.Questions(ctx, chatbot.QuestionsRequest{
		PatientName: c.patientName,
		DoctorInput: doctorInput,
		PatientID:   c.patientID,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.ObserveChatbotRequest("questions", status, time.Since(start).Seconds())
	return resp, err
}

// applyQuestionBatchLocked parses a questions response and installs the
// batch, appending an explanatory AI message; with nothing parseable it
// falls back to the raw response text, or the generic greeting.
func (c *Controller) applyQuestionBatchLocked(resp *chatbot.QuestionsResponse, intro string) {
	batch, fallback := ParseQuestions(resp.QuestionLines())
	if len(batch) > 0 {
		c.tracker.Initialize(batch)
		c.transcript.AppendAI(intro)
		c.metrics.ObserveQuestionBatch(batchSource(fallback))
		return
	}
	c.metrics.ObserveQuestionBatch("empty")
	if resp.Response != "" {
		c.transcript.AppendAI(resp.Response)
		return
	}
	c.transcript.AppendAI(genericGreeting)
}

// applyFreeformResponseLocked is the same as applyQuestionBatchLocked
// but swaps the placeholder instead of appending.
func (c *Controller) applyFreeformResponseLocked(resp *chatbot.QuestionsResponse) {
	batch, fallback := ParseQuestions(resp.QuestionLines())
	if len(batch) > 0 {
		c.tracker.Initialize(batch)
		c.transcript.ReplaceLast(isPlaceholder, TranscriptMessage{Sender: SenderAI, Text: batchReplacedReply})
		c.metrics.ObserveQuestionBatch(batchSource(fallback))
		return
	}
	c.metrics.ObserveQuestionBatch("empty")
	reply := resp.Response
	if reply == "" {
		reply = genericGreeting
	}
	c.transcript.ReplaceLast(isPlaceholder, TranscriptMessage{Sender: SenderAI, Text: reply})
}

func (c *Controller) syncAnsweringStateLocked() {
	if c.tracker.IsAnswering() {
		c.state = StateAwaitingQuestionAnswer
	} else {
		c.state = StateIdle
	}
}

// finishLocked snapshots, releases the lock, and fires the update hook.
func (c *Controller) finishLocked() {
	snap := c.snapshotLocked()
	hook := c.onUpdate
	c.mu.Unlock()
	if hook != nil {
		hook(snap)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	var active *int
	if idx := c.tracker.ActiveIndex(); idx >= 0 {
		active = &idx
	}
	return Snapshot{
		VisitID:     c.visitID,
		PatientID:   c.patientID,
		PatientName: c.patientName,
		State:       c.state,
		Questions:   c.tracker.Questions(),
		ActiveIndex: active,
		IsAnswering: c.tracker.IsAnswering(),
		Transcript:  c.transcript.Messages(),
	}
}

func isPlaceholder(m TranscriptMessage) bool {
	return m.Sender == SenderAI && m.Text == placeholderText
}

func batchSource(fallback bool) string {
	if fallback {
		return "fallback"
	}
	return "objects"
}

package visit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/docsentra/consult-platform/internal/audit"
	"github.com/docsentra/consult-platform/internal/suggestions"
	"github.com/docsentra/consult-platform/pkg/logging"
)

// SuggestionPublisher enqueues care-suggestion refresh jobs.
type SuggestionPublisher interface {
	EnqueueRefresh(ctx context.Context, jobID string, req suggestions.RefreshRequest) error
}

// SuggestionStore reads and seeds suggestion results.
type SuggestionStore interface {
	Save(ctx context.Context, result suggestions.Result) error
	Get(ctx context.Context, visitID string) (*suggestions.Result, error)
}

// Handler wires HTTP requests to visit sessions.
type Handler struct {
	manager    *Manager
	transcript *TranscriptStore
	hub        *StreamHub
	suggest    SuggestionPublisher
	results    SuggestionStore
	audit      *audit.Service
	logger     *logging.Logger
}

// NewHandler creates a visit handler.
func NewHandler(manager *Manager, transcript *TranscriptStore, hub *StreamHub, suggest SuggestionPublisher, results SuggestionStore, auditSvc *audit.Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		manager:    manager,
		transcript: transcript,
		hub:        hub,
		suggest:    suggest,
		results:    results,
		audit:      auditSvc,
		logger:     logger,
	}
}

type openRequest struct {
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
	DoctorID    string `json:"doctor_id"`
	DoctorInput string `json:"doctor_input"`
}

type textRequest struct {
	Text string `json:"text"`
}

// Open handles POST /api/visits.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode open request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.PatientID) == "" || strings.TrimSpace(req.PatientName) == "" {
		http.Error(w, "patient_id and patient_name are required", http.StatusBadRequest)
		return
	}

	session := h.manager.Create(req.PatientID, req.PatientName, req.DoctorID)
	session.Controller.SetUpdateHook(h.updateHook(session.ID))

	h.logAudit(r.Context(), audit.Event{
		EventType: audit.EventVisitOpened,
		VisitID:   session.ID,
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
	})

	session.Controller.Open(r.Context(), req.DoctorInput)
	h.writeJSON(w, http.StatusCreated, session.Controller.Snapshot())
}

// Get handles GET /api/visits/{visitID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, session.Controller.Snapshot())
}

// SelectQuestion handles POST /api/visits/{visitID}/questions/{index}/select.
func (h *Handler) SelectQuestion(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "invalid question index", http.StatusBadRequest)
		return
	}
	if err := session.Controller.SelectQuestion(index); err != nil {
		h.writeControllerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session.Controller.Snapshot())
}

// CancelQuestion handles POST /api/visits/{visitID}/questions/cancel.
func (h *Handler) CancelQuestion(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.Controller.CancelQuestion(); err != nil {
		h.writeControllerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session.Controller.Snapshot())
}

// AnswerQuestion handles POST /api/visits/{visitID}/questions/answer.
func (h *Handler) AnswerQuestion(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	if err := session.Controller.AnswerQuestion(r.Context(), req.Text); err != nil {
		h.writeControllerError(w, err)
		return
	}

	h.logAudit(r.Context(), audit.Event{
		EventType: audit.EventQuestionAnswered,
		VisitID:   session.ID,
		PatientID: session.PatientID,
		DoctorID:  session.DoctorID,
	})
	h.writeJSON(w, http.StatusOK, session.Controller.Snapshot())
}

// SendMessage handles POST /api/visits/{visitID}/messages.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	before := session.Controller.Snapshot().Questions
	if err := session.Controller.SendMessage(r.Context(), req.Text); err != nil {
		h.writeControllerError(w, err)
		return
	}
	after := session.Controller.Snapshot()

	if len(after.Questions) > 0 && !questionsEqual(before, after.Questions) {
		h.logAudit(r.Context(), audit.Event{
			EventType: audit.EventBatchReplaced,
			VisitID:   session.ID,
			PatientID: session.PatientID,
			DoctorID:  session.DoctorID,
		})
	}
	h.writeJSON(w, http.StatusOK, after)
}

// Transcript handles GET /api/visits/{visitID}/transcript. When the
// session is gone it falls back to the Redis mirror, so a reconnecting
// client can still render the log until the TTL lapses.
func (h *Handler) Transcript(w http.ResponseWriter, r *http.Request) {
	visitID := chi.URLParam(r, "visitID")
	if session, err := h.manager.Get(visitID); err == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"messages": session.Controller.Snapshot().Transcript})
		return
	}

	messages, err := h.transcript.Load(r.Context(), visitID)
	if err != nil {
		h.logger.Error("failed to load mirrored transcript", "error", err, "visit_id", visitID)
		http.Error(w, "failed to load transcript", http.StatusInternalServerError)
		return
	}
	if len(messages) == 0 {
		http.Error(w, "visit not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// Stream handles GET /api/visits/{visitID}/stream, upgrading to a
// WebSocket that pushes a snapshot on every state change.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	session, err := h.manager.Get(chi.URLParam(r, "visitID"))
	if err != nil {
		http.Error(w, "visit not found", http.StatusNotFound)
		return
	}

	websocket.Handler(func(conn *websocket.Conn) {
		h.serveStream(conn, session)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveStream(conn *websocket.Conn, session *Session) {
	h.hub.Register(session.ID, conn)
	defer h.hub.Unregister(session.ID, conn)

	if err := websocket.JSON.Send(conn, session.Controller.Snapshot()); err != nil {
		return
	}

	h.logger.Info("visit stream opened", "visit_id", session.ID)
	for {
		// Push-only stream: inbound frames are drained to detect close.
		var discard json.RawMessage
		if err := websocket.JSON.Receive(conn, &discard); err != nil {
			h.logger.Debug("visit stream closed", "visit_id", session.ID, "error", err)
			return
		}
	}
}

// Close handles DELETE /api/visits/{visitID}.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	visitID := chi.URLParam(r, "visitID")
	session, err := h.manager.Get(visitID)
	if err != nil {
		http.Error(w, "visit not found", http.StatusNotFound)
		return
	}

	if err := h.manager.Close(visitID, "ended"); err != nil {
		http.Error(w, "visit not found", http.StatusNotFound)
		return
	}
	if err := h.transcript.Delete(r.Context(), visitID); err != nil {
		h.logger.Error("failed to delete mirrored transcript", "error", err, "visit_id", visitID)
	}
	h.logAudit(r.Context(), audit.Event{
		EventType: audit.EventVisitClosed,
		VisitID:   visitID,
		PatientID: session.PatientID,
		DoctorID:  session.DoctorID,
	})
	w.WriteHeader(http.StatusNoContent)
}

// RefreshSuggestions handles POST /api/visits/{visitID}/suggestions.
func (h *Handler) RefreshSuggestions(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if h.suggest == nil {
		http.Error(w, "suggestions are not enabled", http.StatusNotImplemented)
		return
	}

	req := suggestions.RefreshRequest{
		VisitID:      session.ID,
		PatientName:  session.Controller.PatientName(),
		Conversation: session.Controller.ConversationTurns(),
	}
	if err := h.suggest.EnqueueRefresh(r.Context(), "", req); err != nil {
		h.logger.Error("failed to enqueue suggestions", "error", err, "visit_id", session.ID)
		http.Error(w, "failed to request suggestions", http.StatusInternalServerError)
		return
	}

	if h.results != nil {
		pending := suggestions.Result{
			VisitID:     session.ID,
			Status:      "pending",
			RequestedAt: time.Now().UTC(),
		}
		if err := h.results.Save(r.Context(), pending); err != nil {
			h.logger.Error("failed to seed pending suggestion result", "error", err, "visit_id", session.ID)
		}
	}

	h.logAudit(r.Context(), audit.Event{
		EventType: audit.EventSuggestionsRequested,
		VisitID:   session.ID,
		PatientID: session.PatientID,
		DoctorID:  session.DoctorID,
	})
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending", "visit_id": session.ID})
}

// Suggestions handles GET /api/visits/{visitID}/suggestions.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if h.results == nil {
		http.Error(w, "suggestions are not enabled", http.StatusNotImplemented)
		return
	}

	result, err := h.results.Get(r.Context(), session.ID)
	if err != nil {
		h.logger.Error("failed to load suggestion result", "error", err, "visit_id", session.ID)
		http.Error(w, "failed to load suggestions", http.StatusInternalServerError)
		return
	}
	if result == nil {
		http.Error(w, "no suggestions requested for this visit", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// updateHook broadcasts snapshots to stream watchers and mirrors the
// transcript. The mirror write runs off the hot path.
func (h *Handler) updateHook(visitID string) func(Snapshot) {
	return func(snap Snapshot) {
		h.hub.Broadcast(snap)
		if h.transcript == nil {
			return
		}
		go func(messages []TranscriptMessage) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.transcript.Save(ctx, visitID, messages); err != nil {
				h.logger.Error("failed to mirror transcript", "error", err, "visit_id", visitID)
			}
		}(snap.Transcript)
	}
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	session, err := h.manager.Get(chi.URLParam(r, "visitID"))
	if err != nil {
		http.Error(w, "visit not found", http.StatusNotFound)
		return nil, false
	}
	return session, true
}

func (h *Handler) writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBusy):
		http.Error(w, "a request is already in flight for this visit", http.StatusConflict)
	case errors.Is(err, ErrQuestionActive):
		http.Error(w, "a suggested question is awaiting an answer", http.StatusConflict)
	case errors.Is(err, ErrNoActiveQuestion):
		http.Error(w, "no question is awaiting an answer", http.StatusConflict)
	case errors.Is(err, ErrClosed):
		http.Error(w, "visit has ended", http.StatusGone)
	default:
		h.logger.Error("visit operation failed", "error", err)
		http.Error(w, "visit operation failed", http.StatusInternalServerError)
	}
}

func (h *Handler) logAudit(ctx context.Context, event audit.Event) {
	if err := h.audit.LogEvent(ctx, event); err != nil {
		h.logger.Error("failed to write audit event", "error", err, "event_type", event.EventType)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

func questionsEqual(a, b []SuggestedQuestion) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Text != b[i].Text {
			return false
		}
	}
	return true
}

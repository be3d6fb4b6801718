package visit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/docsentra/consult-platform/internal/chatbot"
	"github.com/docsentra/consult-platform/internal/suggestions"
	"github.com/docsentra/consult-platform/pkg/logging"
)

type stubPublisher struct {
	enqueued []suggestions.RefreshRequest
	err      error
}

func (s *stubPublisher) EnqueueRefresh(_ context.Context, _ string, req suggestions.RefreshRequest) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, req)
	return nil
}

type stubResultStore struct {
	results map[string]*suggestions.Result
}

func newStubResultStore() *stubResultStore {
	return &stubResultStore{results: map[string]*suggestions.Result{}}
}

func (s *stubResultStore) Save(_ context.Context, result suggestions.Result) error {
	s.results[result.VisitID] = &result
	return nil
}

func (s *stubResultStore) Get(_ context.Context, visitID string) (*suggestions.Result, error) {
	return s.results[visitID], nil
}

type handlerFixture struct {
	handler *Handler
	manager *Manager
	router  *chi.Mux
	store   *TranscriptStore
	results *stubResultStore
	publish *stubPublisher
	mr      *miniredis.Miniredis
}

func newHandlerFixture(t *testing.T, backend Backend) *handlerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewTranscriptStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)

	manager := NewManager(backend, time.Hour, logging.Default(), nil)
	hub := NewStreamHub(logging.Default())
	publish := &stubPublisher{}
	results := newStubResultStore()
	handler := NewHandler(manager, store, hub, publish, results, nil, logging.Default())

	r := chi.NewRouter()
	r.Route("/api/visits", func(r chi.Router) {
		r.Post("/", handler.Open)
		r.Route("/{visitID}", func(r chi.Router) {
			r.Get("/", handler.Get)
			r.Delete("/", handler.Close)
			r.Post("/messages", handler.SendMessage)
			r.Post("/questions/{index}/select", handler.SelectQuestion)
			r.Post("/questions/cancel", handler.CancelQuestion)
			r.Post("/questions/answer", handler.AnswerQuestion)
			r.Get("/transcript", handler.Transcript)
			r.Get("/stream", handler.Stream)
			r.Post("/suggestions", handler.RefreshSuggestions)
			r.Get("/suggestions", handler.Suggestions)
		})
	})

	return &handlerFixture{
		handler: handler,
		manager: manager,
		router:  r,
		store:   store,
		results: results,
		publish: publish,
		mr:      mr,
	}
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) openVisit(t *testing.T) Snapshot {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/visits", map[string]string{
		"patient_id":   "patient-9",
		"patient_name": "Jordan Reyes",
		"doctor_id":    "doctor-1",
		"doctor_input": "patient presents with a cough",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	return snap
}

func questionBackend(t *testing.T, questions ...string) *mockBackend {
	t.Helper()
	return &mockBackend{fn: func(chatbot.QuestionsRequest) (*chatbot.QuestionsResponse, error) {
		return batchResponse(t, questions...), nil
	}}
}

func TestHandler_OpenCreatesSession(t *testing.T) {
	f := newHandlerFixture(t, questionBackend(t, "How long have you had this cough?"))

	snap := f.openVisit(t)

	assert.NotEmpty(t, snap.VisitID)
	assert.Equal(t, "Jordan Reyes", snap.PatientName)
	assert.Equal(t, StateIdle, snap.State)
	require.Len(t, snap.Questions, 1)
	assert.Equal(t, 1, f.manager.Len())
}

func TestHandler_OpenValidatesRequest(t *testing.T) {
	f := newHandlerFixture(t, &mockBackend{})

	rec := f.do(t, http.MethodPost, "/api/visits", map[string]string{"patient_name": "Jordan Reyes"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/visits", strings.NewReader("{not json"))
	raw := httptest.NewRecorder()
	f.router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestHandler_GetUnknownVisit(t *testing.T) {
	f := newHandlerFixture(t, &mockBackend{})

	rec := f.do(t, http.MethodGet, "/api/visits/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_QuestionLifecycleOverHTTP(t *testing.T) {
	f := newHandlerFixture(t, questionBackend(t, "Any fever?", "Any chest pain?"))
	snap := f.openVisit(t)
	base := "/api/visits/" + snap.VisitID

	rec := f.do(t, http.MethodPost, base+"/questions/0/select", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var selected Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &selected))
	require.NotNil(t, selected.ActiveIndex)
	assert.Equal(t, 0, *selected.ActiveIndex)
	assert.Equal(t, StateAwaitingQuestionAnswer, selected.State)

	// A freeform message is rejected while the question awaits its answer.
	rec = f.do(t, http.MethodPost, base+"/messages", map[string]string{"text": "note"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, base+"/questions/answer", map[string]string{"text": "No fever"})
	require.Equal(t, http.StatusOK, rec.Code)
	var answered Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answered))
	assert.Equal(t, StatusAnswered, answered.Questions[0].Status)
	assert.Nil(t, answered.ActiveIndex)
}

func TestHandler_CancelQuestionOverHTTP(t *testing.T) {
	f := newHandlerFixture(t, questionBackend(t, "Any fever?"))
	snap := f.openVisit(t)
	base := "/api/visits/" + snap.VisitID

	rec := f.do(t, http.MethodPost, base+"/questions/0/select", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, base+"/questions/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var canceled Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &canceled))
	assert.Nil(t, canceled.ActiveIndex)
	assert.Equal(t, StatusPending, canceled.Questions[0].Status)
}

func TestHandler_SelectInvalidIndex(t *testing.T) {
	f := newHandlerFixture(t, questionBackend(t, "Any fever?"))
	snap := f.openVisit(t)

	rec := f.do(t, http.MethodPost, "/api/visits/"+snap.VisitID+"/questions/abc/select", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_AnswerWithoutActiveQuestion(t *testing.T) {
	f := newHandlerFixture(t, questionBackend(t, "Any fever?"))
	snap := f.openVisit(t)

	rec := f.do(t, http.MethodPost, "/api/visits/"+snap.VisitID+"/questions/answer", map[string]string{"text": "orphan"})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_AnswerRequiresText(t *testing.T) {
	f := newHandlerFixture(t, questionBackend(t, "Any fever?"))
	snap := f.openVisit(t)

	rec := f.do(t, http.MethodPost, "/api/visits/"+snap.VisitID+"/questions/answer", map[string]string{"text": "   "})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_CloseEndsSessionAndDropsMirror(t *testing.T) {
	f := newHandlerFixture(t, questionBackend(t, "Any fever?"))
	snap := f.openVisit(t)
	base := "/api/visits/" + snap.VisitID

	rec := f.do(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, 0, f.manager.Len())
	assert.False(t, f.mr.Exists("visit_transcript:"+snap.VisitID))

	rec = f.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_TranscriptFallsBackToMirror(t *testing.T) {
	f := newHandlerFixture(t, &mockBackend{})

	messages := []TranscriptMessage{{Sender: SenderUser, Text: "restored line"}}
	require.NoError(t, f.store.Save(context.Background(), "gone-visit", messages))

	rec := f.do(t, http.MethodGet, "/api/visits/gone-visit/transcript", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Messages []TranscriptMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "restored line", resp.Messages[0].Text)
}

func TestHandler_TranscriptUnknownVisit(t *testing.T) {
	f := newHandlerFixture(t, &mockBackend{})

	rec := f.do(t, http.MethodGet, "/api/visits/never-existed/transcript", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_SuggestionsRoundTrip(t *testing.T) {
	f := newHandlerFixture(t, questionBackend(t, "Any fever?"))
	snap := f.openVisit(t)
	base := "/api/visits/" + snap.VisitID + "/suggestions"

	rec := f.do(t, http.MethodPost, base, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.publish.enqueued, 1)
	assert.Equal(t, snap.VisitID, f.publish.enqueued[0].VisitID)
	assert.Equal(t, "Jordan Reyes", f.publish.enqueued[0].PatientName)
	assert.NotEmpty(t, f.publish.enqueued[0].Conversation)

	rec = f.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result suggestions.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "pending", result.Status)
}

func TestHandler_SuggestionsNotRequested(t *testing.T) {
	f := newHandlerFixture(t, questionBackend(t, "Any fever?"))
	snap := f.openVisit(t)

	rec := f.do(t, http.MethodGet, "/api/visits/"+snap.VisitID+"/suggestions", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_StreamPushesSnapshots(t *testing.T) {
	f := newHandlerFixture(t, questionBackend(t, "Any fever?"))
	snap := f.openVisit(t)

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/visits/" + snap.VisitID + "/stream"
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	require.NoError(t, err)
	defer conn.Close()

	var initial Snapshot
	require.NoError(t, websocket.JSON.Receive(conn, &initial))
	assert.Equal(t, snap.VisitID, initial.VisitID)

	// A state change lands on the stream.
	rec := f.do(t, http.MethodPost, "/api/visits/"+snap.VisitID+"/questions/0/select", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var update Snapshot
	require.NoError(t, websocket.JSON.Receive(conn, &update))
	assert.Equal(t, StateAwaitingQuestionAnswer, update.State)
	require.NotNil(t, update.ActiveIndex)
	assert.Equal(t, 0, *update.ActiveIndex)
}

func TestHandler_UpdateHookMirrorsTranscript(t *testing.T) {
	f := newHandlerFixture(t, questionBackend(t, "Any fever?"))
	snap := f.openVisit(t)

	require.Eventually(t, func() bool {
		messages, err := f.store.Load(context.Background(), snap.VisitID)
		return err == nil && len(messages) > 0
	}, 2*time.Second, 20*time.Millisecond, "mirror write should land")
}

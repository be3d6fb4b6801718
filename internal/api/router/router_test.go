package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsentra/consult-platform/internal/chatbot"
	"github.com/docsentra/consult-platform/internal/visit"
	"github.com/docsentra/consult-platform/pkg/logging"
)

const testSecret = "router-test-secret"

type staticBackend struct{}

func (staticBackend) Questions(context.Context, chatbot.QuestionsRequest) (*chatbot.QuestionsResponse, error) {
	return &chatbot.QuestionsResponse{Response: "Noted."}, nil
}

func signToken(t *testing.T, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"role": role,
		"sub":  "clin-1",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	manager := visit.NewManager(staticBackend{}, time.Hour, logging.Default(), nil)
	hub := visit.NewStreamHub(logging.Default())
	handler := visit.NewHandler(manager, nil, hub, nil, nil, nil, logging.Default())

	return New(&Config{
		Logger:         logging.Default(),
		VisitHandler:   handler,
		AuthJWTSecret:  testSecret,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("# metrics")) }),
	})
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_HealthIsPublic(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestRouter_MetricsIsPublic(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_APIRequiresToken(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/visits/some-id", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_DoctorCanOpenVisit(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/visits", signToken(t, "doctor"), map[string]string{
		"patient_id":   "patient-9",
		"patient_name": "Jordan Reyes",
		"doctor_input": "cough",
	})

	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRouter_NurseCannotMutate(t *testing.T) {
	h := newTestRouter(t)
	token := signToken(t, "nurse")

	rec := do(t, h, http.MethodPost, "/api/visits", token, map[string]string{
		"patient_id":   "patient-9",
		"patient_name": "Jordan Reyes",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/visits/some-id/messages", token, map[string]string{"text": "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_NurseCanRead(t *testing.T) {
	h := newTestRouter(t)

	// Auth passes; the unknown visit yields 404 rather than 401/403.
	rec := do(t, h, http.MethodGet, "/api/visits/some-id", signToken(t, "nurse"), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_UnknownRoleRejected(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/visits/some-id", signToken(t, "receptionist"), nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

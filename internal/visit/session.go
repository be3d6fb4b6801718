package visit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docsentra/consult-platform/internal/observability/metrics"
	"github.com/docsentra/consult-platform/pkg/logging"
)

// ErrSessionNotFound is returned when a visit ID does not resolve to an
// open session.
var ErrSessionNotFound = errors.New("visit: session not found")

// Session couples a visit's controller with its identity and activity
// tracking. State lives in memory only and dies with the session.
type Session struct {
	ID          string
	PatientID   string
	PatientName string
	DoctorID    string
	Controller  *Controller
	CreatedAt   time.Time

	mu         sync.Mutex
	lastActive time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive)
}

// Manager owns the open visit sessions: one controller per open screen.
// Sessions expire after a period of inactivity so abandoned screens do
// not leak; a chatbot call resolving after expiry is discarded by the
// controller's closed flag.
type Manager struct {
	backend Backend
	logger  *logging.Logger
	metrics *metrics.VisitMetrics
	ttl     time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager. ttl <= 0 disables expiry.
func NewManager(backend Backend, ttl time.Duration, logger *logging.Logger, m *metrics.VisitMetrics) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		backend:  backend,
		logger:   logger,
		metrics:  m,
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

// Create opens a new visit session and returns it. The initial question
// fetch has not happened yet; callers invoke Controller.Open next.
func (m *Manager) Create(patientID, patientName, doctorID string) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:          uuid.NewString(),
		PatientID:   patientID,
		PatientName: patientName,
		DoctorID:    doctorID,
		CreatedAt:   now,
		lastActive:  now,
	}
	s.Controller = NewController(s.ID, patientID, patientName, m.backend, m.logger, m.metrics)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.metrics.ObserveVisitOpened()
	m.logger.Info("visit session opened", "visit_id", s.ID, "patient_id", patientID, "doctor_id", doctorID)
	return s
}

// Get returns the session for visitID and refreshes its activity clock.
func (m *Manager) Get(visitID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[visitID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(time.Now().UTC())
	return s, nil
}

// Close ends the session and removes it.
func (m *Manager) Close(visitID, reason string) error {
	m.mu.Lock()
	s, ok := m.sessions[visitID]
	if ok {
		delete(m.sessions, visitID)
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Controller.Close(reason)
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartSweeper expires idle sessions on the given interval until ctx is
// done.
func (m *Manager) StartSweeper(ctx context.Context, every time.Duration) {
	if m.ttl <= 0 || every <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep(time.Now().UTC())
			}
		}
	}()
}

func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.idleSince(now) > m.ttl {
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Controller.Close("expired")
		m.logger.Info("visit session expired", "visit_id", s.ID)
	}
}

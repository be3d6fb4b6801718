// Package mailfeed keeps a long-lived websocket subscription to the
// clinic mail notification feed and republishes new-mail events to
// registered listeners.
//
// The connection is re-established on a fixed interval after any dial
// failure or read error. A single reusable timer arms each retry, so
// there is never more than one pending reconnect attempt.
package mailfeed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/docsentra/consult-platform/internal/observability/metrics"
	"github.com/docsentra/consult-platform/pkg/logging"
)

// Notification is a single new-mail event from the feed.
type Notification struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	From       string    `json:"from"`
	ReceivedAt time.Time `json:"received_at"`
}

// Listener receives feed notifications. Callbacks run on the monitor's
// read goroutine and must not block.
type Listener func(Notification)

// Monitor maintains the feed connection.
type Monitor struct {
	url      string
	interval time.Duration
	dialer   *websocket.Dialer
	logger   *logging.Logger
	metrics  *metrics.VisitMetrics

	mu        sync.Mutex
	listeners []Listener
	conn      *websocket.Conn
}

type Option func(*Monitor)

func WithDialer(d *websocket.Dialer) Option {
	return func(m *Monitor) {
		if d != nil {
			m.dialer = d
		}
	}
}

func WithMetrics(vm *metrics.VisitMetrics) Option {
	return func(m *Monitor) {
		m.metrics = vm
	}
}

// NewMonitor builds a monitor for the given websocket URL. A zero or
// negative interval defaults to five seconds.
func NewMonitor(url string, interval time.Duration, logger *logging.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	m := &Monitor{
		url:      url,
		interval: interval,
		dialer:   websocket.DefaultDialer,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers a listener for future notifications.
func (m *Monitor) Subscribe(fn Listener) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Run connects and reads until ctx is cancelled. Every dropped or
// failed connection is retried after the fixed interval; the interval
// never grows.
func (m *Monitor) Run(ctx context.Context) {
	retry := time.NewTimer(m.interval)
	if !retry.Stop() {
		<-retry.C
	}

	for {
		if ctx.Err() != nil {
			return
		}

		err := m.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.logger.Warn("mail feed connection lost", "url", m.url, "error", err, "retry_in", m.interval.String())
		}
		if m.metrics != nil {
			m.metrics.ObserveFeedReconnect()
		}

		retry.Reset(m.interval)
		select {
		case <-ctx.Done():
			if !retry.Stop() {
				<-retry.C
			}
			return
		case <-retry.C:
		}
	}
}

func (m *Monitor) connectAndRead(ctx context.Context) error {
	conn, _, err := m.dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return err
	}
	m.setConn(conn)
	defer m.setConn(nil)

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	m.logger.Info("mail feed connected", "url", m.url)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return err
		}
		m.dispatch(payload)
	}
}

func (m *Monitor) setConn(conn *websocket.Conn) {
	m.mu.Lock()
	old := m.conn
	m.conn = conn
	m.mu.Unlock()
	if old != nil && conn == nil {
		old.Close()
	}
}

func (m *Monitor) dispatch(payload []byte) {
	var note Notification
	if err := json.Unmarshal(payload, &note); err != nil {
		m.logger.Warn("mail feed message not parseable", "error", err)
		return
	}

	m.mu.Lock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(note)
	}
}

package visit

import (
	"sync"

	"golang.org/x/net/websocket"

	"github.com/docsentra/consult-platform/pkg/logging"
)

// StreamHub fans visit snapshots out to the WebSocket connections
// watching each visit, so the workbench does not poll.
type StreamHub struct {
	logger *logging.Logger

	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]struct{} // visitID -> watchers
}

// NewStreamHub creates an empty hub.
func NewStreamHub(logger *logging.Logger) *StreamHub {
	if logger == nil {
		logger = logging.Default()
	}
	return &StreamHub{
		logger: logger,
		conns:  make(map[string]map[*websocket.Conn]struct{}),
	}
}

// Register adds a watcher for the visit.
func (h *StreamHub) Register(visitID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	watchers, ok := h.conns[visitID]
	if !ok {
		watchers = make(map[*websocket.Conn]struct{})
		h.conns[visitID] = watchers
	}
	watchers[conn] = struct{}{}
}

// Unregister removes a watcher.
func (h *StreamHub) Unregister(visitID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	watchers, ok := h.conns[visitID]
	if !ok {
		return
	}
	delete(watchers, conn)
	if len(watchers) == 0 {
		delete(h.conns, visitID)
	}
}

// Broadcast pushes a snapshot to every watcher of the visit. Send
// failures are logged and the connection is left for its read loop to
// reap.
func (h *StreamHub) Broadcast(snap Snapshot) {
	h.mu.RLock()
	watchers := make([]*websocket.Conn, 0, len(h.conns[snap.VisitID]))
	for conn := range h.conns[snap.VisitID] {
		watchers = append(watchers, conn)
	}
	h.mu.RUnlock()

	for _, conn := range watchers {
		if err := websocket.JSON.Send(conn, snap); err != nil {
			h.logger.Debug("stream send failed", "visit_id", snap.VisitID, "error", err)
		}
	}
}

// Watchers returns the number of open connections for a visit.
func (h *StreamHub) Watchers(visitID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[visitID])
}

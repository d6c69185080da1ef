// Package hub fans device events out to the websocket connections of the
// owning user.
package hub

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
	"push-device-service/internal/model"
)

type Writer interface {
	Write(message []byte) error
	Close() error
}

// Connection subscribes to the events of one user, limited to Kind when set.
type Connection struct {
	UserID string
	Kind   model.DeviceKind
	Writer Writer
}

type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
}

func New() *Hub {
	return &Hub{connections: make(map[string]map[*Connection]struct{})}
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[conn.UserID] == nil {
		h.connections[conn.UserID] = make(map[*Connection]struct{})
	}
	h.connections[conn.UserID][conn] = struct{}{}
}

func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.connections[conn.UserID]
	if set == nil {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.connections, conn.UserID)
	}
}

func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}

// Publish delivers evt to every matching connection of evt.UserID.
func (h *Hub) Publish(evt model.DeviceEvent) {
	message, err := json.Marshal(evt)
	if err != nil {
		zap.L().Error("hub: marshal event failed", zap.String("type", string(evt.Type)), zap.Error(err))
		return
	}
	h.broadcast(evt.UserID, evt.Kind, message)
}

func (h *Hub) broadcast(userID string, kind model.DeviceKind, message []byte) {
	h.mu.RLock()
	set := h.connections[userID]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		if c.Kind == "" || c.Kind == kind {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
}

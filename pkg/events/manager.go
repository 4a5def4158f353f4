package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action string `json:"action"` // "ping"
}

// ConnectionManager bridges the push broker to WebSocket clients. Each
// connection gets its own broker subscription for the lifetime of the
// socket; there is no replay on reconnect.
type ConnectionManager struct {
	broker *Broker

	mu          sync.RWMutex
	connections map[string]struct{}

	writeTimeout time.Duration
}

// NewConnectionManager creates a manager publishing from the given broker.
func NewConnectionManager(broker *Broker, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		broker:       broker,
		connections:  make(map[string]struct{}),
		writeTimeout: writeTimeout,
	}
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// HandleConnection manages the lifecycle of a single WebSocket connection.
// Called by the WebSocket HTTP handler after upgrade. Blocks until the
// connection closes or the subscription ends.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sub := m.broker.Subscribe()
	if sub == nil {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer m.broker.Unsubscribe(sub)

	m.mu.Lock()
	m.connections[connID] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.connections, connID)
		m.mu.Unlock()
	}()

	m.sendJSON(ctx, conn, map[string]string{
		"type":          "connection.established",
		"connection_id": connID,
	})

	// Read loop in its own goroutine — it only serves pings and close
	// detection; cancel tears down the write loop below.
	go func() {
		defer cancel()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				slog.Warn("Invalid WebSocket message", "connection_id", connID, "error", err)
				continue
			}
			if msg.Action == "ping" {
				m.sendJSON(ctx, conn, map[string]string{"type": "pong"})
			}
		}
	}()

	// Write loop: pump broker events to the client until either side ends.
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-sub.C():
			if !ok {
				if sub.CloseReason() == CloseReasonLagged {
					_ = conn.Close(websocket.StatusPolicyViolation, CloseReasonLagged)
				} else {
					_ = conn.Close(websocket.StatusNormalClosure, "")
				}
				return
			}
			if err := m.send(ctx, conn, ev); err != nil {
				slog.Warn("Failed to send to WebSocket client",
					"connection_id", connID, "error", err)
				return
			}
		}
	}
}

func (m *ConnectionManager) send(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, m.writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (m *ConnectionManager) sendJSON(ctx context.Context, conn *websocket.Conn, v any) {
	if err := m.send(ctx, conn, v); err != nil {
		slog.Warn("Failed to send WebSocket message", "error", err)
	}
}

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/netassist/core/pkg/eventlog"
)

// catchupLimit is the maximum number of events replayed on subscribe. If
// more were missed, a catchup.overflow message tells the client to do a
// full REST reload instead.
const catchupLimit = 200

// defaultWriteTimeout bounds a single WebSocket send.
const defaultWriteTimeout = 10 * time.Second

// ClientMessage is what a connected client may send.
type ClientMessage struct {
	Action      string `json:"action"` // subscribe | unsubscribe | catchup | ping
	Channel     string `json:"channel"`
	LastEventID uint64 `json:"last_event_id,omitempty"`
}

// ConnectionManager owns every live WebSocket connection and fans event-log
// entries out to the channels derived from their payloads: events carrying
// a conversation_id go to "conversation:<id>", everything else to "system".
type ConnectionManager struct {
	log *eventlog.Log

	mu          sync.RWMutex
	connections map[string]*connection

	channelMu sync.RWMutex
	channels  map[string]map[string]bool // channel -> connection ids

	writeTimeout time.Duration
	unsubscribe  func()
}

// connection is one WebSocket client. subscriptions is only touched from
// the connection's own read-loop goroutine.
type connection struct {
	id            string
	conn          *websocket.Conn
	subscriptions map[string]bool
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewConnectionManager wires a manager to the event log; every appended
// event is pushed to subscribers of its derived channel.
func NewConnectionManager(log *eventlog.Log) *ConnectionManager {
	m := &ConnectionManager{
		log:          log,
		connections:  make(map[string]*connection),
		channels:     make(map[string]map[string]bool),
		writeTimeout: defaultWriteTimeout,
	}
	m.unsubscribe = log.SubscribeAll(m.onEvent)
	return m
}

// Close detaches from the event log and closes every connection.
func (m *ConnectionManager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.mu.Lock()
	conns := make([]*connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.Unlock()
	for _, c := range conns {
		c.cancel()
	}
}

// ActiveConnections reports the live connection count for /health.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// wsHandler upgrades GET /api/v1/ws and blocks on the connection's read
// loop until it closes.
func (s *Server) wsHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "websocket upgrade failed")
	}
	s.connManager.handleConnection(c.Request().Context(), conn)
	return nil
}

func (m *ConnectionManager) handleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &connection{
		id:            uuid.NewString(),
		conn:          conn,
		subscriptions: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
	}

	m.register(c)
	defer m.unregister(c)

	m.sendJSON(c, map[string]string{"type": "connection.established", "connection_id": c.id})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("invalid websocket message", "connection_id", c.id, "error", err)
			continue
		}
		m.handleClientMessage(c, &msg)
	}
}

func (m *ConnectionManager) handleClientMessage(c *connection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.Channel == "" {
			return
		}
		m.subscribe(c, msg.Channel)
		m.sendJSON(c, map[string]string{"type": "subscription.confirmed", "channel": msg.Channel})
		if msg.LastEventID > 0 {
			m.catchup(c, msg.Channel, msg.LastEventID)
		}
	case "unsubscribe":
		m.unsubscribeChannel(c, msg.Channel)
	case "catchup":
		m.catchup(c, msg.Channel, msg.LastEventID)
	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})
	}
}

func (m *ConnectionManager) subscribe(c *connection, channel string) {
	c.subscriptions[channel] = true
	m.channelMu.Lock()
	if m.channels[channel] == nil {
		m.channels[channel] = make(map[string]bool)
	}
	m.channels[channel][c.id] = true
	m.channelMu.Unlock()
}

func (m *ConnectionManager) unsubscribeChannel(c *connection, channel string) {
	delete(c.subscriptions, channel)
	m.channelMu.Lock()
	if ids := m.channels[channel]; ids != nil {
		delete(ids, c.id)
		if len(ids) == 0 {
			delete(m.channels, channel)
		}
	}
	m.channelMu.Unlock()
}

// catchup replays events the client missed since lastEventID. Overflow past
// catchupLimit signals a full reload instead of a partial replay.
func (m *ConnectionManager) catchup(c *connection, channel string, lastEventID uint64) {
	var missed []eventlog.Event
	for _, evt := range m.log.Filter(eventlog.Filter{}) {
		if evt.Sequence > lastEventID && channelFor(evt) == channel {
			missed = append(missed, evt)
		}
	}
	if len(missed) > catchupLimit {
		m.sendJSON(c, map[string]any{"type": "catchup.overflow", "channel": channel, "missed": len(missed)})
		return
	}
	for _, evt := range missed {
		m.sendJSON(c, eventPayload(evt))
	}
	m.sendJSON(c, map[string]any{"type": "catchup.complete", "channel": channel, "count": len(missed)})
}

// onEvent is the event-log subscriber: it serializes the event once and
// broadcasts it to the derived channel's connections.
func (m *ConnectionManager) onEvent(evt eventlog.Event) {
	channel := channelFor(evt)

	m.channelMu.RLock()
	ids := make([]string, 0, len(m.channels[channel]))
	for id := range m.channels[channel] {
		ids = append(ids, id)
	}
	m.channelMu.RUnlock()
	if len(ids) == 0 {
		return
	}

	m.mu.RLock()
	conns := make([]*connection, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.connections[id]; ok {
			conns = append(conns, c)
		}
	}
	m.mu.RUnlock()

	payload := eventPayload(evt)
	for _, c := range conns {
		m.sendJSON(c, payload)
	}
}

// channelFor derives the broadcast channel from an event's payload.
func channelFor(evt eventlog.Event) string {
	if id, ok := evt.Payload["conversation_id"].(string); ok && id != "" {
		return "conversation:" + id
	}
	return "system"
}

func eventPayload(evt eventlog.Event) map[string]any {
	return map[string]any{
		"type":     "event",
		"event":    evt.Type,
		"sequence": evt.Sequence,
		"time":     evt.Time.Format(time.RFC3339Nano),
		"payload":  evt.Payload,
	}
}

func (m *ConnectionManager) register(c *connection) {
	m.mu.Lock()
	m.connections[c.id] = c
	m.mu.Unlock()
	slog.Debug("websocket connected", "connection_id", c.id)
}

func (m *ConnectionManager) unregister(c *connection) {
	c.cancel()
	m.mu.Lock()
	delete(m.connections, c.id)
	m.mu.Unlock()
	m.channelMu.Lock()
	for channel := range c.subscriptions {
		if ids := m.channels[channel]; ids != nil {
			delete(ids, c.id)
			if len(ids) == 0 {
				delete(m.channels, channel)
			}
		}
	}
	m.channelMu.Unlock()
	slog.Debug("websocket disconnected", "connection_id", c.id)
}

func (m *ConnectionManager) sendJSON(c *connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("websocket payload marshal failed", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.cancel()
	}
}

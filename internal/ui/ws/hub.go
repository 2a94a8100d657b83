// Package ws bridges the agent host to browser UIs over a websocket:
// state snapshots and permission prompts go out, prompts and permission
// decisions come back in.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agenthost/agenthost/internal/agent/session"
	"github.com/agenthost/agenthost/internal/common/logger"
	"github.com/agenthost/agenthost/pkg/acp/protocol"
)

// Commands implements the host-side actions a UI client can trigger.
type Commands interface {
	SubmitPrompt(text string) error
	RespondPermission(requestID, optionID string) bool
	DenyPermission(requestID string) bool
	CancelTurn() error
}

// outbound message types.
const (
	msgState            = "state"
	msgPermissionPrompt = "permission_prompt"
	msgError            = "error"
)

// envelope is the wire shape in both directions.
type envelope struct {
	Type string `json:"type"`

	// outbound
	State  *session.State `json:"state,omitempty"`
	Prompt *promptPayload `json:"prompt,omitempty"`
	Error  string         `json:"error,omitempty"`

	// inbound
	Text      string `json:"text,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	OptionID  string `json:"optionId,omitempty"`
}

type promptPayload struct {
	RequestID string                      `json:"requestId"`
	Message   string                      `json:"message,omitempty"`
	Options   []protocol.PermissionOption `json:"options"`
	ToolCall  *protocol.ToolCallRef       `json:"toolCall,omitempty"`
}

// client is one connected UI. Sends are funneled through a buffered
// channel so a slow client never blocks the broadcaster.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans session state out to all connected UI clients and feeds their
// commands back to the host.
type Hub struct {
	logger   *logger.Logger
	commands Commands
	upgrader websocket.Upgrader

	mu        sync.Mutex
	clients   map[*client]struct{}
	lastState []byte
}

// NewHub creates a hub around the given command sink.
func NewHub(commands Commands, log *logger.Logger) *Hub {
	return &Hub{
		logger:   log.WithFields(zap.String("component", "ws-hub")),
		commands: commands,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The host binds to loopback; cross-origin pages may still
			// open sockets to localhost.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the connection and joins the client to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	last := h.lastState
	h.mu.Unlock()

	// New clients get the current state immediately.
	if last != nil {
		c.send <- last
	}

	go h.writeLoop(c)
	go h.readLoop(c)
}

// BroadcastState pushes a state snapshot to every connected client. Wired
// as the reducer's change handler.
func (h *Hub) BroadcastState(state session.State) {
	data, err := json.Marshal(envelope{Type: msgState, State: &state})
	if err != nil {
		h.logger.Error("failed to encode state", zap.Error(err))
		return
	}
	h.mu.Lock()
	h.lastState = data
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client is too far behind; it will resync from lastState on
			// reconnect.
		}
	}
	h.mu.Unlock()
}

// PromptPermission surfaces a permission request to every client. Wired as
// the permission handler's prompter.
func (h *Hub) PromptPermission(requestID string, params protocol.RequestPermissionParams) {
	data, err := json.Marshal(envelope{Type: msgPermissionPrompt, Prompt: &promptPayload{
		RequestID: requestID,
		Message:   params.Message,
		Options:   params.Options,
		ToolCall:  params.ToolCall,
	}})
	if err != nil {
		h.logger.Error("failed to encode permission prompt", zap.Error(err))
		return
	}
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
	h.mu.Unlock()
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (h *Hub) readLoop(c *client) {
	defer h.drop(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(c, "malformed message")
			continue
		}
		h.dispatch(c, msg)
	}
}

func (h *Hub) dispatch(c *client, msg envelope) {
	switch msg.Type {
	case "prompt":
		if err := h.commands.SubmitPrompt(msg.Text); err != nil {
			h.sendError(c, err.Error())
		}
	case "permission_response":
		if !h.commands.RespondPermission(msg.RequestID, msg.OptionID) {
			h.sendError(c, "permission request is no longer pending")
		}
	case "permission_deny":
		if !h.commands.DenyPermission(msg.RequestID) {
			h.sendError(c, "permission request is no longer pending")
		}
	case "cancel":
		if err := h.commands.CancelTurn(); err != nil {
			h.sendError(c, err.Error())
		}
	default:
		h.sendError(c, "unknown message type: "+msg.Type)
	}
}

func (h *Hub) sendError(c *client, text string) {
	data, err := json.Marshal(envelope{Type: msgError, Error: text})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

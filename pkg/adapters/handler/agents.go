package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/core/domain"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/metrics"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/ports"
)

const (
	// Time allowed to read the next pong from the agent.
	pongWait = 60 * time.Second
	// Must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Largest frame accepted from an agent.
	maxFrameBytes = 64 << 10
)

// AgentHandler serves the agent sync channel over WebSocket.
type AgentHandler struct {
	hub          ports.SyncHub
	metrics      *metrics.Metrics
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
	log          *slog.Logger
}

func NewAgentHandler(hub ports.SyncHub, m *metrics.Metrics, writeTimeout time.Duration, logger *slog.Logger) *AgentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	if m == nil {
		m = metrics.New()
	}
	return &AgentHandler{
		hub:          hub,
		metrics:      m,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Agents are browser extensions and scripts on arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger.With("component", "agents"),
	}
}

// ServeWS registers the caller as an agent and pumps messages until either
// side hangs up. The agent ID comes from its token, or is minted here.
func (h *AgentHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	agentID := AgentIDFromContext(r.Context())
	if agentID == "" {
		agentID = ulid.Make().String()
	}

	session, err := h.hub.Connect(agentID)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.hub.Disconnect(agentID)
		h.log.Warn("websocket upgrade failed", "agent_id", agentID, "error", err)
		return
	}

	go h.writePump(conn, session)
	h.readPump(conn, agentID)
}

// readPump owns all reads on conn. When it returns the agent is gone.
func (h *AgentHandler) readPump(conn *websocket.Conn, agentID string) {
	defer func() {
		h.hub.Disconnect(agentID)
		conn.Close()
	}()

	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		h.hub.Touch(agentID)
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg domain.InboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.metrics.Error("transport", "read")
				h.log.Warn("agent read failed", "agent_id", agentID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		h.hub.Touch(agentID)
		h.dispatch(agentID, msg)
	}
}

// dispatch handles one agent frame. Bad frames are logged and skipped.
func (h *AgentHandler) dispatch(agentID string, msg domain.InboundMessage) {
	switch msg.Type {
	case domain.MessageStatus:
		var body struct {
			Status domain.AgentStatus `json:"status"`
		}
		if err := json.Unmarshal(msg.Data, &body); err != nil {
			h.log.Warn("malformed status frame", "agent_id", agentID, "error", err)
			return
		}
		if err := h.hub.SetAgentStatus(agentID, body.Status); err != nil {
			h.log.Warn("status update rejected", "agent_id", agentID, "status", body.Status, "error", err)
		}

	case domain.MessageAction:
		var action domain.Action
		if err := json.Unmarshal(msg.Data, &action); err != nil || action.Type == "" {
			h.log.Warn("malformed action frame", "agent_id", agentID, "error", err)
			return
		}
		h.hub.BroadcastAction(action, agentID)

	case domain.MessageFingerprintTest:
		if len(msg.Data) == 0 {
			h.log.Warn("empty fingerprint test frame", "agent_id", agentID)
			return
		}
		h.hub.BroadcastTestResults(agentID, msg.Data)

	case domain.MessageRequestIdentity:
		if err := h.hub.SendCurrentIdentity(agentID); err != nil && !errors.Is(err, domain.ErrAgentNotFound) {
			h.log.Warn("identity resend failed", "agent_id", agentID, "error", err)
		}

	default:
		h.log.Debug("unknown frame type", "agent_id", agentID, "type", msg.Type)
	}
}

// writePump owns all writes on conn. It drains the session queue until the
// hub closes it.
func (h *AgentHandler) writePump(conn *websocket.Conn, session ports.AgentSession) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-session.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				h.metrics.Error("transport", "write")
				h.log.Warn("agent write failed", "agent_id", session.AgentID(), "type", msg.Type, "error", err)
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Roster lists the connected agents.
func (h *AgentHandler) Roster(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agents": h.hub.Roster(),
	})
}

package domain

import (
	"encoding/json"
	"time"
)

// AgentStatus is the liveness state an agent reports about itself.
type AgentStatus string

const (
	AgentConnected    AgentStatus = "connected"
	AgentReady        AgentStatus = "ready"
	AgentSynced       AgentStatus = "synced"
	AgentDisconnected AgentStatus = "disconnected"
)

// Valid reports whether s is one of the known statuses.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentConnected, AgentReady, AgentSynced, AgentDisconnected:
		return true
	}
	return false
}

// ConnectedAgent is a remote browser instance attached to the sync channel
type ConnectedAgent struct {
	ID           string      `json:"id"`
	ConnectedAt  time.Time   `json:"connectedAt"`
	LastActivity time.Time   `json:"lastActivity"`
	Status       AgentStatus `json:"status"`
}

// Action is an arbitrary command relayed between agents.
type Action struct {
	ID      string          `json:"id,omitempty"` // optional, used for de-duplication
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RelayedAction is an action as delivered to the other agents.
type RelayedAction struct {
	Action
	From string `json:"from"`
}

// TestResults carries one agent's fingerprint test report to every agent.
type TestResults struct {
	AgentID string          `json:"clientId"`
	Results json.RawMessage `json:"results"`
}

// LogEntry is an activity line for dashboards listening on the agent channel.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	AgentID   string    `json:"clientId"`
}

const LogTypeSync = "sync"

// Message types on the agent channel.
const (
	MessageIdentity        = "identity"
	MessageRoster          = "roster"
	MessageAction          = "action"
	MessageTestResults     = "test-results"
	MessageLog             = "new-log"
	MessageStatus          = "status"
	MessageRequestIdentity = "request-identity"
	MessageFingerprintTest = "fingerprint-test"
)

// Message is the envelope exchanged with agents.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// InboundMessage is an agent frame before its data is decoded.
type InboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

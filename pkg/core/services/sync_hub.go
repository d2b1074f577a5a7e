package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/core/domain"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/metrics"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/ports"
)

// HubOptions configures a SyncHub.
type HubOptions struct {
	QueueSize    int
	DedupeWindow time.Duration

	Now     func() time.Time
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// agentSession owns one agent's outbound queue. The queue is closed exactly
// once, under mu, when the agent leaves the hub.
type agentSession struct {
	id     string
	mu     sync.Mutex
	out    chan domain.Message
	closed bool
}

func (a *agentSession) AgentID() string                 { return a.id }
func (a *agentSession) Messages() <-chan domain.Message { return a.out }

// enqueue never blocks. When the queue is full one message goes: an older
// message msg supersedes (identity or roster of the same type), else the
// oldest message that is not an identity. A queued identity is only ever
// replaced by a newer one; when nothing else can go, msg itself is dropped.
func (a *agentSession) enqueue(msg domain.Message) (delivered, dropped bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return false, false
	}
	select {
	case a.out <- msg:
		return true, false
	default:
	}

	// Senders hold mu and the reader only removes, so whatever is drained
	// here always fits back in.
	queued := make([]domain.Message, 0, cap(a.out))
drain:
	for {
		select {
		case m := <-a.out:
			queued = append(queued, m)
		default:
			break drain
		}
	}

	if len(queued) == cap(a.out) {
		victim := evictionIndex(queued, msg.Type)
		if victim < 0 {
			a.refill(queued)
			return false, true
		}
		queued = append(queued[:victim], queued[victim+1:]...)
		dropped = true
	}
	a.refill(queued)
	a.out <- msg
	return true, dropped
}

func (a *agentSession) refill(msgs []domain.Message) {
	for _, m := range msgs {
		a.out <- m
	}
}

// evictionIndex picks the queued message to drop for an incoming one of type
// incoming, or -1 when every queued message must stay.
func evictionIndex(queued []domain.Message, incoming string) int {
	if incoming == domain.MessageIdentity || incoming == domain.MessageRoster {
		for i, m := range queued {
			if m.Type == incoming {
				return i
			}
		}
	}
	for i, m := range queued {
		if m.Type != domain.MessageIdentity {
			return i
		}
	}
	return -1
}

func (a *agentSession) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.out)
	}
}

type hubAgent struct {
	info    domain.ConnectedAgent
	session *agentSession
}

// SyncHub tracks connected agents and fans identity updates and actions out to
// them. Identity and roster messages are enqueued while holding the write lock,
// so every agent observes them in the same order and a late Connect always sees
// the newest identity.
type SyncHub struct {
	factory ports.IdentityFactory
	opts    HubOptions
	log     *slog.Logger
	seen    *ttlcache.Cache[string, struct{}]

	mu      sync.RWMutex
	agents  map[string]*hubAgent
	current domain.Identity
}

func NewSyncHub(factory ports.IdentityFactory, opts HubOptions) *SyncHub {
	if opts.QueueSize < 1 {
		opts.QueueSize = 64
	}
	if opts.DedupeWindow <= 0 {
		opts.DedupeWindow = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	seen := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](opts.DedupeWindow),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go seen.Start()

	h := &SyncHub{
		factory: factory,
		opts:    opts,
		log:     logger.With("component", "sync"),
		seen:    seen,
		agents:  make(map[string]*hubAgent),
		current: factory.Generate(),
	}
	opts.Metrics.IdentityGenerated()
	return h
}

// Connect registers an agent, unicasts the current identity to it and then
// re-broadcasts the roster to everyone.
func (h *SyncHub) Connect(agentID string) (ports.AgentSession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.agents[agentID]; exists {
		return nil, domain.ErrAgentConnected
	}
	now := h.opts.Now()
	a := &hubAgent{
		info: domain.ConnectedAgent{
			ID:           agentID,
			ConnectedAt:  now,
			LastActivity: now,
			Status:       domain.AgentConnected,
		},
		session: &agentSession{
			id:  agentID,
			out: make(chan domain.Message, h.opts.QueueSize),
		},
	}
	h.agents[agentID] = a
	h.deliver(a, domain.Message{Type: domain.MessageIdentity, Data: h.current.Clone()})
	h.broadcastRosterLocked()

	h.opts.Metrics.AgentConnected(len(h.agents))
	h.log.Info("agent connected", "agent_id", agentID, "agents", len(h.agents))
	return a.session, nil
}

// Disconnect removes the agent immediately and closes its queue.
func (h *SyncHub) Disconnect(agentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.agents[agentID]
	if !ok {
		return
	}
	delete(h.agents, agentID)
	a.session.close()
	h.broadcastRosterLocked()

	h.opts.Metrics.SetActiveAgents(len(h.agents))
	h.log.Info("agent disconnected", "agent_id", agentID, "agents", len(h.agents))
}

// BroadcastIdentity makes identity current and sends it to every agent.
func (h *SyncHub) BroadcastIdentity(identity domain.Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastIdentityLocked(identity)
}

func (h *SyncHub) broadcastIdentityLocked(identity domain.Identity) {
	h.current = identity.Clone()
	for _, a := range h.agents {
		h.deliver(a, domain.Message{Type: domain.MessageIdentity, Data: h.current.Clone()})
	}
	h.log.Info("identity broadcast", "identity_id", identity.ID, "agents", len(h.agents))
}

// RegenerateIdentity draws a new identity from the factory and broadcasts it.
func (h *SyncHub) RegenerateIdentity() domain.Identity {
	next := h.factory.Generate()
	h.opts.Metrics.IdentityGenerated()
	h.BroadcastIdentity(next)
	return next.Clone()
}

// UpdateIdentity merges patch into the current identity and broadcasts the result.
func (h *SyncHub) UpdateIdentity(patch domain.IdentityPatch) domain.Identity {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := patch.Apply(h.current)
	h.broadcastIdentityLocked(next)
	return next.Clone()
}

func (h *SyncHub) CurrentIdentity() domain.Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Clone()
}

// SendCurrentIdentity unicasts the current identity to one agent.
func (h *SyncHub) SendCurrentIdentity(agentID string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	a, ok := h.agents[agentID]
	if !ok {
		return domain.ErrAgentNotFound
	}
	h.deliver(a, domain.Message{Type: domain.MessageIdentity, Data: h.current.Clone()})
	return nil
}

// BroadcastAction relays action to every agent except the origin and returns
// how many queues accepted it. Actions with an ID are relayed at most once per
// dedupe window. Every relayed action is also announced to all agents as a
// sync log entry.
func (h *SyncHub) BroadcastAction(action domain.Action, originAgentID string) int {
	if action.ID != "" {
		if _, dup := h.seen.GetOrSet(action.ID, struct{}{}); dup {
			h.log.Debug("duplicate action ignored", "action_id", action.ID, "origin", originAgentID)
			return 0
		}
	}

	everyone, now := h.touchAndSnapshot(originAgentID)

	msg := domain.Message{
		Type: domain.MessageAction,
		Data: domain.RelayedAction{Action: action, From: originAgentID},
	}
	delivered := 0
	for _, a := range everyone {
		if a.session.id != originAgentID && h.deliver(a, msg) {
			delivered++
		}
	}

	entry := domain.Message{
		Type: domain.MessageLog,
		Data: domain.LogEntry{
			Timestamp: now,
			Type:      domain.LogTypeSync,
			Message:   fmt.Sprintf("action %s synced", action.Type),
			AgentID:   originAgentID,
		},
	}
	for _, a := range everyone {
		h.deliver(a, entry)
	}

	h.opts.Metrics.SyncAction(action.Type)
	h.log.Info("action relayed", "type", action.Type, "origin", originAgentID, "delivered", delivered)
	return delivered
}

// BroadcastTestResults relays an agent's fingerprint test report to every
// agent, the reporter included, and returns how many queues accepted it.
func (h *SyncHub) BroadcastTestResults(agentID string, results json.RawMessage) int {
	everyone, _ := h.touchAndSnapshot(agentID)

	msg := domain.Message{
		Type: domain.MessageTestResults,
		Data: domain.TestResults{AgentID: agentID, Results: append(json.RawMessage(nil), results...)},
	}
	delivered := 0
	for _, a := range everyone {
		if h.deliver(a, msg) {
			delivered++
		}
	}

	h.opts.Metrics.FingerprintTested()
	h.log.Info("fingerprint test relayed", "agent_id", agentID, "delivered", delivered)
	return delivered
}

// touchAndSnapshot refreshes agentID's activity and returns the current agents.
// Delivery to the snapshot happens without the hub lock.
func (h *SyncHub) touchAndSnapshot(agentID string) ([]*hubAgent, time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.opts.Now()
	if a, ok := h.agents[agentID]; ok {
		a.info.LastActivity = now
	}
	out := make([]*hubAgent, 0, len(h.agents))
	for _, a := range h.agents {
		out = append(out, a)
	}
	return out, now
}

// SetAgentStatus records a status report and re-broadcasts the roster.
func (h *SyncHub) SetAgentStatus(agentID string, status domain.AgentStatus) error {
	if !status.Valid() {
		return domain.ErrInvalidStatus
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.agents[agentID]
	if !ok {
		return domain.ErrAgentNotFound
	}
	a.info.Status = status
	a.info.LastActivity = h.opts.Now()
	h.broadcastRosterLocked()

	h.log.Info("agent status updated", "agent_id", agentID, "status", status)
	return nil
}

// Touch refreshes an agent's last activity without notifying anyone.
func (h *SyncHub) Touch(agentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if a, ok := h.agents[agentID]; ok {
		a.info.LastActivity = h.opts.Now()
	}
}

// Roster returns the connected agents ordered by connection time.
func (h *SyncHub) Roster() []domain.ConnectedAgent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rosterLocked()
}

func (h *SyncHub) rosterLocked() []domain.ConnectedAgent {
	out := make([]domain.ConnectedAgent, 0, len(h.agents))
	for _, a := range h.agents {
		out = append(out, a.info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

func (h *SyncHub) broadcastRosterLocked() {
	roster := h.rosterLocked()
	for _, a := range h.agents {
		h.deliver(a, domain.Message{Type: domain.MessageRoster, Data: roster})
	}
}

// deliver enqueues without blocking. Failures are logged and counted, never
// surfaced to the sender.
func (h *SyncHub) deliver(a *hubAgent, msg domain.Message) bool {
	delivered, dropped := a.session.enqueue(msg)
	if dropped {
		h.opts.Metrics.MessageDropped()
		h.log.Warn("agent queue full, message dropped", "agent_id", a.session.id, "type", msg.Type)
	}
	return delivered
}

// Len is the number of connected agents.
func (h *SyncHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.agents)
}

// Close disconnects every agent and stops the dedupe cache.
func (h *SyncHub) Close() {
	h.mu.Lock()
	for id, a := range h.agents {
		a.session.close()
		delete(h.agents, id)
	}
	h.mu.Unlock()

	h.seen.Stop()
	h.opts.Metrics.SetActiveAgents(0)
}

package handler

import (
	"net/http"

	"github.com/wadjakorntonsri/go-phantom-links/pkg/core/domain"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/metrics"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/ports"
)

// ControlHandler serves the operator endpoints: the hub's current identity,
// service status and metrics.
type ControlHandler struct {
	hub     ports.SyncHub
	stats   ports.StatsService
	metrics *metrics.Metrics
}

func NewControlHandler(hub ports.SyncHub, stats ports.StatsService, m *metrics.Metrics) *ControlHandler {
	if m == nil {
		m = metrics.New()
	}
	return &ControlHandler{hub: hub, stats: stats, metrics: m}
}

func (h *ControlHandler) GetIdentity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.CurrentIdentity())
}

// UpdateIdentity merges the posted fields into the current identity and
// pushes the result to every agent.
func (h *ControlHandler) UpdateIdentity(w http.ResponseWriter, r *http.Request) {
	var patch domain.IdentityPatch
	if err := readJSON(w, r, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if patch.IsEmpty() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "nothing to update"})
		return
	}
	writeJSON(w, http.StatusOK, h.hub.UpdateIdentity(patch))
}

func (h *ControlHandler) GenerateIdentity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.RegenerateIdentity())
}

// StatusResponse is the operator overview.
type StatusResponse struct {
	Status          string                  `json:"status"`
	UptimeSeconds   float64                 `json:"uptimeSeconds"`
	ConnectedAgents int                     `json:"connectedAgents"`
	Agents          []domain.ConnectedAgent `json:"agents"`
	CurrentIdentity domain.Identity         `json:"currentIdentity"`
	Links           domain.GeneralStats     `json:"links"`
	Metrics         metrics.Snapshot        `json:"metrics"`
}

func (h *ControlHandler) Status(w http.ResponseWriter, r *http.Request) {
	agents := h.hub.Roster()
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:          "ok",
		UptimeSeconds:   h.metrics.Uptime().Seconds(),
		ConnectedAgents: len(agents),
		Agents:          agents,
		CurrentIdentity: h.hub.CurrentIdentity(),
		Links:           h.stats.GeneralStats(r.Context()),
		Metrics:         h.metrics.Snapshot(),
	})
}

// Metrics serves the Prometheus exposition.
func (h *ControlHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.Handler().ServeHTTP(w, r)
}

// Package metrics holds the Prometheus collectors the core updates. Each
// Metrics owns a private registry, so tests and multiple apps never collide on
// the default one.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "phantom"

// agentClientType labels connections made over the agent channel.
const agentClientType = "agent"

type Metrics struct {
	started time.Time
	reg     *prometheus.Registry

	linksCreated        prometheus.Counter
	redemptions         prometheus.Counter
	redemptionsRejected prometheus.Counter
	linksSwept          prometheus.Counter
	identitiesGenerated prometheus.Counter
	fingerprintTests    prometheus.Counter
	messagesDropped     prometheus.Counter
	agentConnections    *prometheus.CounterVec
	activeAgents        prometheus.Gauge
	syncActions         *prometheus.CounterVec
	errors              *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		started: time.Now(),
		reg:     reg,
		linksCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "links_created_total",
			Help: "Total number of shared links created",
		}),
		redemptions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "link_redemptions_total",
			Help: "Total number of successful link redemptions",
		}),
		redemptionsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "link_redemptions_rejected_total",
			Help: "Total number of refused link redemptions",
		}),
		linksSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "links_swept_total",
			Help: "Total number of expired links removed by the sweeper",
		}),
		identitiesGenerated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "identities_generated_total",
			Help: "Total number of phantom identities generated",
		}),
		fingerprintTests: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "fingerprint_tests_total",
			Help: "Total number of fingerprint test reports relayed",
		}),
		messagesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "agent_messages_dropped_total",
			Help: "Total number of agent messages evicted from full queues",
		}),
		agentConnections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "websocket_connections_total",
			Help: "Total number of WebSocket connections established",
		}, []string{"client_type"}),
		activeAgents: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_clients",
			Help: "Current number of active phantom clients",
		}),
		syncActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sync_actions_total",
			Help: "Total number of synchronized actions",
		}, []string{"action_type"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total",
			Help: "Total number of errors by type",
		}, []string{"error_type", "component"}),
	}
}

func (m *Metrics) LinkCreated()        { m.linksCreated.Inc() }
func (m *Metrics) Redeemed()           { m.redemptions.Inc() }
func (m *Metrics) RedemptionRejected() { m.redemptionsRejected.Inc() }
func (m *Metrics) Swept(n int)         { m.linksSwept.Add(float64(n)) }
func (m *Metrics) IdentityGenerated()  { m.identitiesGenerated.Inc() }
func (m *Metrics) FingerprintTested()  { m.fingerprintTests.Inc() }
func (m *Metrics) MessageDropped()     { m.messagesDropped.Inc() }

// AgentConnected bumps the connection counter and sets the active gauge.
func (m *Metrics) AgentConnected(active int) {
	m.agentConnections.WithLabelValues(agentClientType).Inc()
	m.activeAgents.Set(float64(active))
}

func (m *Metrics) SetActiveAgents(active int) { m.activeAgents.Set(float64(active)) }

func (m *Metrics) SyncAction(actionType string) {
	m.syncActions.WithLabelValues(actionType).Inc()
}

// Error counts an error by component and kind.
func (m *Metrics) Error(component, kind string) {
	m.errors.WithLabelValues(kind, component).Inc()
}

// Handler serves the registry in the Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Snapshot is a point-in-time copy of the phantom counters.
type Snapshot struct {
	UptimeSeconds       float64          `json:"uptimeSeconds"`
	LinksCreated        int64            `json:"linksCreated"`
	Redemptions         int64            `json:"redemptions"`
	RedemptionsRejected int64            `json:"redemptionsRejected"`
	LinksSwept          int64            `json:"linksSwept"`
	IdentitiesGenerated int64            `json:"identitiesGenerated"`
	FingerprintTests    int64            `json:"fingerprintTests"`
	AgentConnections    int64            `json:"agentConnections"`
	ActiveAgents        int64            `json:"activeAgents"`
	MessagesDropped     int64            `json:"messagesDropped"`
	SyncActions         map[string]int64 `json:"syncActions"`
	Errors              map[string]int64 `json:"errors"`
}

// Snapshot reads the current values back out of the registry. Errors keys
// are "component/kind".
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		UptimeSeconds: m.Uptime().Seconds(),
		SyncActions:   make(map[string]int64),
		Errors:        make(map[string]int64),
	}

	// A failing runtime collector must not hide the phantom families, so the
	// error is ignored and whatever was gathered is used.
	families, _ := m.reg.Gather()
	for _, mf := range families {
		switch mf.GetName() {
		case "phantom_links_created_total":
			s.LinksCreated = counterSum(mf)
		case "phantom_link_redemptions_total":
			s.Redemptions = counterSum(mf)
		case "phantom_link_redemptions_rejected_total":
			s.RedemptionsRejected = counterSum(mf)
		case "phantom_links_swept_total":
			s.LinksSwept = counterSum(mf)
		case "phantom_identities_generated_total":
			s.IdentitiesGenerated = counterSum(mf)
		case "phantom_fingerprint_tests_total":
			s.FingerprintTests = counterSum(mf)
		case "phantom_agent_messages_dropped_total":
			s.MessagesDropped = counterSum(mf)
		case "phantom_websocket_connections_total":
			s.AgentConnections = counterSum(mf)
		case "phantom_active_clients":
			for _, metric := range mf.GetMetric() {
				s.ActiveAgents = int64(metric.GetGauge().GetValue())
			}
		case "phantom_sync_actions_total":
			for _, metric := range mf.GetMetric() {
				s.SyncActions[label(metric, "action_type")] = int64(metric.GetCounter().GetValue())
			}
		case "phantom_errors_total":
			for _, metric := range mf.GetMetric() {
				key := label(metric, "component") + "/" + label(metric, "error_type")
				s.Errors[key] = int64(metric.GetCounter().GetValue())
			}
		}
	}
	return s
}

// Uptime is the time since New.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.started)
}

func counterSum(mf *dto.MetricFamily) int64 {
	var total float64
	for _, metric := range mf.GetMetric() {
		total += metric.GetCounter().GetValue()
	}
	return int64(total)
}

func label(metric *dto.Metric, name string) string {
	for _, lp := range metric.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

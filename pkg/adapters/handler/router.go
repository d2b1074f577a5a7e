package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/config"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/metrics"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/ports"
)

// Services bundles what the router dispatches to.
type Services struct {
	Links   ports.LinkService
	Stats   ports.StatsService
	Hub     ports.SyncHub
	Metrics *metrics.Metrics
}

// NewRouter creates and configures the main application router
func NewRouter(cfg *config.Config, svc Services, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	// Initialize Handlers
	h := NewHTTPHandler(svc.Links, svc.Stats, cfg.BaseURL, cfg.Links.RedirectDelay, logger)
	ah := NewAgentHandler(svc.Hub, svc.Metrics, cfg.Sync.WriteTimeout, logger)
	ch := NewControlHandler(svc.Hub, svc.Stats, svc.Metrics)

	// Agent auth is only enforced when a secret is configured
	var tokens *AgentTokens
	if cfg.AgentJWTSecret != "" {
		tokens = NewAgentTokens(cfg.AgentJWTSecret)
	}
	mw := NewMiddleware(tokens)

	// Setup Router
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		res := map[string]string{
			"message": "ok",
		}
		writeJSON(w, http.StatusOK, res)
	})

	// Links
	mux.HandleFunc("POST /links", h.Create)
	mux.HandleFunc("GET /links/active", h.ListActive)
	mux.HandleFunc("GET /links/stats", h.GeneralStats)
	mux.HandleFunc("GET /links/{shortId}", h.Redeem)
	mux.HandleFunc("GET /links/{id}/status", h.Status)
	mux.HandleFunc("GET /links/{id}/stats", h.Stats)
	mux.HandleFunc("DELETE /links/{id}", h.Delete)
	mux.HandleFunc("GET /shared/{shortId}", h.Shared)

	// Agents
	mux.Handle("GET /agents/ws", mw.AgentAuth(http.HandlerFunc(ah.ServeWS)))
	mux.HandleFunc("GET /api/agents", ah.Roster)

	// Control
	mux.HandleFunc("GET /api/identity", ch.GetIdentity)
	mux.HandleFunc("POST /api/identity", ch.UpdateIdentity)
	mux.HandleFunc("POST /api/identity/generate", ch.GenerateIdentity)
	mux.HandleFunc("GET /api/status", ch.Status)
	mux.HandleFunc("GET /api/metrics", ch.Metrics)

	var root http.Handler = mux
	root = RequestLogger(logger)(root)
	root = handlers.ProxyHeaders(root)
	root = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(root)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)),
	)
	return recovery(root)
}

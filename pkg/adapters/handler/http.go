package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wadjakorntonsri/go-phantom-links/pkg/core/domain"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/ports"
)

type HTTPHandler struct {
	links         ports.LinkService
	stats         ports.StatsService
	baseURL       string
	redirectDelay time.Duration
	log           *slog.Logger
}

func NewHTTPHandler(links ports.LinkService, stats ports.StatsService, baseURL string, redirectDelay time.Duration, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{
		links:         links,
		stats:         stats,
		baseURL:       strings.TrimRight(baseURL, "/"),
		redirectDelay: redirectDelay,
		log:           logger.With("component", "http"),
	}
}

// CreateLinkRequest payload
type CreateLinkRequest struct {
	TargetURL   string `json:"targetUrl"`
	ExpiresIn   string `json:"expiresIn,omitempty"`
	MaxUses     *int   `json:"maxUses,omitempty"`
	AllowMobile *bool  `json:"allowMobile,omitempty"`
	Description string `json:"description,omitempty"`
}

// CreateLinkResponse is returned on 201
type CreateLinkResponse struct {
	ID            string    `json:"id"`
	ShortID       string    `json:"shortId"`
	FullURL       string    `json:"fullUrl"`
	SharedAddress string    `json:"sharedAddress"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type redirectInfo struct {
	URL     string `json:"url"`
	DelayMs int64  `json:"delayMs"`
}

// RedeemResponse is what a successful redemption returns.
type RedeemResponse struct {
	ShortID       string          `json:"shortId"`
	TargetURL     string          `json:"targetUrl"`
	Identity      domain.Identity `json:"identity"`
	Redirect      redirectInfo    `json:"redirect"`
	AccessedAt    time.Time       `json:"accessedAt"`
	UsesRemaining *int            `json:"usesRemaining"`
}

// Create Link
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	link, err := h.links.Create(r.Context(), domain.CreateLinkInput{
		TargetURL:   req.TargetURL,
		ExpiresIn:   req.ExpiresIn,
		MaxUses:     req.MaxUses,
		AllowMobile: req.AllowMobile,
		Description: req.Description,
	})
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.log.Error("create link failed", "error", err)
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateLinkResponse{
		ID:            link.ID,
		ShortID:       link.ShortID,
		FullURL:       h.baseURL + "/shared/" + link.ShortID,
		SharedAddress: link.Identity.NetworkOrigin.Address,
		ExpiresAt:     link.ExpiresAt,
	})
}

// ListActive returns the redeemable links
func (h *HTTPHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"links": h.links.ListActive(r.Context()),
	})
}

func (h *HTTPHandler) GeneralStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.GeneralStats(r.Context()))
}

// Redeem consumes one use of the link and hands back the masked identity.
func (h *HTTPHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	red, err := h.redeem(r, r.PathValue("shortId"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RedeemResponse{
		ShortID:   red.Link.ShortID,
		TargetURL: red.Link.TargetURL,
		Identity:  red.Identity,
		Redirect: redirectInfo{
			URL:     red.Link.TargetURL,
			DelayMs: h.redirectDelay.Milliseconds(),
		},
		AccessedAt:    red.Entry.Timestamp,
		UsesRemaining: red.Link.UsesRemaining(),
	})
}

// redeem resolves the short id and records the access. Rejections are logged
// at info since they are the caller's doing.
func (h *HTTPHandler) redeem(r *http.Request, shortID string) (*domain.Redemption, error) {
	link, err := h.links.GetByShortID(r.Context(), shortID)
	if err != nil {
		return nil, err
	}
	red, err := h.links.RecordAccess(r.Context(), link.ID, accessInfo(r))
	if err != nil {
		h.log.Info("redemption refused", "short_id", shortID, "reason", domain.Reason(err))
		return nil, err
	}
	return red, nil
}

// Status reports whether a link is redeemable without consuming a use.
func (h *HTTPHandler) Status(w http.ResponseWriter, r *http.Request) {
	_, err := h.links.Validate(r.Context(), r.PathValue("id"))
	if errors.Is(err, domain.ErrLinkNotFound) {
		writeError(w, err)
		return
	}
	resp := map[string]any{"valid": err == nil}
	if err != nil {
		resp["reason"] = domain.Reason(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Delete deactivates the link. The record stays until the sweeper evicts it.
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.links.Deactivate(r.Context(), r.PathValue("id")) {
		writeError(w, domain.ErrLinkNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Stats for a Link
func (h *HTTPHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.LinkStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

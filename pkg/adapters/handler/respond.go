package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/wadjakorntonsri/go-phantom-links/pkg/core/domain"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(dst)
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Field  string `json:"field,omitempty"`
}

// writeError renders err with the status statusFor picks for it.
func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		resp.Field = verr.Field
	case statusFor(err) == http.StatusInternalServerError:
		resp.Error = "internal server error"
	default:
		resp.Reason = domain.Reason(err)
	}
	writeJSON(w, statusFor(err), resp)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrLinkNotFound), errors.Is(err, domain.ErrLinkDeactivated):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrLinkExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrLinkExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrDeviceNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAgentConnected):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Edge headers that carry the caller's country, in order of preference.
var countryHeaders = []string{"X-Vercel-IP-Country", "CF-IPCountry", "X-Country-Code"}

// accessInfo describes the caller. RemoteAddr has already been rewritten by
// handlers.ProxyHeaders when the request came through a proxy.
func accessInfo(r *http.Request) domain.AccessInfo {
	addr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	var country string
	for _, h := range countryHeaders {
		if c := r.Header.Get(h); c != "" && c != "XX" {
			country = c
			break
		}
	}
	return domain.AccessInfo{
		CallerAddress: addr,
		UserAgent:     r.UserAgent(),
		Referrer:      r.Referer(),
		Country:       country,
	}
}

package domain

import (
	"errors"
	"fmt"
)

var (
	ErrLinkNotFound     = errors.New("link not found")
	ErrLinkExpired      = errors.New("link expired")
	ErrLinkExhausted    = errors.New("link usage limit reached")
	ErrLinkDeactivated  = errors.New("link deactivated")
	ErrDeviceNotAllowed = errors.New("device not allowed for this link")

	ErrAgentNotFound  = errors.New("agent not connected")
	ErrAgentConnected = errors.New("agent already connected")
	ErrInvalidStatus  = errors.New("invalid agent status")
)

// ValidationError reports a malformed create request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// StateError maps a terminal link state to its sentinel error.
func StateError(s LinkState) error {
	switch s {
	case LinkExpired:
		return ErrLinkExpired
	case LinkExhausted:
		return ErrLinkExhausted
	case LinkDeactivated:
		return ErrLinkDeactivated
	}
	return nil
}

// Reason returns the short machine-readable reason for a redemption error.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLinkNotFound):
		return "not_found"
	case errors.Is(err, ErrLinkExpired):
		return "expired"
	case errors.Is(err, ErrLinkExhausted):
		return "exhausted"
	case errors.Is(err, ErrLinkDeactivated):
		return "deactivated"
	case errors.Is(err, ErrDeviceNotAllowed):
		return "device_not_allowed"
	}
	return "error"
}

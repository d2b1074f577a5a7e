package domain

import "time"

// LinkState is the access-control state of a shared link.
type LinkState string

const (
	LinkActive      LinkState = "active"
	LinkExpired     LinkState = "expired"
	LinkExhausted   LinkState = "exhausted"
	LinkDeactivated LinkState = "deactivated"
)

// ShortIDLength is the prefix of the link ID used in redirect URLs.
const ShortIDLength = 8

// SharedLink binds a masked identity to a target URL
type SharedLink struct {
	ID          string        `json:"id"`
	ShortID     string        `json:"shortId"`
	TargetURL   string        `json:"targetUrl"`
	Description string        `json:"description,omitempty"`
	Identity    Identity      `json:"identity"`
	CreatedAt   time.Time     `json:"createdAt"`
	ExpiresAt   time.Time     `json:"expiresAt"`
	MaxUses     *int          `json:"maxUses"` // nil means unlimited
	CurrentUses int           `json:"currentUses"`
	AllowMobile bool          `json:"allowMobile"`
	Active      bool          `json:"active"`
	State       LinkState     `json:"state"`
	AccessLog   []AccessEntry `json:"accessLog,omitempty"`
}

// UsesRemaining returns nil for unlimited links.
func (l *SharedLink) UsesRemaining() *int {
	if l.MaxUses == nil {
		return nil
	}
	n := *l.MaxUses - l.CurrentUses
	if n < 0 {
		n = 0
	}
	return &n
}

// LinkSummary is the bulk listing view. It never carries the fingerprint.
type LinkSummary struct {
	ID             string    `json:"id"`
	ShortID        string    `json:"shortId"`
	TargetURL      string    `json:"targetUrl"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	CurrentUses    int       `json:"currentUses"`
	MaxUses        *int      `json:"maxUses"`
	SharedAddress  string    `json:"sharedAddress"`
	TotalAccesses  int       `json:"totalAccesses"`
	UniqueVisitors int       `json:"uniqueVisitors"`
}

// CreateLinkInput is the request to issue a new link.
type CreateLinkInput struct {
	TargetURL   string
	ExpiresIn   string // label from the TTL table, e.g. "24h"
	MaxUses     *int
	AllowMobile *bool // nil allows every device
	Description string
}

// Redemption is the result of a successful access.
type Redemption struct {
	Link     SharedLink
	Identity Identity
	Entry    AccessEntry
}

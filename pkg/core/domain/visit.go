package domain

import "time"

// Device classes derived from the caller's user agent.
const (
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceDesktop = "Desktop"
)

// UnknownCountry is recorded when the gateway could not resolve the caller's country.
const UnknownCountry = "Unknown"

// AccessInfo is what the gateway knows about a caller redeeming a link
type AccessInfo struct {
	CallerAddress string
	UserAgent     string
	Referrer      string
	Country       string // optional, usually from an edge header
}

// AccessEntry represents one redemption of a shared link
type AccessEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	CallerAddress string    `json:"ip"`
	UserAgent     string    `json:"userAgent"`
	Referrer      string    `json:"referrer,omitempty"`
	Device        string    `json:"device"`
	Country       string    `json:"country"`
}

// LinkStats represents aggregated statistics for a link
type LinkStats struct {
	LinkInfo       LinkInfo      `json:"linkInfo"`
	Usage          Usage         `json:"usage"`
	Demographics   Demographics  `json:"demographics"`
	RecentAccesses []AccessEntry `json:"recentAccesses"`
}

type LinkInfo struct {
	ID        string    `json:"id"`
	ShortID   string    `json:"shortId"`
	TargetURL string    `json:"targetUrl"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Active    bool      `json:"isActive"`
	State     LinkState `json:"state"`
}

type Usage struct {
	TotalAccesses  int  `json:"totalAccesses"`
	UniqueVisitors int  `json:"uniqueVisitors"`
	CurrentUses    int  `json:"currentUses"`
	MaxUses        *int `json:"maxUses"`
}

type Demographics struct {
	Countries map[string]int `json:"countries"`
	Devices   map[string]int `json:"devices"`
	Referrers map[string]int `json:"referrers"` // count by host
}

// GeneralStats is the registry-wide aggregate.
type GeneralStats struct {
	TotalLinks          int `json:"totalLinks"`
	ActiveLinks         int `json:"activeLinks"`
	ExpiredLinks        int `json:"expiredLinks"`
	TotalAccesses       int `json:"totalAccesses"`
	TotalUniqueVisitors int `json:"totalUniqueVisitors"`
}

// AccessTally holds the uncapped per-link counters kept next to the access log.
type AccessTally struct {
	TotalAccesses int
	Callers       map[string]struct{}
	Countries     map[string]int
	Devices       map[string]int
	Referrers     map[string]int
}

func NewAccessTally() AccessTally {
	return AccessTally{
		Callers:   make(map[string]struct{}),
		Countries: make(map[string]int),
		Devices:   make(map[string]int),
		Referrers: make(map[string]int),
	}
}

// Clone copies the maps so readers never observe later mutation.
func (t AccessTally) Clone() AccessTally {
	c := AccessTally{
		TotalAccesses: t.TotalAccesses,
		Callers:       make(map[string]struct{}, len(t.Callers)),
		Countries:     copyCounts(t.Countries),
		Devices:       copyCounts(t.Devices),
		Referrers:     copyCounts(t.Referrers),
	}
	for k := range t.Callers {
		c.Callers[k] = struct{}{}
	}
	return c
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// LinkSnapshot is a consistent read of a link and its accounting.
type LinkSnapshot struct {
	Link  SharedLink
	Tally AccessTally
}

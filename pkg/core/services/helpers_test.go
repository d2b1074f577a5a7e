package services

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wadjakorntonsri/go-phantom-links/pkg/core/domain"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// countingFactory hands out identities with sequential IDs.
type countingFactory struct {
	n atomic.Int64
}

func (f *countingFactory) Generate() domain.Identity {
	n := f.n.Add(1)
	return domain.Identity{
		ID: fmt.Sprintf("identity-%d", n),
		NetworkOrigin: domain.NetworkOrigin{
			Address:  fmt.Sprintf("198.51.100.%d", n%250+1),
			Location: "Amsterdam, NL",
			Provider: "Test Transit",
		},
		Fingerprint: domain.Fingerprint{
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
			Languages: []string{"en-US", "en"},
			TimeZone:  "Europe/Amsterdam",
			Platform:  "Linux x86_64",
		},
		Behavior: domain.Behavior{
			TypingSpeed: domain.Range{Min: 120, Max: 280},
			MouseDelay:  domain.Range{Min: 50, Max: 200},
			ScrollSpeed: domain.Range{Min: 100, Max: 300},
		},
		CreatedAt: time.Unix(n, 0).UTC(),
	}
}

type recordedEvent struct {
	kind   string
	linkID string
	reason domain.LinkState
}

type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEvents) LinkCreated(link domain.SharedLink) {
	r.add(recordedEvent{kind: "created", linkID: link.ID})
}

func (r *recordingEvents) LinkAccessed(link domain.SharedLink, entry domain.AccessEntry) {
	r.add(recordedEvent{kind: "accessed", linkID: link.ID})
}

func (r *recordingEvents) LinkRemoved(linkID string, reason domain.LinkState) {
	r.add(recordedEvent{kind: "removed", linkID: linkID, reason: reason})
}

func (r *recordingEvents) add(e recordedEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingEvents) all() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

const (
	desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36"
	mobileUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148"
	tabletUA  = "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) Mobile/15E148"
)

func intPtr(n int) *int { return &n }

func boolPtr(b bool) *bool { return &b }

package identity

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wadjakorntonsri/go-phantom-links/pkg/core/domain"
)

func TestSeededGeneratorIsDeterministic(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := func() time.Time { return at }

	a := NewSeeded(42, clock)
	b := NewSeeded(42, clock)

	for i := 0; i < 5; i++ {
		ia, ib := a.Generate(), b.Generate()
		if ia.ID != ib.ID {
			t.Fatalf("identity %d: IDs differ: %s vs %s", i, ia.ID, ib.ID)
		}
		if ia.NetworkOrigin != ib.NetworkOrigin {
			t.Errorf("identity %d: origins differ: %+v vs %+v", i, ia.NetworkOrigin, ib.NetworkOrigin)
		}
		if ia.Fingerprint.UserAgent != ib.Fingerprint.UserAgent {
			t.Errorf("identity %d: user agents differ", i)
		}
		if !ia.CreatedAt.Equal(at) {
			t.Errorf("identity %d: createdAt = %v, want %v", i, ia.CreatedAt, at)
		}
	}
}

func TestGenerateFillsEveryField(t *testing.T) {
	id := NewRandom().Generate()

	if id.ID == "" {
		t.Error("ID is empty")
	}
	ip := net.ParseIP(id.NetworkOrigin.Address)
	if ip == nil || ip.To4() == nil {
		t.Errorf("address %q is not an IPv4 address", id.NetworkOrigin.Address)
	}
	if id.NetworkOrigin.Location == "" || id.NetworkOrigin.Provider == "" {
		t.Errorf("network origin incomplete: %+v", id.NetworkOrigin)
	}
	fp := id.Fingerprint
	if fp.UserAgent == "" || fp.TimeZone == "" || fp.Platform == "" {
		t.Errorf("fingerprint incomplete: %+v", fp)
	}
	if len(fp.Languages) == 0 {
		t.Error("no languages")
	}
	if fp.Screen.Width == 0 || fp.Screen.Height == 0 {
		t.Errorf("screen not set: %+v", fp.Screen)
	}
}

func TestGenerateBehaviorRanges(t *testing.T) {
	g := NewSeeded(9, nil)
	for i := 0; i < 50; i++ {
		b := g.Generate().Behavior
		for name, r := range map[string]domain.Range{
			"typingSpeed": b.TypingSpeed,
			"mouseDelay":  b.MouseDelay,
			"scrollSpeed": b.ScrollSpeed,
		} {
			if r.Min <= 0 || r.Max < r.Min {
				t.Fatalf("identity %d: %s range %+v", i, name, r)
			}
		}
		if b.TypingSpeed.Min < 100 || b.TypingSpeed.Max > 400 {
			t.Errorf("identity %d: typing speed out of bounds: %+v", i, b.TypingSpeed)
		}
	}
}

func TestGenerateDoesNotShareLanguageSlices(t *testing.T) {
	g := NewSeeded(1, nil)
	a := g.Generate()
	a.Fingerprint.Languages[0] = "xx-XX"

	for i := 0; i < 20; i++ {
		if g.Generate().Fingerprint.Languages[0] == "xx-XX" {
			t.Fatal("generator pool was mutated through a returned identity")
		}
	}
}

func TestGenerateConcurrentUniqueIDs(t *testing.T) {
	g := NewRandom()
	const n = 200

	var mu sync.Mutex
	seen := make(map[string]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.Generate().ID
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("got %d unique IDs, want %d", len(seen), n)
	}
}

// Package identity generates pseudo-identities for masked sessions.
package identity

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/core/domain"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
}

var platforms = []string{"Win32", "MacIntel", "Linux x86_64"}

var languages = [][]string{
	{"pt-BR", "pt", "en"},
	{"en-US", "en"},
	{"es-ES", "es", "en"},
	{"fr-FR", "fr", "en"},
}

var timeZones = []string{
	"America/Sao_Paulo",
	"America/New_York",
	"Europe/London",
	"Asia/Tokyo",
	"Australia/Sydney",
}

var screens = []domain.Screen{
	{Width: 1920, Height: 1080, ColorDepth: 24, PixelDepth: 24},
	{Width: 1366, Height: 768, ColorDepth: 24, PixelDepth: 24},
	{Width: 1440, Height: 900, ColorDepth: 24, PixelDepth: 24},
	{Width: 2560, Height: 1440, ColorDepth: 24, PixelDepth: 24},
}

var gpus = []string{
	"ANGLE (Intel, Intel(R) HD Graphics 620 Direct3D11 vs_5_0 ps_5_0, D3D11)",
	"ANGLE (NVIDIA, NVIDIA GeForce GTX 1060 Direct3D11 vs_5_0 ps_5_0, D3D11)",
	"ANGLE (AMD, AMD Radeon RX 580 Direct3D11 vs_5_0 ps_5_0, D3D11)",
	"Apple GPU",
}

type place struct {
	city, country string
	lat, lon      float64
}

var places = []place{
	{"São Paulo", "BR", -23.5505, -46.6333},
	{"Rio de Janeiro", "BR", -22.9068, -43.1729},
	{"New York", "US", 40.7128, -74.0060},
	{"London", "UK", 51.5074, -0.1278},
	{"Paris", "FR", 48.8566, 2.3522},
	{"Tokyo", "JP", 35.6762, 139.6503},
	{"Berlin", "DE", 52.5200, 13.4050},
}

var providers = []string{
	"Vivo Fibra", "Claro", "Tim", "Oi", "NET Virtua",
	"Google Fiber", "Comcast", "Verizon",
}

// Generator implements ports.IdentityFactory. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewRandom returns a generator seeded from the runtime's random source.
func NewRandom() *Generator {
	return &Generator{
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now: time.Now,
	}
}

// NewSeeded returns a deterministic generator. Two generators with the same seed
// and clock produce the same sequence of identities.
func NewSeeded(seed uint64, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: now,
	}
}

// Generate builds a new identity.
func (g *Generator) Generate() domain.Identity {
	g.mu.Lock()
	defer g.mu.Unlock()

	created := g.now()
	p := places[g.rng.IntN(len(places))]
	langs := languages[g.rng.IntN(len(languages))]

	return domain.Identity{
		ID: ulid.MustNew(ulid.Timestamp(created), rngReader{g.rng}).String(),
		NetworkOrigin: domain.NetworkOrigin{
			Address:  g.address(),
			Location: fmt.Sprintf("%s, %s", p.city, p.country),
			Provider: providers[g.rng.IntN(len(providers))],
		},
		Fingerprint: domain.Fingerprint{
			UserAgent: userAgents[g.rng.IntN(len(userAgents))],
			Languages: append([]string(nil), langs...),
			TimeZone:  timeZones[g.rng.IntN(len(timeZones))],
			Platform:  platforms[g.rng.IntN(len(platforms))],
			Screen:    screens[g.rng.IntN(len(screens))],
			Hardware: domain.Hardware{
				Concurrency: []int{2, 4, 8, 12, 16}[g.rng.IntN(5)],
				MemoryGB:    []int{2, 4, 8, 16, 32}[g.rng.IntN(5)],
				GPU:         gpus[g.rng.IntN(len(gpus))],
			},
			Geolocation: domain.Geolocation{
				Latitude:  p.lat + (g.rng.Float64()-0.5)*0.1,
				Longitude: p.lon + (g.rng.Float64()-0.5)*0.1,
				Accuracy:  20 + g.rng.Float64()*100,
				City:      p.city,
			},
		},
		Behavior:  g.behavior(),
		CreatedAt: created,
	}
}

// behavior draws pacing ranges whose minimum always sits below the maximum.
func (g *Generator) behavior() domain.Behavior {
	span := func(minLo, minSpread, maxLo, maxSpread float64) domain.Range {
		lo := minLo + g.rng.Float64()*minSpread
		hi := maxLo + g.rng.Float64()*maxSpread
		if hi < lo {
			lo, hi = hi, lo
		}
		return domain.Range{Min: lo, Max: hi}
	}
	return domain.Behavior{
		TypingSpeed: span(100, 200, 200, 200),
		MouseDelay:  span(30, 100, 100, 200),
		ScrollSpeed: span(80, 150, 150, 200),
	}
}

// address avoids 0 and 255 in every octet so it never looks like a network or
// broadcast address.
func (g *Generator) address() string {
	o := func() int { return 1 + g.rng.IntN(254) }
	return fmt.Sprintf("%d.%d.%d.%d", o(), o(), o(), o())
}

// rngReader feeds ulid entropy from the generator's own source.
type rngReader struct{ r *rand.Rand }

func (r rngReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.r.Uint32())
	}
	return len(p), nil
}

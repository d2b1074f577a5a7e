package services

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/core/domain"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/metrics"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/ports"
)

const maxIDAttempts = 16

var errIDSpaceExhausted = errors.New("could not allocate a unique link id")

// LinkOptions configures a LinkService.
type LinkOptions struct {
	TTLs          map[string]time.Duration
	DefaultTTL    string
	FallbackTTL   string
	AccessLogCap  int
	SweepInterval time.Duration

	Now     func() time.Time
	NewID   func() string
	Events  ports.LinkEvents
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// linkRecord is the registry-owned mutable state of one link.
type linkRecord struct {
	link     domain.SharedLink
	terminal domain.LinkState // first terminal state reached, empty while active
	tally    domain.AccessTally
}

// state derives the access-control state at now. Recorded terminal states win.
func (r *linkRecord) state(now time.Time) domain.LinkState {
	if r.terminal != "" {
		return r.terminal
	}
	if now.After(r.link.ExpiresAt) {
		return domain.LinkExpired
	}
	if r.link.MaxUses != nil && r.link.CurrentUses >= *r.link.MaxUses {
		return domain.LinkExhausted
	}
	return domain.LinkActive
}

func (r *linkRecord) terminate(s domain.LinkState) {
	if r.terminal == "" {
		r.terminal = s
	}
	r.link.Active = false
}

// snapshot copies the link so callers never alias registry memory.
func (r *linkRecord) snapshot(now time.Time, withLog bool) domain.SharedLink {
	l := r.link
	l.State = r.state(now)
	l.Active = l.State == domain.LinkActive
	l.Identity = r.link.Identity.Clone()
	if r.link.MaxUses != nil {
		m := *r.link.MaxUses
		l.MaxUses = &m
	}
	if withLog {
		l.AccessLog = append([]domain.AccessEntry(nil), r.link.AccessLog...)
	} else {
		l.AccessLog = nil
	}
	return l
}

// LinkService is the in-memory link registry. A single RWMutex guards the map
// and every link's mutable fields.
type LinkService struct {
	factory ports.IdentityFactory
	opts    LinkOptions
	log     *slog.Logger

	mu      sync.RWMutex
	links   map[string]*linkRecord
	byShort map[string]string // shortId -> id
}

func NewLinkService(factory ports.IdentityFactory, opts LinkOptions) *LinkService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.AccessLogCap < 1 {
		opts.AccessLogCap = 1000
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 30 * time.Minute
	}
	if opts.TTLs == nil {
		opts.TTLs = map[string]time.Duration{
			"1h":  time.Hour,
			"6h":  6 * time.Hour,
			"24h": 24 * time.Hour,
			"7d":  7 * 24 * time.Hour,
			"30d": 30 * 24 * time.Hour,
		}
	}
	if opts.DefaultTTL == "" {
		opts.DefaultTTL = "1h"
	}
	if opts.FallbackTTL == "" {
		opts.FallbackTTL = "24h"
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkService{
		factory: factory,
		opts:    opts,
		log:     logger.With("component", "links"),
		links:   make(map[string]*linkRecord),
		byShort: make(map[string]string),
	}
}

// ttlFor resolves an expiry label. Unknown labels fall back silently.
func (s *LinkService) ttlFor(label string) time.Duration {
	if label == "" {
		label = s.opts.DefaultTTL
	}
	if d, ok := s.opts.TTLs[label]; ok {
		return d
	}
	return s.opts.TTLs[s.opts.FallbackTTL]
}

func validateTargetURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &domain.ValidationError{Field: "targetUrl", Message: "target URL is required"}
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &domain.ValidationError{Field: "targetUrl", Message: "must be an absolute URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &domain.ValidationError{Field: "targetUrl", Message: "scheme must be http or https"}
	}
	return nil
}

func (s *LinkService) Create(ctx context.Context, in domain.CreateLinkInput) (*domain.SharedLink, error) {
	if err := validateTargetURL(in.TargetURL); err != nil {
		return nil, err
	}
	if in.MaxUses != nil && *in.MaxUses < 1 {
		return nil, &domain.ValidationError{Field: "maxUses", Message: "must be at least 1"}
	}

	// Identity generation happens outside the lock.
	ident := s.factory.Generate()
	s.opts.Metrics.IdentityGenerated()

	s.mu.Lock()
	id, err := s.allocateIDLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	now := s.opts.Now()
	rec := &linkRecord{
		link: domain.SharedLink{
			ID:          id,
			ShortID:     id[:domain.ShortIDLength],
			TargetURL:   in.TargetURL,
			Description: in.Description,
			Identity:    ident.Clone(),
			CreatedAt:   now,
			ExpiresAt:   now.Add(s.ttlFor(in.ExpiresIn)),
			AllowMobile: in.AllowMobile == nil || *in.AllowMobile,
			Active:      true,
		},
		tally: domain.NewAccessTally(),
	}
	if in.MaxUses != nil {
		m := *in.MaxUses
		rec.link.MaxUses = &m
	}
	s.links[id] = rec
	s.byShort[rec.link.ShortID] = id
	link := rec.snapshot(now, false)
	s.mu.Unlock()

	s.opts.Metrics.LinkCreated()
	s.log.Info("shared link created", "short_id", link.ShortID, "target", link.TargetURL, "expires_at", link.ExpiresAt)
	if s.opts.Events != nil {
		s.opts.Events.LinkCreated(link)
	}
	return &link, nil
}

// allocateIDLocked regenerates until neither the id nor its short prefix collide.
func (s *LinkService) allocateIDLocked() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := s.opts.NewID()
		if len(id) < domain.ShortIDLength {
			continue
		}
		if _, taken := s.links[id]; taken {
			continue
		}
		if _, taken := s.byShort[id[:domain.ShortIDLength]]; taken {
			continue
		}
		return id, nil
	}
	return "", errIDSpaceExhausted
}

// Validate reports whether the link can be redeemed right now. It never mutates.
func (s *LinkService) Validate(ctx context.Context, linkID string) (*domain.SharedLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.links[linkID]
	if !ok {
		return nil, domain.ErrLinkNotFound
	}
	now := s.opts.Now()
	if st := rec.state(now); st != domain.LinkActive {
		return nil, domain.StateError(st)
	}
	link := rec.snapshot(now, false)
	return &link, nil
}

// RecordAccess redeems the link. The state check, the use increment, the log
// append and a possible exhaustion all happen in one critical section.
func (s *LinkService) RecordAccess(ctx context.Context, linkID string, info domain.AccessInfo) (*domain.Redemption, error) {
	s.mu.Lock()
	rec, ok := s.links[linkID]
	if !ok {
		s.mu.Unlock()
		s.opts.Metrics.RedemptionRejected()
		return nil, domain.ErrLinkNotFound
	}

	now := s.opts.Now()
	if st := rec.state(now); st != domain.LinkActive {
		rec.terminate(st)
		s.mu.Unlock()
		s.opts.Metrics.RedemptionRejected()
		return nil, domain.StateError(st)
	}

	device := ClassifyDevice(info.UserAgent)
	if !rec.link.AllowMobile && device != domain.DeviceDesktop {
		s.mu.Unlock()
		s.opts.Metrics.RedemptionRejected()
		return nil, domain.ErrDeviceNotAllowed
	}

	country := info.Country
	if country == "" {
		country = domain.UnknownCountry
	}
	entry := domain.AccessEntry{
		Timestamp:     now,
		CallerAddress: info.CallerAddress,
		UserAgent:     info.UserAgent,
		Referrer:      info.Referrer,
		Device:        device,
		Country:       country,
	}

	rec.link.CurrentUses++
	rec.link.AccessLog = append(rec.link.AccessLog, entry)
	if over := len(rec.link.AccessLog) - s.opts.AccessLogCap; over > 0 {
		trimmed := make([]domain.AccessEntry, s.opts.AccessLogCap)
		copy(trimmed, rec.link.AccessLog[over:])
		rec.link.AccessLog = trimmed
	}

	t := &rec.tally
	t.TotalAccesses++
	t.Callers[info.CallerAddress] = struct{}{}
	t.Countries[country]++
	t.Devices[device]++
	if host := referrerHost(info.Referrer); host != "" {
		t.Referrers[host]++
	}

	if rec.link.MaxUses != nil && rec.link.CurrentUses >= *rec.link.MaxUses {
		rec.terminate(domain.LinkExhausted)
	}

	red := &domain.Redemption{
		Link:     rec.snapshot(now, false),
		Identity: rec.link.Identity.Clone(),
		Entry:    entry,
	}
	s.mu.Unlock()

	s.opts.Metrics.Redeemed()
	s.log.Debug("access recorded", "short_id", red.Link.ShortID, "ip", entry.CallerAddress, "device", device)
	if s.opts.Events != nil {
		s.opts.Events.LinkAccessed(red.Link, entry)
	}
	return red, nil
}

// Deactivate is idempotent; it returns false only for unknown links.
func (s *LinkService) Deactivate(ctx context.Context, linkID string) bool {
	s.mu.Lock()
	rec, ok := s.links[linkID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	st := rec.state(s.opts.Now())
	if st == domain.LinkActive {
		st = domain.LinkDeactivated
	}
	rec.terminate(st)
	shortID := rec.link.ShortID
	s.mu.Unlock()

	s.log.Info("shared link deactivated", "short_id", shortID, "state", st)
	return true
}

func (s *LinkService) Get(ctx context.Context, linkID string) (*domain.SharedLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.links[linkID]
	if !ok {
		return nil, domain.ErrLinkNotFound
	}
	link := rec.snapshot(s.opts.Now(), true)
	return &link, nil
}

func (s *LinkService) GetByShortID(ctx context.Context, shortID string) (*domain.SharedLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byShort[shortID]
	if !ok {
		return nil, domain.ErrLinkNotFound
	}
	link := s.links[id].snapshot(s.opts.Now(), false)
	return &link, nil
}

// ListActive returns redeemable links, newest first, without fingerprints.
func (s *LinkService) ListActive(ctx context.Context) []domain.LinkSummary {
	s.mu.RLock()
	now := s.opts.Now()
	out := make([]domain.LinkSummary, 0, len(s.links))
	for id, rec := range s.links {
		if rec.state(now) != domain.LinkActive {
			continue
		}
		var maxUses *int
		if rec.link.MaxUses != nil {
			m := *rec.link.MaxUses
			maxUses = &m
		}
		out = append(out, domain.LinkSummary{
			ID:             id,
			ShortID:        rec.link.ShortID,
			TargetURL:      rec.link.TargetURL,
			CreatedAt:      rec.link.CreatedAt,
			ExpiresAt:      rec.link.ExpiresAt,
			CurrentUses:    rec.link.CurrentUses,
			MaxUses:        maxUses,
			SharedAddress:  rec.link.Identity.NetworkOrigin.Address,
			TotalAccesses:  rec.tally.TotalAccesses,
			UniqueVisitors: len(rec.tally.Callers),
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Snapshot returns a consistent copy of one link and its tallies.
func (s *LinkService) Snapshot(linkID string) (domain.LinkSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.links[linkID]
	if !ok {
		return domain.LinkSnapshot{}, false
	}
	return domain.LinkSnapshot{
		Link:  rec.snapshot(s.opts.Now(), true),
		Tally: rec.tally.Clone(),
	}, true
}

// Walk calls fn for every link under the read lock. fn must not call back into
// the registry.
func (s *LinkService) Walk(fn func(link domain.SharedLink, tally domain.AccessTally)) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.opts.Now()
	for _, rec := range s.links {
		fn(rec.snapshot(now, false), rec.tally)
	}
}

// Sweep evicts every link whose expiry has passed, active or not.
func (s *LinkService) Sweep(now time.Time) int {
	type removal struct {
		id    string
		state domain.LinkState
	}
	var removed []removal

	s.mu.Lock()
	for id, rec := range s.links {
		if now.After(rec.link.ExpiresAt) {
			st := rec.terminal
			if st == "" {
				st = domain.LinkExpired
			}
			removed = append(removed, removal{id, st})
			delete(s.byShort, rec.link.ShortID)
			delete(s.links, id)
		}
	}
	s.mu.Unlock()

	if s.opts.Events != nil {
		for _, r := range removed {
			s.opts.Events.LinkRemoved(r.id, r.state)
		}
	}
	s.opts.Metrics.Swept(len(removed))
	return len(removed)
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *LinkService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	s.log.Info("link sweeper started", "interval", s.opts.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("link sweeper stopped")
			return
		case <-ticker.C:
			if n := s.Sweep(s.opts.Now()); n > 0 {
				s.log.Info("expired links swept", "count", n)
			}
		}
	}
}

// Len is the number of links currently held, including inactive ones.
func (s *LinkService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.links)
}

func referrerHost(ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

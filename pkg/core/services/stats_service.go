package services

import (
	"context"
	"strings"

	"github.com/wadjakorntonsri/go-phantom-links/pkg/core/domain"
)

const recentAccessCount = 10

var (
	tabletMarkers = []string{"iPad", "Tablet"}
	mobileMarkers = []string{"Mobile", "Android", "iPhone"}
)

// ClassifyDevice buckets a user agent by substring markers. Tablet markers are
// checked first because most tablet agents also carry a mobile marker.
func ClassifyDevice(userAgent string) string {
	for _, m := range tabletMarkers {
		if strings.Contains(userAgent, m) {
			return domain.DeviceTablet
		}
	}
	for _, m := range mobileMarkers {
		if strings.Contains(userAgent, m) {
			return domain.DeviceMobile
		}
	}
	return domain.DeviceDesktop
}

// StatsService is the read side over the link registry
type StatsService struct {
	links *LinkService
}

func NewStatsService(links *LinkService) *StatsService {
	return &StatsService{links: links}
}

func (s *StatsService) LinkStats(ctx context.Context, linkID string) (*domain.LinkStats, error) {
	snap, ok := s.links.Snapshot(linkID)
	if !ok {
		return nil, domain.ErrLinkNotFound
	}
	l := snap.Link

	recent := l.AccessLog
	if len(recent) > recentAccessCount {
		recent = recent[len(recent)-recentAccessCount:]
	}

	return &domain.LinkStats{
		LinkInfo: domain.LinkInfo{
			ID:        l.ID,
			ShortID:   l.ShortID,
			TargetURL: l.TargetURL,
			CreatedAt: l.CreatedAt,
			ExpiresAt: l.ExpiresAt,
			Active:    l.Active,
			State:     l.State,
		},
		Usage: domain.Usage{
			TotalAccesses:  snap.Tally.TotalAccesses,
			UniqueVisitors: len(snap.Tally.Callers),
			CurrentUses:    l.CurrentUses,
			MaxUses:        l.MaxUses,
		},
		Demographics: domain.Demographics{
			Countries: snap.Tally.Countries,
			Devices:   snap.Tally.Devices,
			Referrers: snap.Tally.Referrers,
		},
		RecentAccesses: append([]domain.AccessEntry{}, recent...),
	}, nil
}

// GeneralStats aggregates over every link still held by the registry. Links that
// are inactive but not yet swept count as expired.
func (s *StatsService) GeneralStats(ctx context.Context) domain.GeneralStats {
	var g domain.GeneralStats
	s.links.Walk(func(link domain.SharedLink, tally domain.AccessTally) {
		g.TotalLinks++
		if link.Active {
			g.ActiveLinks++
		}
		g.TotalAccesses += tally.TotalAccesses
		g.TotalUniqueVisitors += len(tally.Callers)
	})
	g.ExpiredLinks = g.TotalLinks - g.ActiveLinks
	return g
}

package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wadjakorntonsri/go-phantom-links/pkg/core/domain"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/metrics"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/ports"
)

const archiveWriteTimeout = 5 * time.Second

// Archiver copies registry events into an AccessArchive on a single background
// worker. It implements ports.LinkEvents; events arriving while the buffer is
// full are dropped and counted.
type Archiver struct {
	archive ports.AccessArchive
	now     func() time.Time
	metrics *metrics.Metrics
	log     *slog.Logger

	jobs chan func(ctx context.Context) error
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewArchiver(archive ports.AccessArchive, buffer int, m *metrics.Metrics, logger *slog.Logger) *Archiver {
	if buffer < 1 {
		buffer = 256
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Archiver{
		archive: archive,
		now:     time.Now,
		metrics: m,
		log:     logger.With("component", "archive"),
		jobs:    make(chan func(ctx context.Context) error, buffer),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Archiver) run() {
	defer close(a.done)
	for job := range a.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), archiveWriteTimeout)
		if err := job(ctx); err != nil {
			a.metrics.Error("archive", "write")
			a.log.Error("archive write failed", "error", err)
		}
		cancel()
	}
}

func (a *Archiver) submit(kind string, job func(ctx context.Context) error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.jobs <- job:
	default:
		a.metrics.Error("archive", "overflow")
		a.log.Warn("archive buffer full, event dropped", "event", kind)
	}
}

func (a *Archiver) LinkCreated(link domain.SharedLink) {
	row := ports.ArchivedLink{
		ID:            link.ID,
		ShortID:       link.ShortID,
		TargetURL:     link.TargetURL,
		IdentityID:    link.Identity.ID,
		SharedAddress: link.Identity.NetworkOrigin.Address,
		CreatedAt:     link.CreatedAt,
		ExpiresAt:     link.ExpiresAt,
		MaxUses:       link.MaxUses,
	}
	a.submit("link_created", func(ctx context.Context) error {
		return a.archive.SaveLink(ctx, row)
	})
}

func (a *Archiver) LinkAccessed(link domain.SharedLink, entry domain.AccessEntry) {
	row := ports.ArchivedAccess{
		LinkID:    link.ID,
		ShortID:   link.ShortID,
		TargetURL: link.TargetURL,
		Entry:     entry,
	}
	a.submit("link_accessed", func(ctx context.Context) error {
		return a.archive.SaveAccess(ctx, row)
	})
}

func (a *Archiver) LinkRemoved(linkID string, reason domain.LinkState) {
	at := a.now()
	a.submit("link_removed", func(ctx context.Context) error {
		return a.archive.MarkRemoved(ctx, linkID, string(reason), at)
	})
}

// Close stops accepting events and waits for queued writes to finish or ctx to
// expire. The archive itself is left open.
func (a *Archiver) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.jobs)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/wadjakorntonsri/go-phantom-links/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/adapters/identity"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/config"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/core/services"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/metrics"
	"github.com/wadjakorntonsri/go-phantom-links/pkg/ports"
)

const archiveBuffer = 1024

// app is the wired process: one registry, one hub, and the optional archive.
type app struct {
	links    *services.LinkService
	hub      *services.SyncHub
	archive  ports.AccessArchive
	archiver *services.Archiver
	metrics  *metrics.Metrics
	handler  http.Handler
	log      *slog.Logger
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	ttls, err := cfg.Links.TTLTable()
	if err != nil {
		return nil, err
	}

	a := &app{metrics: metrics.New(), log: logger}

	var events ports.LinkEvents
	if cfg.DatabaseURL != "" {
		repo, err := sqlite.NewArchiveRepository(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.archive = repo
		a.archiver = services.NewArchiver(repo, archiveBuffer, a.metrics, logger)
		events = a.archiver
	} else {
		logger.Info("DATABASE_URL not set, access archive disabled")
	}

	factory := identity.NewRandom()
	a.links = services.NewLinkService(factory, services.LinkOptions{
		TTLs:          ttls,
		DefaultTTL:    cfg.Links.DefaultTTL,
		FallbackTTL:   cfg.Links.FallbackTTL,
		AccessLogCap:  cfg.Links.AccessLogCap,
		SweepInterval: cfg.Links.SweepInterval,
		Events:        events,
		Metrics:       a.metrics,
		Logger:        logger,
	})
	a.hub = services.NewSyncHub(factory, services.HubOptions{
		QueueSize:    cfg.Sync.QueueSize,
		DedupeWindow: cfg.Sync.ActionDedupeWindow,
		Metrics:      a.metrics,
		Logger:       logger,
	})

	a.handler = handler.NewRouter(cfg, handler.Services{
		Links:   a.links,
		Stats:   services.NewStatsService(a.links),
		Hub:     a.hub,
		Metrics: a.metrics,
	}, logger)
	return a, nil
}

// close releases everything after the HTTP server has stopped.
func (a *app) close(ctx context.Context) error {
	a.hub.Close()

	var errs []error
	if a.archiver != nil {
		if err := a.archiver.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("draining archive: %w", err))
		}
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing archive: %w", err))
		}
	}
	return errors.Join(errs...)
}

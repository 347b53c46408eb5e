package main

import (
	"context"
	"fmt"

	"github.com/rgm-labs/leadsync/internal/config"
	"github.com/rgm-labs/leadsync/internal/crm"
	"github.com/rgm-labs/leadsync/internal/db"
	"github.com/rgm-labs/leadsync/internal/directory"
	"github.com/rgm-labs/leadsync/internal/gateway"
	"github.com/rgm-labs/leadsync/internal/gateway/gsheets"
	"github.com/rgm-labs/leadsync/internal/gateway/xlsx"
	"github.com/rgm-labs/leadsync/internal/reconcile"
	"github.com/rgm-labs/leadsync/internal/retry"
	"github.com/rgm-labs/leadsync/internal/tickets"
)

// app holds the collaborators one command invocation needs.
type app struct {
	cfg   *config.Config
	store *db.DB
	gw    *gateway.Gateway
}

// openApp opens the store and creates its schema.
func openApp(ctx context.Context) (*app, error) {
	store, err := db.Open(cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	if err := store.InitSchemaContext(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return &app{cfg: cfg, store: store}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// gateway builds the spreadsheet gateway on first use.
func (a *app) gateway(ctx context.Context) (*gateway.Gateway, error) {
	if a.gw != nil {
		return a.gw, nil
	}

	var backend gateway.Backend
	switch a.cfg.Sheets.Backend {
	case config.BackendXLSX:
		backend = xlsx.New(a.cfg.Sheets.Root)
	default:
		creds, err := a.cfg.GoogleCredentials()
		if err != nil {
			return nil, err
		}
		b, err := gsheets.NewFromCredentials(ctx, creds)
		if err != nil {
			return nil, err
		}
		backend = b
	}

	a.gw = gateway.NewWithConfig(backend, &gateway.Config{
		Cooldown:       a.cfg.Sheets.Cooldown,
		MaxOpenRetries: a.cfg.Sheets.MaxOpenRetries,
		WriteRetries:   1,
		Sleeper:        retry.Real,
		Logger:         logger.With().Str("component", "gateway").Logger(),
	})
	return a.gw, nil
}

func (a *app) crmClient() (*crm.Client, error) {
	c := crm.DefaultConfig()
	c.BaseURL = a.cfg.CRM.BaseURL
	c.ClientID = a.cfg.CRM.ClientID
	c.ClientSecret = a.cfg.CRM.ClientSecret
	c.RedirectURI = a.cfg.CRM.RedirectURI
	c.PageLimit = a.cfg.CRM.PageLimit
	return crm.NewClient(c)
}

func (a *app) refreshTokens(ctx context.Context) (crm.RefreshStats, error) {
	client, err := a.crmClient()
	if err != nil {
		return crm.RefreshStats{}, err
	}
	return crm.RefreshAll(ctx, client, a.store, logger.With().Str("component", "refresh").Logger())
}

func (a *app) loadDirectory(ctx context.Context) (directory.Stats, error) {
	gw, err := a.gateway(ctx)
	if err != nil {
		return directory.Stats{}, err
	}
	src := directory.New(gw, a.store, logger.With().Str("component", "directory").Logger())
	return src.Sync(ctx, a.cfg.Directory.Link)
}

func (a *app) ingest(ctx context.Context) (crm.IngestStats, error) {
	client, err := a.crmClient()
	if err != nil {
		return crm.IngestStats{}, err
	}
	log := logger.With().Str("component", "ingest").Logger()
	ing := crm.NewIngestor(client, a.store, tickets.New(a.cfg.Tickets.WebhookURL, log), &crm.IngestConfig{
		Attempts: a.cfg.CRM.Attempts,
		Backoff:  a.cfg.CRM.Backoff,
		Sleeper:  retry.Real,
		Logger:   log,
	})
	return ing.Run(ctx)
}

func (a *app) reconcile(ctx context.Context, only []string) (*reconcile.Report, error) {
	gw, err := a.gateway(ctx)
	if err != nil {
		return nil, err
	}
	rc := reconcile.DefaultConfig()
	rc.Logger = logger.With().Str("component", "reconcile").Logger()
	rc.Only = only
	return reconcile.New(a.store, gw, rc).Run(ctx)
}

// jobOptions selects the steps of a full run.
type jobOptions struct {
	skipRefresh   bool
	skipDirectory bool
	skipIngest    bool
	skipReconcile bool
	only          []string
}

// runJob runs the selected steps in order. A failing CRM step is logged and
// the job continues; reconciliation works from whatever the cache holds.
func (a *app) runJob(ctx context.Context, opts jobOptions) (*reconcile.Report, error) {
	if !opts.skipRefresh {
		if _, err := a.refreshTokens(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Error().Err(err).Msg("token refresh failed")
		}
	}

	if !opts.skipDirectory {
		if a.cfg.Directory.Link == "" {
			logger.Warn().Msg("directory.link not set, using stored locations")
		} else if _, err := a.loadDirectory(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Error().Err(err).Msg("directory load failed, using stored locations")
		}
	}

	if !opts.skipIngest {
		if _, err := a.ingest(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Error().Err(err).Msg("contact ingestion failed, using cached contacts")
		}
	}

	if opts.skipReconcile {
		return nil, nil
	}
	report, err := a.reconcile(ctx, opts.only)
	if err != nil {
		return report, fmt.Errorf("reconciliation stopped: %w", err)
	}
	return report, nil
}

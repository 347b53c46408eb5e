package crm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rgm-labs/leadsync/internal/retry"
	"github.com/rgm-labs/leadsync/internal/schema"
	"github.com/rgm-labs/leadsync/internal/tickets"
)

// ContactLister lists a location's contacts. *Client satisfies it.
type ContactLister interface {
	ListContacts(ctx context.Context, locationID, accessToken string) ([]*schema.Contact, error)
}

// IngestStore is the local persistence ingestion needs. *db.DB satisfies it.
type IngestStore interface {
	ListLocations(ctx context.Context) ([]*schema.Location, error)
	GetTokenForLocation(ctx context.Context, locationID string) (*schema.Token, error)
	UpsertContacts(ctx context.Context, contacts []*schema.Contact) error
}

// IngestConfig holds ingestion retry settings.
type IngestConfig struct {
	// Attempts is how many times a location's contact listing is tried.
	Attempts int

	// Backoff is the pause between attempts.
	Backoff time.Duration

	Sleeper retry.Sleeper
	Logger  zerolog.Logger
}

// DefaultIngestConfig returns the production settings.
func DefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		Attempts: 3,
		Backoff:  5 * time.Second,
		Sleeper:  retry.Real,
		Logger:   zerolog.Nop(),
	}
}

// IngestStats counts one ingestion pass.
type IngestStats struct {
	Locations int // locations considered
	NoToken   int // locations without a stored token
	Ingested  int // locations whose contacts were stored
	Failed    int // locations that failed after all attempts
	Contacts  int // contacts upserted
	Tickets   int // tickets filed successfully
}

// Ingestor copies CRM contacts into the local contact store.
type Ingestor struct {
	lister ContactLister
	store  IngestStore
	filer  tickets.Filer
	config *IngestConfig
}

// NewIngestor creates an Ingestor. A nil config uses DefaultIngestConfig.
func NewIngestor(lister ContactLister, store IngestStore, filer tickets.Filer, config *IngestConfig) *Ingestor {
	if config == nil {
		config = DefaultIngestConfig()
	}
	if config.Attempts < 1 {
		config.Attempts = 1
	}
	if config.Sleeper == nil {
		config.Sleeper = retry.Real
	}
	if filer == nil {
		filer = tickets.Log{Logger: config.Logger}
	}
	return &Ingestor{lister: lister, store: store, filer: filer, config: config}
}

// Run ingests contacts for every location that has a token.
//
// A location whose listing keeps failing gets one ticket and the pass moves
// on. Store failures and cancellation end the pass.
func (i *Ingestor) Run(ctx context.Context) (IngestStats, error) {
	var stats IngestStats

	locations, err := i.store.ListLocations(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list locations: %w", err)
	}

	for _, loc := range locations {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Locations++
		log := i.config.Logger.With().Str("location_id", loc.ID).Logger()

		token, err := i.store.GetTokenForLocation(ctx, loc.ID)
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug().Msg("no token for location, skipping ingestion")
			stats.NoToken++
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("failed to load token for %s: %w", loc.ID, err)
		}

		contacts, err := i.list(ctx, log, loc.ID, token.AccessToken)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			if i.fileTicket(ctx, log, loc, err) {
				stats.Tickets++
			}
			continue
		}

		if err := i.store.UpsertContacts(ctx, contacts); err != nil {
			return stats, fmt.Errorf("failed to store contacts for %s: %w", loc.ID, err)
		}
		stats.Ingested++
		stats.Contacts += len(contacts)
		log.Info().Int("contacts", len(contacts)).Msg("contacts ingested")
	}

	return stats, nil
}

func (i *Ingestor) list(ctx context.Context, log zerolog.Logger, locationID, accessToken string) ([]*schema.Contact, error) {
	var lastErr error
	for attempt := 1; attempt <= i.config.Attempts; attempt++ {
		contacts, err := i.lister.ListContacts(ctx, locationID, accessToken)
		if err == nil {
			return contacts, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Int("attempts", i.config.Attempts).Msg("contact listing failed")

		if attempt < i.config.Attempts {
			if err := i.config.Sleeper.Sleep(ctx, i.config.Backoff); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

// fileTicket reports a failed location once. Ticket failures are only logged.
func (i *Ingestor) fileTicket(ctx context.Context, log zerolog.Logger, loc *schema.Location, cause error) bool {
	t := tickets.Ticket{
		LocationID: loc.ID,
		SheetLink:  loc.LeadSheetLink,
		Summary:    fmt.Sprintf("Contact ingestion failed for location %s", loc.ID),
		Detail:     cause.Error(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := i.filer.File(ctx, t); err != nil {
		log.Error().Err(err).Msg("failed to file ticket")
		return false
	}
	log.Info().Msg("ticket filed for failed ingestion")
	return true
}

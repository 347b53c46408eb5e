package crm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rgm-labs/leadsync/internal/schema"
)

// TokenRefresher exchanges a refresh token. *Client satisfies it.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*schema.Token, error)
}

// TokenStore persists tokens. *db.DB satisfies it.
type TokenStore interface {
	ListTokens(ctx context.Context) ([]*schema.Token, error)
	UpsertToken(ctx context.Context, t *schema.Token) error
}

// RefreshStats counts one refresh pass.
type RefreshStats struct {
	Refreshed int
	Failed    int
}

// RefreshAll refreshes every stored token.
//
// A token that cannot be refreshed is logged with its location and left as
// it is; the remaining tokens are still refreshed. Only store failures and
// cancellation are returned.
func RefreshAll(ctx context.Context, refresher TokenRefresher, store TokenStore, logger zerolog.Logger) (RefreshStats, error) {
	var stats RefreshStats

	tokens, err := store.ListTokens(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list tokens: %w", err)
	}

	for _, old := range tokens {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		log := logger.With().Str("location_id", old.LocationID).Str("company_id", old.CompanyID).Logger()

		if old.RefreshToken == "" {
			log.Warn().Msg("token has no refresh token, skipping")
			stats.Failed++
			continue
		}

		fresh, err := refresher.RefreshToken(ctx, old.RefreshToken)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			log.Error().Err(err).Msg("token refresh failed")
			stats.Failed++
			continue
		}

		// The response may omit the key fields; keep the row it came from.
		if fresh.UserType == "" {
			fresh.UserType = old.UserType
		}
		if fresh.CompanyID == "" {
			fresh.CompanyID = old.CompanyID
		}
		if fresh.LocationID == "" {
			fresh.LocationID = old.LocationID
		}

		if err := store.UpsertToken(ctx, fresh); err != nil {
			return stats, fmt.Errorf("failed to store refreshed token for %s: %w", old.LocationID, err)
		}
		stats.Refreshed++
		log.Debug().Msg("token refreshed")
	}

	logger.Info().Int("refreshed", stats.Refreshed).Int("failed", stats.Failed).Msg("token refresh finished")
	return stats, nil
}

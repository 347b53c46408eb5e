package crm

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgm-labs/leadsync/internal/schema"
)

type fakeRefresher struct {
	bad   map[string]bool
	calls []string
}

func (f *fakeRefresher) RefreshToken(ctx context.Context, refreshToken string) (*schema.Token, error) {
	f.calls = append(f.calls, refreshToken)
	if f.bad[refreshToken] {
		return nil, errors.New("invalid_grant")
	}
	return &schema.Token{AccessToken: "new-" + refreshToken, RefreshToken: refreshToken + "-2"}, nil
}

func TestRefreshAll_IsolatesFailures(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	for _, tok := range []*schema.Token{
		{UserType: "Location", CompanyID: "co", LocationID: "L1", AccessToken: "a1", RefreshToken: "r1"},
		{UserType: "Location", CompanyID: "co", LocationID: "L2", AccessToken: "a2", RefreshToken: "r2"},
		{UserType: "Location", CompanyID: "co", LocationID: "L3", AccessToken: "a3", RefreshToken: "r3"},
		{UserType: "Location", CompanyID: "co", LocationID: "L4", AccessToken: "a4"},
	} {
		require.NoError(t, store.UpsertToken(ctx, tok))
	}

	refresher := &fakeRefresher{bad: map[string]bool{"r1": true}}
	stats, err := RefreshAll(ctx, refresher, store, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, RefreshStats{Refreshed: 2, Failed: 2}, stats)
	assert.Equal(t, []string{"r1", "r2", "r3"}, refresher.calls, "a failing token does not stop the loop")

	l1, err := store.GetTokenForLocation(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, "a1", l1.AccessToken, "failed credential is left as it was")

	l2, err := store.GetTokenForLocation(ctx, "L2")
	require.NoError(t, err)
	assert.Equal(t, "new-r2", l2.AccessToken)
	assert.Equal(t, "r2-2", l2.RefreshToken)
}

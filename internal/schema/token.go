package schema

import (
	"fmt"
	"time"
)

// Token is an OAuth credential for reading one location's CRM data.
// The natural key is (UserType, CompanyID, LocationID).
type Token struct {
	UserType     string    `json:"userType"`
	CompanyID    string    `json:"companyId"`
	LocationID   string    `json:"locationId"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Validate checks if the Token has valid field values.
func (t *Token) Validate() error {
	if t.LocationID == "" {
		return fmt.Errorf("token location id is required")
	}
	if t.AccessToken == "" {
		return fmt.Errorf("access token is required for location %s", t.LocationID)
	}
	return nil
}

// Expired reports whether the access token is past its expiry at now.
// A zero ExpiresAt is treated as unknown and never expired.
func (t *Token) Expired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(t.ExpiresAt)
}

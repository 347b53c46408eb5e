// Package match correlates a lead data sheet row with a cached CRM contact.
//
// Matching is tiered. The identity tier (phone, then email) is treated as
// ground truth and wins outright. The name tier only runs when the identity
// tier found nothing, and it must find exactly one contact: two contacts with
// the same first and last name in one location is an ambiguous result and
// yields no match.
//
// Matching only reads the local cache; it never calls the CRM.
package match

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rgm-labs/leadsync/internal/schema"
	"github.com/rgm-labs/leadsync/internal/sheet"
)

// ContactLookup is the read side of the contact cache. *db.DB satisfies it.
type ContactLookup interface {
	FindContactsByPhone(ctx context.Context, locationID, phone string) ([]*schema.Contact, error)
	FindContactsByEmail(ctx context.Context, locationID, email string) ([]*schema.Contact, error)
	FindContactsByName(ctx context.Context, locationID, firstName, lastName string) ([]*schema.Contact, error)
}

// Tier identifies which rule produced a match.
type Tier int

const (
	TierNone Tier = iota
	TierPhone
	TierEmail
	TierName
)

func (t Tier) String() string {
	switch t {
	case TierPhone:
		return "phone"
	case TierEmail:
		return "email"
	case TierName:
		return "name"
	}
	return "none"
}

// Result is the outcome of matching one row.
type Result struct {
	Contact *schema.Contact
	Tier    Tier

	// Ambiguous is set when the name tier found more than one candidate.
	Ambiguous bool
}

// Found reports whether a contact was matched.
func (r Result) Found() bool {
	return r.Contact != nil
}

// Matcher resolves sheet rows against a ContactLookup.
type Matcher struct {
	contacts ContactLookup
	logger   zerolog.Logger
}

// New creates a Matcher reading from contacts.
func New(contacts ContactLookup, logger zerolog.Logger) *Matcher {
	return &Matcher{contacts: contacts, logger: logger}
}

// Match finds the contact for row within locationID.
//
// A zero Result (Found() == false) means no match. The returned error is
// non-nil only when the cache itself failed.
func (m *Matcher) Match(ctx context.Context, row sheet.Row, locationID string) (Result, error) {
	phone, err := NormalizePhone(row.Phone)
	if err != nil {
		if errors.Is(err, ErrUnrecognizedPhone) {
			m.logger.Debug().
				Str("location_id", locationID).
				Int("row", row.Number).
				Str("phone", row.Phone).
				Msg("phone excluded from matching")
		}
		phone = ""
	}

	if phone != "" {
		found, err := m.contacts.FindContactsByPhone(ctx, locationID, phone)
		if err != nil {
			return Result{}, err
		}
		if len(found) > 0 {
			return Result{Contact: found[0], Tier: TierPhone}, nil
		}
	}

	if email := NormalizeEmail(row.Email); email != "" {
		found, err := m.contacts.FindContactsByEmail(ctx, locationID, email)
		if err != nil {
			return Result{}, err
		}
		if len(found) > 0 {
			return Result{Contact: found[0], Tier: TierEmail}, nil
		}
	}

	first := strings.TrimSpace(row.FirstName)
	last := strings.TrimSpace(row.LastName)
	if first == "" || last == "" {
		return Result{}, nil
	}

	found, err := m.contacts.FindContactsByName(ctx, locationID, row.FirstName, row.LastName)
	if err != nil {
		return Result{}, err
	}
	switch len(found) {
	case 0:
		return Result{}, nil
	case 1:
		return Result{Contact: found[0], Tier: TierName}, nil
	default:
		m.logger.Debug().
			Str("location_id", locationID).
			Int("row", row.Number).
			Int("candidates", len(found)).
			Msg("ambiguous name match")
		return Result{Ambiguous: true}, nil
	}
}

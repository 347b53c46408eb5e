package schema

import (
	"fmt"
	"strings"
)

// Contact is a CRM contact cached locally for matching.
type Contact struct {
	ID         string `json:"id"`
	LocationID string `json:"locationId"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"` // E.164, e.g. +19107339541
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
}

// Validate checks if the Contact has valid field values.
func (c *Contact) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("contact id is required")
	}
	if c.LocationID == "" {
		return fmt.Errorf("location id is required for contact %s", c.ID)
	}
	if c.Phone != "" && !strings.HasPrefix(c.Phone, "+") {
		return fmt.Errorf("phone for contact %s must be in E.164 form (got %q)", c.ID, c.Phone)
	}
	return nil
}

// FullName returns "first last" with surrounding whitespace removed.
func (c *Contact) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

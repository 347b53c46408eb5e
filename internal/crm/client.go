// Package crm reads contacts and refreshes OAuth tokens against the CRM API.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rgm-labs/leadsync/internal/match"
	"github.com/rgm-labs/leadsync/internal/schema"
)

// APIVersion is sent with every contacts request.
const APIVersion = "2021-07-28"

// ErrAPI is matched by every *APIError.
var ErrAPI = errors.New("crm API error")

// APIError is a failed CRM call: a non-2xx status or a JSON body carrying an error.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm API error %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

// Config holds CRM client settings.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// PageLimit is the page size requested from the contacts endpoint.
	PageLimit int

	HTTPClient *http.Client
}

// DefaultConfig returns settings for the hosted CRM.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "https://services.leadconnectorhq.com",
		RedirectURI: "http://localhost:3000/oauth/callback",
		PageLimit:   100,
		HTTPClient:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Client calls the CRM REST API.
type Client struct {
	config *Config
	base   *url.URL
}

// NewClient creates a Client. A nil config uses DefaultConfig.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.PageLimit <= 0 {
		config.PageLimit = 100
	}
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/") + "/")
	if err != nil || base.Scheme == "" {
		return nil, fmt.Errorf("invalid CRM base url %q", config.BaseURL)
	}
	return &Client{config: config, base: base}, nil
}

type contactJSON struct {
	ID         string `json:"id"`
	LocationID string `json:"locationId"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
}

type contactsPage struct {
	Contacts []contactJSON `json:"contacts"`
	Meta     struct {
		NextPageURL string `json:"nextPageUrl"`
	} `json:"meta"`
}

// ListContacts fetches every contact of locationID, following pagination.
//
// Phones are normalized for matching; a phone that cannot be normalized is
// dropped and the contact is kept.
func (c *Client) ListContacts(ctx context.Context, locationID, accessToken string) ([]*schema.Contact, error) {
	q := url.Values{}
	q.Set("locationId", locationID)
	q.Set("limit", strconv.Itoa(c.config.PageLimit))
	next := c.base.ResolveReference(&url.URL{Path: "contacts/", RawQuery: q.Encode()})

	seen := make(map[string]bool)
	var contacts []*schema.Contact
	for next != nil {
		if seen[next.String()] {
			break
		}
		seen[next.String()] = true

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build contacts request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Version", APIVersion)
		req.Header.Set("Accept", "application/json")

		var page contactsPage
		if err := c.do(req, &page); err != nil {
			return nil, fmt.Errorf("failed to list contacts for %s: %w", locationID, err)
		}

		for _, cj := range page.Contacts {
			if cj.ID == "" {
				continue
			}
			contacts = append(contacts, toContact(cj, locationID))
		}

		next = nil
		if page.Meta.NextPageURL != "" {
			u, err := url.Parse(page.Meta.NextPageURL)
			if err != nil {
				return nil, fmt.Errorf("invalid next page url %q: %w", page.Meta.NextPageURL, err)
			}
			next = c.base.ResolveReference(u)
		}
	}
	return contacts, nil
}

func toContact(cj contactJSON, locationID string) *schema.Contact {
	phone, err := match.NormalizePhone(cj.Phone)
	if err != nil {
		phone = ""
	}
	loc := cj.LocationID
	if loc == "" {
		loc = locationID
	}
	return &schema.Contact{
		ID:         cj.ID,
		LocationID: loc,
		Email:      match.NormalizeEmail(cj.Email),
		Phone:      phone,
		FirstName:  cj.FirstName,
		LastName:   cj.LastName,
	}
}

type tokenJSON struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	UserType     string `json:"userType"`
	CompanyID    string `json:"companyId"`
	LocationID   string `json:"locationId"`
}

// RefreshToken exchanges refreshToken for a new location token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*schema.Token, error) {
	form := url.Values{}
	form.Set("client_id", c.config.ClientID)
	form.Set("client_secret", c.config.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("user_type", "Location")
	if c.config.RedirectURI != "" {
		form.Set("redirect_uri", c.config.RedirectURI)
	}

	endpoint := c.base.ResolveReference(&url.URL{Path: "oauth/token"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var tj tokenJSON
	if err := c.do(req, &tj); err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	if tj.AccessToken == "" {
		return nil, &APIError{Status: http.StatusOK, Message: "response has no access_token"}
	}

	t := &schema.Token{
		UserType:     tj.UserType,
		CompanyID:    tj.CompanyID,
		LocationID:   tj.LocationID,
		AccessToken:  tj.AccessToken,
		RefreshToken: tj.RefreshToken,
		Scope:        tj.Scope,
	}
	if tj.ExpiresIn > 0 {
		t.ExpiresAt = time.Now().Add(time.Duration(tj.ExpiresIn) * time.Second).UTC()
	}
	return t, nil
}

// do sends req and decodes a JSON body into out. Bodies with an "error"
// field are failures even on 200.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(body)}
	}

	var probe struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(probe.Error) > 0 && string(probe.Error) != "null" {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorMessage extracts a readable message from an error body.
func errorMessage(body []byte) string {
	var e struct {
		Error            any    `json:"error"`
		ErrorDescription string `json:"error_description"`
		Message          any    `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		switch {
		case e.ErrorDescription != "":
			return e.ErrorDescription
		case e.Message != nil:
			return fmt.Sprint(e.Message)
		case e.Error != nil:
			return fmt.Sprint(e.Error)
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// Package tickets files follow-up tasks for failures that need a person.
package tickets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Ticket describes one unrecoverable per-location failure.
type Ticket struct {
	LocationID string    `json:"location_id"`
	SheetLink  string    `json:"sheet_link,omitempty"`
	Summary    string    `json:"summary"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filer files tickets. File is called at most once per failure and is
// never retried by callers.
type Filer interface {
	File(ctx context.Context, t Ticket) error
}

// Webhook posts each ticket as JSON to a task-tracker intake URL.
type Webhook struct {
	URL    string
	Client *http.Client
}

// NewWebhook creates a Webhook with a bounded request timeout.
func NewWebhook(url string) *Webhook {
	return &Webhook{URL: url, Client: &http.Client{Timeout: 30 * time.Second}}
}

// File implements Filer.
func (w *Webhook) File(ctx context.Context, t Ticket) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode ticket: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build ticket request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to file ticket for %s: %w", t.LocationID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ticket webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// Log writes tickets to the log instead of a tracker.
type Log struct {
	Logger zerolog.Logger
}

// File implements Filer.
func (l Log) File(ctx context.Context, t Ticket) error {
	l.Logger.Warn().
		Str("location_id", t.LocationID).
		Str("link", t.SheetLink).
		Str("detail", t.Detail).
		Msg("ticket: " + t.Summary)
	return nil
}

// New returns a Webhook filer for url, or a Log filer when url is empty.
func New(url string, logger zerolog.Logger) Filer {
	if url == "" {
		return Log{Logger: logger}
	}
	return NewWebhook(url)
}

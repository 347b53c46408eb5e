package gsheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/rgm-labs/leadsync/internal/gateway"
)

func TestParseLink(t *testing.T) {
	tests := []struct {
		link    string
		want    string
		wantErr bool
	}{
		{"https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0", "1AbC-d_9", false},
		{"https://docs.google.com/spreadsheets/d/1AbC-d_9", "1AbC-d_9", false},
		{"  1AbC-d_9 ", "1AbC-d_9", false},
		{"https://example.com/not/a/sheet", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			got, err := ParseLink(tt.link)
			if tt.wantErr {
				assert.ErrorIs(t, err, gateway.ErrInvalidLink)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "'Leads'", quote("Leads"))
	assert.Equal(t, "'Bob''s leads'", quote("Bob's leads"))
}

type fakeSheets struct {
	status    int
	batchBody map[string]any
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": f.status, "message": "scripted failure"},
		})
		return
	}

	switch {
	case strings.HasSuffix(r.URL.Path, ":batchUpdate"):
		_ = json.NewDecoder(r.Body).Decode(&f.batchBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"totalUpdatedCells": 2})
	case strings.Contains(r.URL.Path, "/values/"):
		_ = json.NewEncoder(w).Encode(map[string]any{
			"range":  "'Leads'!A1:B2",
			"values": [][]any{{"Phone", "Email"}, {"+19107339541", "a@x.com"}},
		})
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sheets": []any{map[string]any{"properties": map[string]any{"title": "Leads"}}},
		})
	}
}

func newTestBackend(t *testing.T, h http.Handler) *Backend {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	b, err := New(context.Background(), option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	return b
}

func TestOpenAndWrite(t *testing.T) {
	fake := &fakeSheets{}
	b := newTestBackend(t, fake)
	ctx := context.Background()

	s, err := b.Open(ctx, "https://docs.google.com/spreadsheets/d/sheet123/edit")
	require.NoError(t, err)
	assert.Equal(t, "sheet123", s.ID)
	assert.Equal(t, "Leads", s.Title)
	assert.Equal(t, [][]string{{"Phone", "Email"}, {"+19107339541", "a@x.com"}}, s.Values)

	err = b.BatchWrite(ctx, s, []gateway.ValueRange{{Range: "C2:C2", Values: [][]string{{"c1"}}}})
	require.NoError(t, err)

	assert.Equal(t, "RAW", fake.batchBody["valueInputOption"])
	data := fake.batchBody["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "'Leads'!C2:C2", data[0].(map[string]any)["range"])
}

func TestErrorsAreClassified(t *testing.T) {
	tests := []struct {
		status int
		want   gateway.Class
	}{
		{http.StatusTooManyRequests, gateway.ClassRateLimited},
		{http.StatusForbidden, gateway.ClassPermissionDenied},
		{http.StatusNotFound, gateway.ClassOther},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			b := newTestBackend(t, &fakeSheets{status: tt.status})
			_, err := b.Open(context.Background(), "sheet123")
			require.Error(t, err)
			assert.Equal(t, tt.want, gateway.Classify(err))
		})
	}
}

// Package gsheets serves lead sheets from Google Sheets.
package gsheets

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/rgm-labs/leadsync/internal/gateway"
)

var (
	linkPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)
	idPattern   = regexp.MustCompile(`^[a-zA-Z0-9-_]+$`)
)

// ParseLink extracts the spreadsheet id from a sheet URL. A bare id is
// returned unchanged.
func ParseLink(link string) (string, error) {
	link = strings.TrimSpace(link)
	if m := linkPattern.FindStringSubmatch(link); m != nil {
		return m[1], nil
	}
	if idPattern.MatchString(link) {
		return link, nil
	}
	return "", fmt.Errorf("%w: %q", gateway.ErrInvalidLink, link)
}

// Backend implements gateway.Backend with the Sheets v4 API.
type Backend struct {
	srv *sheets.Service
}

// New creates a Backend. Callers supply credentials through opts.
func New(ctx context.Context, opts ...option.ClientOption) (*Backend, error) {
	opts = append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}, opts...)
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &Backend{srv: srv}, nil
}

// NewFromCredentials creates a Backend authenticated as a service account.
func NewFromCredentials(ctx context.Context, credentialsJSON []byte) (*Backend, error) {
	return New(ctx, option.WithCredentialsJSON(credentialsJSON))
}

// Open reads all values of the first worksheet.
func (b *Backend) Open(ctx context.Context, link string) (*gateway.Sheet, error) {
	id, err := ParseLink(link)
	if err != nil {
		return nil, err
	}

	ss, err := b.srv.Spreadsheets.Get(id).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, translate(err)
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return nil, &gateway.APIError{Code: 404, Message: "spreadsheet has no worksheets"}
	}
	title := ss.Sheets[0].Properties.Title

	resp, err := b.srv.Spreadsheets.Values.Get(id, quote(title)).Context(ctx).Do()
	if err != nil {
		return nil, translate(err)
	}

	values := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		values[i] = make([]string, len(row))
		for j, v := range row {
			values[i][j] = fmt.Sprint(v)
		}
	}

	return &gateway.Sheet{Link: link, ID: id, Title: title, Values: values}, nil
}

// BatchWrite sends all ranges in one values:batchUpdate request.
func (b *Backend) BatchWrite(ctx context.Context, sheet *gateway.Sheet, data []gateway.ValueRange) error {
	id := sheet.ID
	if id == "" {
		var err error
		if id, err = ParseLink(sheet.Link); err != nil {
			return err
		}
	}

	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: "RAW"}
	for _, vr := range data {
		rows := make([][]interface{}, len(vr.Values))
		for i, row := range vr.Values {
			rows[i] = make([]interface{}, len(row))
			for j, v := range row {
				rows[i][j] = v
			}
		}
		rng := vr.Range
		if sheet.Title != "" {
			rng = quote(sheet.Title) + "!" + rng
		}
		req.Data = append(req.Data, &sheets.ValueRange{Range: rng, Values: rows})
	}

	if _, err := b.srv.Spreadsheets.Values.BatchUpdate(id, req).Context(ctx).Do(); err != nil {
		return translate(err)
	}
	return nil
}

// quote returns title as an A1 sheet reference.
func quote(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func translate(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &gateway.APIError{Code: gerr.Code, Message: gerr.Message, Err: err}
	}
	return err
}

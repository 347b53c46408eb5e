// Package gatewaytest provides an in-memory gateway.Backend for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/rgm-labs/leadsync/internal/gateway"
)

// Backend is an in-memory spreadsheet service with scripted failures.
type Backend struct {
	mu        sync.Mutex
	sheets    map[string][][]string
	openErrs  map[string][]error
	writeErrs map[string][]error
	opens     map[string]int
	writes    map[string]int
}

// New creates an empty Backend.
func New() *Backend {
	return &Backend{
		sheets:    make(map[string][][]string),
		openErrs:  make(map[string][]error),
		writeErrs: make(map[string][]error),
		opens:     make(map[string]int),
		writes:    make(map[string]int),
	}
}

// AddSheet registers a sheet reachable at link.
func (b *Backend) AddSheet(link string, values [][]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sheets[link] = copyValues(values)
}

// FailOpen makes the next len(errs) Open calls for link fail with errs in order.
func (b *Backend) FailOpen(link string, errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openErrs[link] = append(b.openErrs[link], errs...)
}

// FailWrite makes the next len(errs) BatchWrite calls for link fail with errs in order.
func (b *Backend) FailWrite(link string, errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeErrs[link] = append(b.writeErrs[link], errs...)
}

// Opens returns how many times Open was called for link.
func (b *Backend) Opens(link string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens[link]
}

// Writes returns how many times BatchWrite was called for link.
func (b *Backend) Writes(link string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes[link]
}

// TotalCalls returns the number of Open and BatchWrite calls across all links.
func (b *Backend) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.opens {
		n += c
	}
	for _, c := range b.writes {
		n += c
	}
	return n
}

// Values returns a copy of the current contents of the sheet at link.
func (b *Backend) Values(link string) [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyValues(b.sheets[link])
}

// Open implements gateway.Backend.
func (b *Backend) Open(ctx context.Context, link string) (*gateway.Sheet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.opens[link]++
	if err := pop(b.openErrs, link); err != nil {
		return nil, err
	}

	values, ok := b.sheets[link]
	if !ok {
		return nil, &gateway.APIError{Code: http.StatusNotFound, Message: "spreadsheet not found"}
	}
	return &gateway.Sheet{Link: link, ID: link, Title: "Sheet1", Values: copyValues(values)}, nil
}

// BatchWrite implements gateway.Backend. Ranges are applied from their top-left cell.
func (b *Backend) BatchWrite(ctx context.Context, sheet *gateway.Sheet, data []gateway.ValueRange) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.writes[sheet.Link]++
	if err := pop(b.writeErrs, sheet.Link); err != nil {
		return err
	}

	values := b.sheets[sheet.Link]
	for _, vr := range data {
		start := strings.SplitN(vr.Range, ":", 2)[0]
		col, row, err := excelize.CellNameToCoordinates(start)
		if err != nil {
			return &gateway.APIError{Code: http.StatusBadRequest, Message: fmt.Sprintf("bad range %q", vr.Range)}
		}
		for i, cells := range vr.Values {
			for j, v := range cells {
				values = setCell(values, row-1+i, col-1+j, v)
			}
		}
	}
	b.sheets[sheet.Link] = values
	return nil
}

func setCell(values [][]string, r, c int, v string) [][]string {
	for len(values) <= r {
		values = append(values, nil)
	}
	for len(values[r]) <= c {
		values[r] = append(values[r], "")
	}
	values[r][c] = v
	return values
}

func pop(queue map[string][]error, link string) error {
	errs := queue[link]
	if len(errs) == 0 {
		return nil
	}
	queue[link] = errs[1:]
	return errs[0]
}

func copyValues(values [][]string) [][]string {
	if values == nil {
		return nil
	}
	out := make([][]string, len(values))
	for i, row := range values {
		out[i] = append([]string(nil), row...)
	}
	return out
}

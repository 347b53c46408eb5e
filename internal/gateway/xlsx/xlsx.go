// Package xlsx serves lead sheets from local .xlsx workbooks.
//
// A link is either a filesystem path or a file:// URL. Relative paths are
// resolved against Backend.Root. Only the first worksheet is read and written.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rgm-labs/leadsync/internal/gateway"
)

// Backend implements gateway.Backend on top of excelize.
type Backend struct {
	// Root is the directory relative links are resolved against.
	Root string
}

// New creates a Backend rooted at root.
func New(root string) *Backend {
	return &Backend{Root: root}
}

// Resolve returns the workbook path for link.
func (b *Backend) Resolve(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", gateway.ErrInvalidLink
	}
	if strings.HasPrefix(link, "file://") {
		u, err := url.Parse(link)
		if err != nil {
			return "", fmt.Errorf("%w: %v", gateway.ErrInvalidLink, err)
		}
		link = u.Path
	}
	if !filepath.IsAbs(link) && b.Root != "" {
		link = filepath.Join(b.Root, link)
	}
	return filepath.Clean(link), nil
}

// Open reads every row of the first worksheet.
func (b *Backend) Open(ctx context.Context, link string) (*gateway.Sheet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := b.Resolve(link)
	if err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, translate(err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &gateway.APIError{Code: http.StatusNotFound, Message: "workbook has no worksheets"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return &gateway.Sheet{Link: link, ID: path, Title: sheets[0], Values: rows}, nil
}

// BatchWrite sets every cell of data and replaces the workbook atomically.
func (b *Backend) BatchWrite(ctx context.Context, sheet *gateway.Sheet, data []gateway.ValueRange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := b.Resolve(sheet.Link)
	if err != nil {
		return err
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return translate(err)
	}
	defer f.Close()

	title := sheet.Title
	if title == "" {
		title = f.GetSheetName(0)
	}

	for _, vr := range data {
		start := strings.SplitN(vr.Range, ":", 2)[0]
		col, row, err := excelize.CellNameToCoordinates(start)
		if err != nil {
			return &gateway.APIError{Code: http.StatusBadRequest, Message: fmt.Sprintf("invalid range %q", vr.Range), Err: err}
		}
		for i, cells := range vr.Values {
			for j, v := range cells {
				cell, err := excelize.CoordinatesToCellName(col+j, row+i)
				if err != nil {
					return &gateway.APIError{Code: http.StatusBadRequest, Message: fmt.Sprintf("range %q out of bounds", vr.Range), Err: err}
				}
				if err := f.SetCellValue(title, cell, v); err != nil {
					return fmt.Errorf("failed to set %s!%s: %w", title, cell, err)
				}
			}
		}
	}

	return save(f, path)
}

// save writes to a temp file in the same directory and renames it over path.
func save(f *excelize.File, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".leadsync-*.xlsx")
	if err != nil {
		return translate(err)
	}
	tmpPath := tmp.Name()

	if err := f.Write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close workbook: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return translate(err)
	}
	return nil
}

// translate maps filesystem failures onto gateway status codes.
func translate(err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return &gateway.APIError{Code: http.StatusForbidden, Err: err}
	case errors.Is(err, fs.ErrNotExist):
		return &gateway.APIError{Code: http.StatusNotFound, Err: err}
	}
	return err
}

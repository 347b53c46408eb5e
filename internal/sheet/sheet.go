// Package sheet turns raw lead data sheet values into typed rows.
//
// The header row is resolved once per sheet into column indices; rows are then
// read positionally. Header names are compared after lower-casing and trimming
// surrounding whitespace, so "Contact ID " and "contact id" are the same column.
package sheet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Logical column names every lead data sheet must carry.
const (
	ColPhone      = "phone"
	ColEmail      = "email"
	ColFirstName  = "first name"
	ColLastName   = "last name"
	ColContactID  = "contact id"
	ColLocationID = "location id"
)

// RequiredColumns lists the logical columns in the order they are reported when missing.
var RequiredColumns = []string{ColPhone, ColEmail, ColFirstName, ColLastName, ColContactID, ColLocationID}

// ErrMissingColumns is returned (wrapped in *MissingColumnsError) when the
// header row lacks a required column.
var ErrMissingColumns = errors.New("missing required columns")

// MissingColumnsError lists the required columns absent from a header row.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingColumns, strings.Join(e.Missing, ", "))
}

func (e *MissingColumnsError) Unwrap() error {
	return ErrMissingColumns
}

// NormalizeHeader returns the comparison form of a header cell.
func NormalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IndexHeaders maps normalized header names to their zero-based column index.
// When a name repeats, the leftmost column wins.
func IndexHeaders(cells []string) map[string]int {
	idx := make(map[string]int, len(cells))
	for i, c := range cells {
		name := NormalizeHeader(c)
		if name == "" {
			continue
		}
		if _, seen := idx[name]; !seen {
			idx[name] = i
		}
	}
	return idx
}

// Cell returns row[i], or "" when the row is shorter than i+1.
// Spreadsheet APIs drop trailing empty cells, so short rows are normal.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// Header holds the resolved column index of each logical field.
type Header struct {
	Phone      int
	Email      int
	FirstName  int
	LastName   int
	ContactID  int
	LocationID int
}

// ParseHeader resolves the required columns from a header row.
func ParseHeader(cells []string) (Header, error) {
	idx := IndexHeaders(cells)

	var missing []string
	lookup := func(name string) int {
		i, ok := idx[name]
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return i
	}

	h := Header{
		Phone:      lookup(ColPhone),
		Email:      lookup(ColEmail),
		FirstName:  lookup(ColFirstName),
		LastName:   lookup(ColLastName),
		ContactID:  lookup(ColContactID),
		LocationID: lookup(ColLocationID),
	}
	if len(missing) > 0 {
		return Header{}, &MissingColumnsError{Missing: missing}
	}
	return h, nil
}

// Row is one data row of a lead data sheet.
type Row struct {
	// Number is the 1-based sheet row number (the header is row 1).
	Number int

	Phone      string
	Email      string
	FirstName  string
	LastName   string
	ContactID  string
	LocationID string
}

// Resolved reports whether an earlier run already tagged the row with both ids.
func (r Row) Resolved() bool {
	return strings.TrimSpace(r.ContactID) != "" && strings.TrimSpace(r.LocationID) != ""
}

// Row builds a typed row from raw cells. number is the 1-based sheet row.
func (h Header) Row(number int, cells []string) Row {
	return Row{
		Number:     number,
		Phone:      Cell(cells, h.Phone),
		Email:      Cell(cells, h.Email),
		FirstName:  Cell(cells, h.FirstName),
		LastName:   Cell(cells, h.LastName),
		ContactID:  Cell(cells, h.ContactID),
		LocationID: Cell(cells, h.LocationID),
	}
}

// Parse validates the header of values and returns the typed data rows.
// values[0] is the header row. An empty sheet has no header and is invalid.
func Parse(values [][]string) (Header, []Row, error) {
	if len(values) == 0 {
		return Header{}, nil, &MissingColumnsError{Missing: append([]string(nil), RequiredColumns...)}
	}

	h, err := ParseHeader(values[0])
	if err != nil {
		return Header{}, nil, err
	}

	rows := make([]Row, 0, len(values)-1)
	for i, cells := range values[1:] {
		rows = append(rows, h.Row(i+2, cells))
	}
	return h, rows, nil
}

// ColumnRange returns the A1 range covering column col (zero-based) from
// firstRow to lastRow inclusive, e.g. ColumnRange(3, 2, 10) == "D2:D10".
func ColumnRange(col, firstRow, lastRow int) (string, error) {
	if firstRow < 1 || lastRow < firstRow {
		return "", fmt.Errorf("invalid row span %d..%d", firstRow, lastRow)
	}
	name, err := excelize.ColumnNumberToName(col + 1)
	if err != nil {
		return "", fmt.Errorf("invalid column %d: %w", col, err)
	}
	return fmt.Sprintf("%s%d:%s%d", name, firstRow, name, lastRow), nil
}

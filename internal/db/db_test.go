package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rgm-labs/leadsync/internal/schema"
)

// setupTestDB opens a fresh database with schema in a temp directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

func TestOpen_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "leadsync.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() failed: %v", err)
	}
}

func TestOpen_PragmasOnEveryConnection(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Hold two connections at once so the pool has to open a second one.
	first, err := db.conn.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() failed: %v", err)
	}
	defer first.Close()
	second, err := db.conn.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() failed: %v", err)
	}
	defer second.Close()

	for i, c := range []*sql.Conn{first, second} {
		var foreignKeys, busyTimeout int
		if err := c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
			t.Fatalf("conn %d: PRAGMA foreign_keys failed: %v", i, err)
		}
		if err := c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
			t.Fatalf("conn %d: PRAGMA busy_timeout failed: %v", i, err)
		}
		if foreignKeys != 1 {
			t.Errorf("conn %d: foreign_keys = %d, want 1", i, foreignKeys)
		}
		if busyTimeout != 5000 {
			t.Errorf("conn %d: busy_timeout = %d, want 5000", i, busyTimeout)
		}
	}
}

func TestInitSchema_CreatesTables(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range []string{"locations", "contacts", "tokens", "sync_runs"} {
		var count int
		err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	if err := db.InitSchema(); err != nil {
		t.Errorf("second InitSchema() failed: %v", err)
	}
}

func TestClose_Twice(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("first Close() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}

func TestUpsertContacts_InsertAndUpdate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	contacts := []*schema.Contact{
		{ID: "c1", LocationID: "L1", Phone: "+19107339541", FirstName: "John", LastName: "Smith"},
		{ID: "c2", LocationID: "L1", Email: "Jane@Example.com"},
	}
	if err := db.UpsertContacts(ctx, contacts); err != nil {
		t.Fatalf("UpsertContacts() failed: %v", err)
	}

	// Re-ingest with a changed name; must update, not duplicate.
	contacts[0].FirstName = "Johnny"
	if err := db.UpsertContacts(ctx, contacts); err != nil {
		t.Fatalf("second UpsertContacts() failed: %v", err)
	}

	count, err := db.GetContactCount(ctx, "")
	if err != nil {
		t.Fatalf("GetContactCount() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("contact count = %d, want 2", count)
	}

	got, err := db.GetContact(ctx, "c1")
	if err != nil {
		t.Fatalf("GetContact() failed: %v", err)
	}
	if got.FirstName != "Johnny" {
		t.Errorf("FirstName = %q, want %q", got.FirstName, "Johnny")
	}

	jane, err := db.GetContact(ctx, "c2")
	if err != nil {
		t.Fatalf("GetContact() failed: %v", err)
	}
	if jane.Email != "jane@example.com" {
		t.Errorf("Email = %q, want lower-cased", jane.Email)
	}
}

func TestUpsertContacts_RejectsInvalidBatch(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.UpsertContacts(ctx, []*schema.Contact{
		{ID: "c1", LocationID: "L1"},
		{ID: "c2"},
	})
	if err == nil {
		t.Fatal("UpsertContacts() expected error for contact without location")
	}

	count, _ := db.GetContactCount(ctx, "")
	if count != 0 {
		t.Errorf("contact count = %d, want 0 after rejected batch", count)
	}
}

func TestGetContact_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetContact(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetContact() error = %v, want sql.ErrNoRows", err)
	}
}

func TestFindContacts_ScopedToLocation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.UpsertContacts(ctx, []*schema.Contact{
		{ID: "c1", LocationID: "L1", Phone: "+19107339541", Email: "john@example.com", FirstName: "John", LastName: "Smith"},
		{ID: "c2", LocationID: "L2", Phone: "+19107339541", Email: "john@example.com", FirstName: "John", LastName: "Smith"},
	}); err != nil {
		t.Fatalf("UpsertContacts() failed: %v", err)
	}

	tests := []struct {
		name string
		find func() ([]*schema.Contact, error)
		want []string
	}{
		{
			name: "phone in L1",
			find: func() ([]*schema.Contact, error) { return db.FindContactsByPhone(ctx, "L1", "+19107339541") },
			want: []string{"c1"},
		},
		{
			name: "phone in L3",
			find: func() ([]*schema.Contact, error) { return db.FindContactsByPhone(ctx, "L3", "+19107339541") },
			want: nil,
		},
		{
			name: "empty phone",
			find: func() ([]*schema.Contact, error) { return db.FindContactsByPhone(ctx, "L1", "") },
			want: nil,
		},
		{
			name: "email ignores case",
			find: func() ([]*schema.Contact, error) { return db.FindContactsByEmail(ctx, "L2", " JOHN@example.COM ") },
			want: []string{"c2"},
		},
		{
			name: "name ignores case and trailing space",
			find: func() ([]*schema.Contact, error) { return db.FindContactsByName(ctx, "L1", "john  ", "SMITH") },
			want: []string{"c1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.find()
			if err != nil {
				t.Fatalf("find failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d contacts, want %d", len(got), len(tt.want))
			}
			for i, c := range got {
				if c.ID != tt.want[i] {
					t.Errorf("contact[%d] = %s, want %s", i, c.ID, tt.want[i])
				}
			}
		})
	}
}

func TestUpsertLocations_LinkChangeResetsStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	locs := []*schema.Location{
		{ID: "L1", LeadSheetLink: "sheet-a"},
		{ID: "L2", LeadSheetLink: "sheet-b"},
	}
	if _, err := db.UpsertLocations(ctx, locs); err != nil {
		t.Fatalf("UpsertLocations() failed: %v", err)
	}
	for _, id := range []string{"L1", "L2"} {
		if err := db.SetLocationStatus(ctx, id, schema.StatusDone, ""); err != nil {
			t.Fatalf("SetLocationStatus(%s) failed: %v", id, err)
		}
	}

	// L1 keeps its link, L2 moves to a new sheet.
	if _, err := db.UpsertLocations(ctx, []*schema.Location{
		{ID: "L1", LeadSheetLink: "sheet-a"},
		{ID: "L2", LeadSheetLink: "sheet-c"},
	}); err != nil {
		t.Fatalf("second UpsertLocations() failed: %v", err)
	}

	l1, err := db.GetLocation(ctx, "L1")
	if err != nil {
		t.Fatalf("GetLocation(L1) failed: %v", err)
	}
	if l1.Status != schema.StatusDone {
		t.Errorf("L1 status = %s, want done", l1.Status)
	}

	l2, err := db.GetLocation(ctx, "L2")
	if err != nil {
		t.Fatalf("GetLocation(L2) failed: %v", err)
	}
	if l2.Status != schema.StatusNotStarted {
		t.Errorf("L2 status = %s, want not_started", l2.Status)
	}
	if l2.LeadSheetLink != "sheet-c" {
		t.Errorf("L2 link = %q, want sheet-c", l2.LeadSheetLink)
	}

	all, err := db.ListLocations(ctx)
	if err != nil {
		t.Fatalf("ListLocations() failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListLocations() returned %d, want 2", len(all))
	}
}

func TestSetLocationStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.UpsertLocations(ctx, []*schema.Location{{ID: "L1", LeadSheetLink: "sheet"}}); err != nil {
		t.Fatalf("UpsertLocations() failed: %v", err)
	}

	if err := db.SetLocationStatus(ctx, "L1", schema.StatusError, "missing column contact id"); err != nil {
		t.Fatalf("SetLocationStatus() failed: %v", err)
	}
	l, _ := db.GetLocation(ctx, "L1")
	if l.Status != schema.StatusError || l.LastError == "" || l.Attempts != 1 {
		t.Errorf("after error: status=%s lastErr=%q attempts=%d", l.Status, l.LastError, l.Attempts)
	}

	if err := db.SetLocationStatus(ctx, "L1", schema.StatusDone, "ignored"); err != nil {
		t.Fatalf("SetLocationStatus() failed: %v", err)
	}
	l, _ = db.GetLocation(ctx, "L1")
	if l.Status != schema.StatusDone || l.LastError != "" || l.Attempts != 2 {
		t.Errorf("after done: status=%s lastErr=%q attempts=%d", l.Status, l.LastError, l.Attempts)
	}

	if err := db.SetLocationStatus(ctx, "nope", schema.StatusDone, ""); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("SetLocationStatus(unknown) error = %v, want sql.ErrNoRows", err)
	}
	if err := db.SetLocationStatus(ctx, "L1", "bogus", ""); err == nil {
		t.Error("SetLocationStatus(bogus) expected error")
	}
}

func TestResetLocations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.UpsertLocations(ctx, []*schema.Location{
		{ID: "L1", LeadSheetLink: "a"},
		{ID: "L2", LeadSheetLink: "b"},
		{ID: "L3", LeadSheetLink: "c"},
	}); err != nil {
		t.Fatalf("UpsertLocations() failed: %v", err)
	}
	for _, id := range []string{"L1", "L2", "L3"} {
		_ = db.SetLocationStatus(ctx, id, schema.StatusDone, "")
	}

	n, err := db.ResetLocations(ctx, "L1", "L3")
	if err != nil {
		t.Fatalf("ResetLocations() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("ResetLocations() = %d, want 2", n)
	}

	counts, err := db.CountLocationsByStatus(ctx)
	if err != nil {
		t.Fatalf("CountLocationsByStatus() failed: %v", err)
	}
	if counts[schema.StatusNotStarted] != 2 || counts[schema.StatusDone] != 1 {
		t.Errorf("counts = %v, want 2 not_started and 1 done", counts)
	}

	n, err = db.ResetLocations(ctx)
	if err != nil {
		t.Fatalf("ResetLocations(all) failed: %v", err)
	}
	if n != 3 {
		t.Errorf("ResetLocations(all) = %d, want 3", n)
	}
}

func TestUpsertToken_KeepsRefreshTokenWhenOmitted(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	expires := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	tok := &schema.Token{
		UserType:     "Location",
		CompanyID:    "co1",
		LocationID:   "L1",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    expires,
	}
	if err := db.UpsertToken(ctx, tok); err != nil {
		t.Fatalf("UpsertToken() failed: %v", err)
	}

	if err := db.UpsertToken(ctx, &schema.Token{
		UserType:    "Location",
		CompanyID:   "co1",
		LocationID:  "L1",
		AccessToken: "access-2",
	}); err != nil {
		t.Fatalf("second UpsertToken() failed: %v", err)
	}

	tokens, err := db.ListTokens(ctx)
	if err != nil {
		t.Fatalf("ListTokens() failed: %v", err)
	}
	if len(tokens) != 1 {
		t.Fatalf("ListTokens() returned %d, want 1", len(tokens))
	}
	if tokens[0].AccessToken != "access-2" {
		t.Errorf("AccessToken = %q, want access-2", tokens[0].AccessToken)
	}
	if tokens[0].RefreshToken != "refresh-1" {
		t.Errorf("RefreshToken = %q, want refresh-1 preserved", tokens[0].RefreshToken)
	}

	got, err := db.GetTokenForLocation(ctx, "L1")
	if err != nil {
		t.Fatalf("GetTokenForLocation() failed: %v", err)
	}
	if got.AccessToken != "access-2" {
		t.Errorf("GetTokenForLocation() access = %q", got.AccessToken)
	}

	if _, err := db.GetTokenForLocation(ctx, "L9"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetTokenForLocation(L9) error = %v, want sql.ErrNoRows", err)
	}
}

func TestRuns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b"} {
		r := RunRecord{
			RunID:      id,
			StartedAt:  start.Add(time.Duration(i) * time.Hour),
			FinishedAt: start.Add(time.Duration(i)*time.Hour + time.Minute),
			Done:       i + 1,
		}
		if err := db.InsertRun(ctx, r); err != nil {
			t.Fatalf("InsertRun(%s) failed: %v", id, err)
		}
	}

	if err := db.InsertRun(ctx, RunRecord{RunID: "run-a", StartedAt: start, FinishedAt: start}); err == nil {
		t.Error("InsertRun() expected error for duplicate run id")
	}

	runs, err := db.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-b" {
		t.Errorf("ListRuns(1) = %+v, want latest run-b", runs)
	}
}

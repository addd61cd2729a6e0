package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/schemalens/schemalens/pkg/metadata"
)

func openTestDB(t *testing.T) *Provider {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	stmts := []string{
		`CREATE TABLE supplier (id TEXT PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE purchase_order (id TEXT PRIMARY KEY, supplier_id TEXT, total REAL)`,
		`INSERT INTO supplier VALUES ('S1', 'Acme'), ('S2', 'Globex')`,
		`INSERT INTO purchase_order VALUES ('P1', 'S1', 99.5), ('P2', 'S2', 12.0), ('P3', 'S1', 3.25)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close fixture db: %v", err)
	}

	provider, err := NewProvider(path)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	t.Cleanup(func() { provider.Close() })
	return provider
}

func TestListEntities(t *testing.T) {
	provider := openTestDB(t)

	entities, err := provider.ListEntities(context.Background())
	if err != nil {
		t.Fatalf("ListEntities: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(entities))
	}
	if entities[0].Name != "purchase_order" || entities[1].Name != "supplier" {
		t.Fatalf("unexpected entity order: %q, %q", entities[0].Name, entities[1].Name)
	}

	byName := make(map[string]metadata.Column)
	for _, col := range entities[0].Columns {
		byName[col.Name] = col
	}
	if !byName["id"].IsPrimaryKey {
		t.Error("purchase_order.id should be a primary key")
	}
	if byName["supplier_id"].IsPrimaryKey {
		t.Error("purchase_order.supplier_id should not be a primary key")
	}
	if byName["total"].DataType != "real" {
		t.Errorf("expected lowercased data type, got %q", byName["total"].DataType)
	}
}

func TestSampleRecords(t *testing.T) {
	provider := openTestDB(t)

	records, err := provider.SampleRecords(context.Background(), "purchase_order", 2)
	if err != nil {
		t.Fatalf("SampleRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if got := records[0]["id"]; got != "P1" {
		t.Errorf("expected first record id P1, got %v", got)
	}
	if _, ok := records[0]["supplier_id"]; !ok {
		t.Error("expected supplier_id column in sampled record")
	}

	none, err := provider.SampleRecords(context.Background(), "purchase_order", 0)
	if err != nil {
		t.Fatalf("SampleRecords with zero limit: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no records for zero limit, got %d", len(none))
	}
}

func TestPing(t *testing.T) {
	provider := openTestDB(t)

	if err := provider.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/schemalens/schemalens/pkg/metadata"
)

// Provider introspects a SQLite database file through sqlite_master and the
// table_info pragma.
type Provider struct {
	db *sql.DB
}

var _ metadata.Provider = (*Provider)(nil)

func NewProvider(path string) (*Provider, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", metadata.ErrUnavailable, err)
	}
	return &Provider{db: db}, nil
}

func (p *Provider) ListEntities(ctx context.Context) ([]metadata.Entity, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", metadata.ErrUnavailable, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", metadata.ErrUnavailable, err)
	}

	entities := make([]metadata.Entity, 0, len(names))
	for _, name := range names {
		columns, err := p.tableColumns(ctx, name)
		if err != nil {
			return nil, err
		}
		entities = append(entities, metadata.Entity{
			Name:    name,
			Columns: columns,
		})
	}

	return entities, nil
}

func (p *Provider) tableColumns(ctx context.Context, table string) ([]metadata.Column, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", metadata.ErrUnavailable, err)
	}
	defer rows.Close()

	var columns []metadata.Column
	for rows.Next() {
		var (
			cid       int
			name      string
			dataType  string
			notNull   int
			defaultVl sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultVl, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan table_info of %s: %w", table, err)
		}
		columns = append(columns, metadata.Column{
			Name:         name,
			DataType:     strings.ToLower(dataType),
			IsPrimaryKey: pk > 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", metadata.ErrUnavailable, err)
	}

	return columns, nil
}

func (p *Provider) SampleRecords(ctx context.Context, entity string, limit int) ([]metadata.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx,
		fmt.Sprintf("SELECT * FROM %s ORDER BY rowid LIMIT %d", quoteIdent(entity), limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", metadata.ErrUnavailable, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", entity, err)
	}

	var records []metadata.Record
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("failed to scan sample row of %s: %w", entity, err)
		}
		record := make(metadata.Record, len(columns))
		for i, col := range columns {
			record[col] = values[i]
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", metadata.ErrUnavailable, err)
	}

	return records, nil
}

func (p *Provider) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", metadata.ErrUnavailable, err)
	}
	return nil
}

func (p *Provider) Close() error {
	return p.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

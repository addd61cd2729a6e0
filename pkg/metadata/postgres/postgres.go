package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schemalens/schemalens/pkg/metadata"
)

// Provider introspects a live PostgreSQL schema through information_schema.
type Provider struct {
	pool   *pgxpool.Pool
	schema string
}

var _ metadata.Provider = (*Provider)(nil)

type ProviderParams struct {
	ConnString string
	// Schema restricts introspection to one namespace. Defaults to "public".
	Schema string
}

func NewProvider(ctx context.Context, params ProviderParams) (*Provider, error) {
	schema := params.Schema
	if schema == "" {
		schema = "public"
	}

	pool, err := pgxpool.New(ctx, params.ConnString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", metadata.ErrUnavailable, err)
	}

	return &Provider{
		pool:   pool,
		schema: schema,
	}, nil
}

const listEntitiesSQL = `
SELECT c.table_name, c.column_name, c.data_type, pk.column_name IS NOT NULL
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
LEFT JOIN (
    SELECT kcu.table_name, kcu.column_name
    FROM information_schema.table_constraints tc
    JOIN information_schema.key_column_usage kcu
      ON kcu.constraint_name = tc.constraint_name
     AND kcu.table_schema = tc.table_schema
    WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1
) pk ON pk.table_name = c.table_name AND pk.column_name = c.column_name
WHERE c.table_schema = $1 AND t.table_type = 'BASE TABLE'
ORDER BY c.table_name, c.ordinal_position;
`

func (p *Provider) ListEntities(ctx context.Context) ([]metadata.Entity, error) {
	rows, err := p.pool.Query(ctx, listEntitiesSQL, p.schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", metadata.ErrUnavailable, err)
	}
	defer rows.Close()

	var entities []metadata.Entity
	for rows.Next() {
		var tableName string
		var col metadata.Column
		if err := rows.Scan(&tableName, &col.Name, &col.DataType, &col.IsPrimaryKey); err != nil {
			return nil, fmt.Errorf("failed to scan column row: %w", err)
		}
		if len(entities) == 0 || entities[len(entities)-1].Name != tableName {
			entities = append(entities, metadata.Entity{Name: tableName})
		}
		last := &entities[len(entities)-1]
		last.Columns = append(last.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", metadata.ErrUnavailable, err)
	}

	return entities, nil
}

func (p *Provider) SampleRecords(ctx context.Context, entity string, limit int) ([]metadata.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	// Identifier sanitization because table names cannot be bound parameters.
	table := pgx.Identifier{p.schema, entity}.Sanitize()
	rows, err := p.pool.Query(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY 1 LIMIT %d", table, limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", metadata.ErrUnavailable, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var records []metadata.Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read sample row of %s: %w", entity, err)
		}
		record := make(metadata.Record, len(fields))
		for i, field := range fields {
			record[field.Name] = values[i]
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", metadata.ErrUnavailable, err)
	}

	return records, nil
}

func (p *Provider) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", metadata.ErrUnavailable, err)
	}
	return nil
}

func (p *Provider) Close() error {
	p.pool.Close()
	return nil
}

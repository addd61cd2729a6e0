package metadata

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable indicates the metadata backend cannot be reached. Callers
// treat it as a signal to keep serving the last committed graph.
var ErrUnavailable = errors.New("metadata provider unavailable")

// Column describes a single column of an entity as declared in the source schema.
type Column struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	IsPrimaryKey bool   `json:"is_primary_key"`
}

// Entity describes one entity (table, view, CDS entity) exposed by a source
// schema: its name and its ordered column list.
type Entity struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// PrimaryKeys returns the names of all primary key columns in declaration order.
func (e Entity) PrimaryKeys() []string {
	var keys []string
	for _, col := range e.Columns {
		if col.IsPrimaryKey {
			keys = append(keys, col.Name)
		}
	}
	return keys
}

// Column returns the column with the given name (case-insensitive) if present.
func (e Entity) Column(name string) (Column, bool) {
	for _, col := range e.Columns {
		if strings.EqualFold(col.Name, name) {
			return col, true
		}
	}
	return Column{}, false
}

// Record is one sampled row of an entity, keyed by column name.
type Record map[string]any

// Provider is the single read-only capability interface through which the
// graph engine sees a schema backend. Every backend implements it uniformly;
// consumers never branch on the concrete implementation.
type Provider interface {
	// ListEntities returns all entity definitions of the source schema.
	ListEntities(ctx context.Context) ([]Entity, error)

	// SampleRecords returns up to limit rows of the named entity. The sample
	// order must be stable across calls against an unchanged backend.
	SampleRecords(ctx context.Context, entity string, limit int) ([]Record, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// StaticProvider serves a fixed entity set from memory. It backs tests and
// fixture-driven setups where no live schema backend exists.
type StaticProvider struct {
	Entities []Entity
	Records  map[string][]Record
}

var _ Provider = (*StaticProvider)(nil)

func (p *StaticProvider) ListEntities(ctx context.Context) ([]Entity, error) {
	return p.Entities, nil
}

func (p *StaticProvider) SampleRecords(ctx context.Context, entity string, limit int) ([]Record, error) {
	records := p.Records[entity]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (p *StaticProvider) Ping(ctx context.Context) error {
	return nil
}

func (p *StaticProvider) Close() error {
	return nil
}

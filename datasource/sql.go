package datasource

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/querykit/filterset/query"
	"github.com/rs/zerolog"
)

// SQLCollection runs query specifications against a sqlx database. The
// encoder renders ? placeholders; Rebind translates them for the driver.
type SQLCollection struct {
	db      *sqlx.DB
	encoder *query.SQLEncoder
	model   string
	spec    query.Spec
	log     zerolog.Logger
}

func NewSQL(db *sqlx.DB, encoder *query.SQLEncoder, model string, log zerolog.Logger) *SQLCollection {
	return &SQLCollection{
		db:      db,
		encoder: encoder,
		model:   model,
		log:     log,
	}
}

func (c *SQLCollection) Filtered(spec query.Spec) Collection {
	narrowed := *c
	narrowed.spec = query.Merge(c.spec, spec)
	return &narrowed
}

func (c *SQLCollection) All(ctx context.Context) ([]query.Record, error) {
	sql, args, err := c.encoder.SelectSQL(c.model, c.spec)
	if err != nil {
		return nil, fmt.Errorf("failed to build query for %s: %w", c.model, err)
	}
	sql = c.db.Rebind(sql)

	c.log.Debug().
		Str("model", c.model).
		Str("sql", sql).
		Msg("Executing filtered query")

	rows, err := c.db.QueryxContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.model, err)
	}
	defer rows.Close()

	var records []query.Record
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", c.model, err)
		}
		record := make(query.Record, len(row))
		for column, value := range row {
			record[column] = normalizeValue(value)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", c.model, err)
	}

	return records, nil
}

func (c *SQLCollection) Count(ctx context.Context) (int64, error) {
	sql, args, err := c.encoder.CountSQL(c.model, c.spec)
	if err != nil {
		return 0, fmt.Errorf("failed to build count query for %s: %w", c.model, err)
	}
	sql = c.db.Rebind(sql)

	var count int64
	if err := c.db.GetContext(ctx, &count, sql, args...); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", c.model, err)
	}
	return count, nil
}

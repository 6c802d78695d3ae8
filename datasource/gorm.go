package datasource

import (
	"context"
	"fmt"

	"github.com/jinzhu/gorm"
	"github.com/querykit/filterset/query"
	"github.com/querykit/filterset/schema"
	"github.com/rs/zerolog"
)

// GormCollection translates query specifications into a lazy gorm chain.
// DB exposes the composed chain so callers can keep building on it; the
// collection itself only executes on All or Count.
type GormCollection struct {
	db       *gorm.DB
	registry *schema.Registry
	encoder  *query.SQLEncoder
	model    string
	spec     query.Spec
	log      zerolog.Logger
}

func NewGorm(db *gorm.DB, registry *schema.Registry, encoder *query.SQLEncoder, model string, log zerolog.Logger) *GormCollection {
	return &GormCollection{
		db:       db,
		registry: registry,
		encoder:  encoder,
		model:    model,
		log:      log,
	}
}

func (c *GormCollection) Filtered(spec query.Spec) Collection {
	narrowed := *c
	narrowed.spec = query.Merge(c.spec, spec)
	return &narrowed
}

// DB returns the gorm chain for the accumulated specification without
// executing it.
func (c *GormCollection) DB() (*gorm.DB, error) {
	model, err := c.registry.Get(c.model)
	if err != nil {
		return nil, err
	}
	clause, err := c.encoder.Encode(c.model, c.spec)
	if err != nil {
		return nil, fmt.Errorf("failed to build query for %s: %w", c.model, err)
	}

	db := c.db.Table(model.Table)
	selectExpr := model.Table + ".*"
	if c.spec.Distinct {
		selectExpr = "DISTINCT " + selectExpr
	}
	db = db.Select(selectExpr)
	for _, join := range clause.Joins {
		db = db.Joins(join)
	}
	if clause.Where != "" {
		db = db.Where(clause.Where, clause.Args...)
	}
	if clause.OrderBy != "" {
		db = db.Order(clause.OrderBy)
	}
	return db, nil
}

func (c *GormCollection) All(ctx context.Context) ([]query.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := c.DB()
	if err != nil {
		return nil, err
	}

	c.log.Debug().
		Str("model", c.model).
		Msg("Executing filtered query")

	rows, err := db.Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.model, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s columns: %w", c.model, err)
	}

	var records []query.Record
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", c.model, err)
		}

		record := make(query.Record, len(columns))
		for i, column := range columns {
			record[column] = normalizeValue(values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", c.model, err)
	}

	return records, nil
}

func (c *GormCollection) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	model, err := c.registry.Get(c.model)
	if err != nil {
		return 0, err
	}
	clause, err := c.encoder.Encode(c.model, query.Spec{Root: c.spec.Root})
	if err != nil {
		return 0, fmt.Errorf("failed to build count query for %s: %w", c.model, err)
	}

	db := c.db.Table(model.Table)
	for _, join := range clause.Joins {
		db = db.Joins(join)
	}
	if clause.Where != "" {
		db = db.Where(clause.Where, clause.Args...)
	}

	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", c.model, err)
	}
	return count, nil
}

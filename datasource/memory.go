package datasource

import (
	"context"

	"github.com/querykit/filterset/query"
)

// MemoryCollection filters an in-memory record slice through a
// query.Matcher. It backs tests and the default "all records" collection
// when no database is wired.
type MemoryCollection struct {
	matcher *query.Matcher
	model   string
	records []query.Record
	spec    query.Spec
}

func NewMemory(matcher *query.Matcher, model string, records []query.Record) *MemoryCollection {
	return &MemoryCollection{
		matcher: matcher,
		model:   model,
		records: records,
	}
}

func (c *MemoryCollection) Filtered(spec query.Spec) Collection {
	narrowed := *c
	narrowed.spec = query.Merge(c.spec, spec)
	return &narrowed
}

func (c *MemoryCollection) All(ctx context.Context) ([]query.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.matcher.Apply(c.model, c.spec, c.records)
}

func (c *MemoryCollection) Count(ctx context.Context) (int64, error) {
	records, err := c.All(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

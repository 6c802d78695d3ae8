// Package datasource adapts query specifications to concrete data layers.
// Every collection is lazy: Filtered only accumulates the specification,
// and nothing touches the backend until All or Count is called.
package datasource

import (
	"context"
	"errors"

	"github.com/querykit/filterset/query"
)

// Collection is a lazily-evaluated set of records that can be narrowed by
// a query specification. Implementations must leave the receiver untouched
// and return a new collection from Filtered.
type Collection interface {
	Filtered(spec query.Spec) Collection
	All(ctx context.Context) ([]query.Record, error)
	Count(ctx context.Context) (int64, error)
}

// Empty returns a collection with no records, used when a validation
// policy demands an empty result.
func Empty() Collection {
	return emptyCollection{}
}

type emptyCollection struct{}

func (emptyCollection) Filtered(query.Spec) Collection { return emptyCollection{} }

func (emptyCollection) All(context.Context) ([]query.Record, error) { return []query.Record{}, nil }

func (emptyCollection) Count(context.Context) (int64, error) { return 0, nil }

// Errored returns a collection whose evaluation fails with err. It defers
// configuration errors to the moment the query actually runs.
func Errored(err error) Collection {
	if err == nil {
		err = errors.New("errored collection")
	}
	return erroredCollection{err: err}
}

type erroredCollection struct{ err error }

func (c erroredCollection) Filtered(query.Spec) Collection { return c }

func (c erroredCollection) All(context.Context) ([]query.Record, error) { return nil, c.err }

func (c erroredCollection) Count(context.Context) (int64, error) { return 0, c.err }

// normalizeValue converts driver scan values into record values; text
// columns arrive as []byte from lib/pq.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

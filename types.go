package filterset

import (
	"context"
	"errors"

	"github.com/querykit/filterset/datasource"
	"github.com/querykit/filterset/form"
	"github.com/querykit/filterset/lookup"
	"github.com/querykit/filterset/query"
	"github.com/querykit/filterset/schema"
	"github.com/rs/zerolog"
)

// ErrNoCollection is returned by a binding when neither the caller nor the
// filter set supplies a base collection.
var ErrNoCollection = errors.New("no base collection configured")

// Handler is a method-based filter: it receives the validated value and
// returns a predicate to conjoin into the query, or nil for no effect. A
// returned error becomes a validation error on that field alone.
type Handler func(ctx context.Context, name string, value any) (query.Predicate, error)

// ErrorPolicy decides what a binding's result is when validation fails.
type ErrorPolicy int

const (
	// PolicySkipInvalid applies the valid filters and ignores the failed
	// ones; with no valid filters the result is the unfiltered collection.
	PolicySkipInvalid ErrorPolicy = iota
	// PolicyEmptyOnError returns an empty collection on any form error.
	PolicyEmptyOnError
)

// Filter is one declared filter: a request parameter tied to a field path
// and lookup expression, or to a handler for method-based filtering.
//
// A Name containing lookup segments is split automatically when Field and
// Expr are empty: "price__gt" filters field "price" with lookup "gt". Set
// Field (and optionally Expr) explicitly to suppress the splitting; the
// name is then used verbatim.
type Filter struct {
	Name     string
	Field    string
	Expr     string
	Kind     schema.Kind
	Required bool
	Exclude  bool
	Distinct bool
	Label    string
	Help     string
	Widget   string
	Choices  []form.Choice
	Method   string
	Fn       Handler
}

// Ordering configures the ordering parameter: which request parameter
// carries it and which field paths it may name. A "-" prefix selects
// descending order.
type Ordering struct {
	Param   string
	Allowed []string
}

// resolved is a filter after build-time resolution: split name, parsed
// expression, effective value kind and dispatch decision. A non-nil cfgErr
// marks a misconfigured filter whose error surfaces at query time.
// choicesDeclared records that Choices came from the declaration; only
// those restrict input, widget defaults attach choices for rendering
// alone.
type resolved struct {
	Filter
	generated       bool
	method          bool
	noop            bool
	choicesDeclared bool
	path            []string
	expr            lookup.Expr
	kind            schema.Kind
	handler         Handler
	cfgErr          error
}

// FilterSet is the resolved, ordered collection of filters for one model.
// It is immutable after Build and safe to share across requests; each
// request gets its own Binding.
type FilterSet struct {
	model    string
	registry *schema.Registry
	lookups  *lookup.Registry
	filters  []*resolved
	byName   map[string]*resolved
	ordering *Ordering
	policy   ErrorPolicy
	base     datasource.Collection
	log      zerolog.Logger
}

func (fs *FilterSet) Model() string {
	return fs.model
}

func (fs *FilterSet) Policy() ErrorPolicy {
	return fs.policy
}

// FilterNames returns the filter parameter names in form order.
func (fs *FilterSet) FilterNames() []string {
	names := make([]string, 0, len(fs.filters))
	for _, rf := range fs.filters {
		names = append(names, rf.Name)
	}
	return names
}

// Filter returns the resolved declaration of a filter: Field and Expr
// reflect the outcome of name splitting and shorthand expansion.
func (fs *FilterSet) Filter(name string) (Filter, bool) {
	rf, ok := fs.byName[name]
	if !ok {
		return Filter{}, false
	}
	return rf.Filter, true
}

func (fs *FilterSet) add(rf *resolved) {
	existing, ok := fs.byName[rf.Name]
	if !ok {
		fs.filters = append(fs.filters, rf)
		fs.byName[rf.Name] = rf
		return
	}

	// Replacement keeps the original position in the form.
	for i, current := range fs.filters {
		if current == existing {
			fs.filters[i] = rf
			break
		}
	}
	fs.byName[rf.Name] = rf

	if !rf.generated && existing.generated {
		fs.log.Debug().
			Str("filter", rf.Name).
			Msg("Declared filter overrides generated filter")
	}
}
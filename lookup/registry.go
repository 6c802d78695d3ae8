package lookup

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/querykit/filterset/schema"
	"golang.org/x/exp/slices"
)

var ErrUnknownLookup = errors.New("unknown lookup")

// Built-in comparison names.
const (
	Exact       = "exact"
	IExact      = "iexact"
	Contains    = "contains"
	IContains   = "icontains"
	StartsWith  = "startswith"
	IStartsWith = "istartswith"
	EndsWith    = "endswith"
	IEndsWith   = "iendswith"
	GT          = "gt"
	GTE         = "gte"
	LT          = "lt"
	LTE         = "lte"
	In          = "in"
	Range       = "range"
	IsNull      = "isnull"
	Regex       = "regex"
	IRegex      = "iregex"
)

// Built-in transform names.
const (
	Year  = "year"
	Month = "month"
	Day   = "day"
	Date  = "date"
)

// Registry holds the known comparisons and transforms. The default
// registry carries the built-in set; both can be extended.
type Registry struct {
	lookups    map[string]Lookup
	transforms map[string]Transform
	mu         sync.RWMutex
}

var defaultRegistry = NewRegistry()

// Default returns the shared registry with the built-in lookups and
// transforms.
func Default() *Registry {
	return defaultRegistry
}

func NewRegistry() *Registry {
	r := &Registry{
		lookups:    make(map[string]Lookup),
		transforms: make(map[string]Transform),
	}

	text := []schema.Kind{schema.KindString}
	ordered := []schema.Kind{schema.KindString, schema.KindInt, schema.KindFloat, schema.KindTime, schema.KindDate}

	for _, l := range []Lookup{
		{Name: Exact, Arity: AritySingle},
		{Name: IExact, Arity: AritySingle, Kinds: text},
		{Name: Contains, Arity: AritySingle, Kinds: text},
		{Name: IContains, Arity: AritySingle, Kinds: text},
		{Name: StartsWith, Arity: AritySingle, Kinds: text},
		{Name: IStartsWith, Arity: AritySingle, Kinds: text},
		{Name: EndsWith, Arity: AritySingle, Kinds: text},
		{Name: IEndsWith, Arity: AritySingle, Kinds: text},
		{Name: GT, Arity: AritySingle, Kinds: ordered},
		{Name: GTE, Arity: AritySingle, Kinds: ordered},
		{Name: LT, Arity: AritySingle, Kinds: ordered},
		{Name: LTE, Arity: AritySingle, Kinds: ordered},
		{Name: In, Arity: ArityList},
		{Name: Range, Arity: ArityPair, Kinds: ordered},
		{Name: IsNull, Arity: ArityBool},
		{Name: Regex, Arity: AritySingle, Kinds: text},
		{Name: IRegex, Arity: AritySingle, Kinds: text},
	} {
		r.lookups[l.Name] = l
	}

	temporal := []schema.Kind{schema.KindTime, schema.KindDate}
	for _, t := range []Transform{
		{Name: Year, In: temporal, Out: schema.KindInt},
		{Name: Month, In: temporal, Out: schema.KindInt},
		{Name: Day, In: temporal, Out: schema.KindInt},
		{Name: Date, In: []schema.Kind{schema.KindTime}, Out: schema.KindDate},
	} {
		r.transforms[t.Name] = t
	}

	return r
}

func (r *Registry) RegisterLookup(l Lookup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[l.Name] = l
}

func (r *Registry) RegisterTransform(t Transform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transforms[t.Name] = t
}

func (r *Registry) Lookup(name string) (Lookup, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lookups[name]
	return l, ok
}

func (r *Registry) Transform(name string) (Transform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transforms[name]
	return t, ok
}

// Known reports whether a name is a registered lookup or transform.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, lookup := r.lookups[name]
	_, transform := r.transforms[name]
	return lookup || transform
}

// ParseExpr parses expression segments into transforms followed by at most
// one comparison. No segments means a bare exact. Leading segments are
// consumed as transforms while their names match; the remainder must be a
// single comparison name.
func (r *Registry) ParseExpr(parts []string) (Expr, error) {
	var expr Expr

	i := 0
	for ; i < len(parts); i++ {
		t, ok := r.Transform(parts[i])
		if !ok {
			break
		}
		expr.Transforms = append(expr.Transforms, t)
	}

	switch {
	case i == len(parts):
		expr.Comparison, _ = r.Lookup(Exact)
	case i == len(parts)-1:
		l, ok := r.Lookup(parts[i])
		if !ok {
			return Expr{}, fmt.Errorf("%w: %s", ErrUnknownLookup, parts[i])
		}
		expr.Comparison = l
	default:
		return Expr{}, fmt.Errorf("%w: %s", ErrUnknownLookup, strings.Join(parts[i:], "__"))
	}

	return expr, nil
}

// EffectiveKind applies the transform chain to the field kind and checks
// that the comparison accepts the outcome. An invalid field kind skips the
// checks entirely: the expression is then validated at query time, not
// here.
func (e Expr) EffectiveKind(fieldKind schema.Kind) (schema.Kind, error) {
	kind := fieldKind
	for _, t := range e.Transforms {
		if kind == schema.KindInvalid {
			return schema.KindInvalid, nil
		}
		if !slices.Contains(t.In, kind) {
			return schema.KindInvalid, fmt.Errorf("transform %s does not apply to %s values", t.Name, kind)
		}
		kind = t.Out
	}

	if kind == schema.KindInvalid {
		return schema.KindInvalid, nil
	}
	if e.Comparison.Arity == ArityBool {
		return kind, nil
	}
	if len(e.Comparison.Kinds) > 0 && !slices.Contains(e.Comparison.Kinds, kind) {
		return schema.KindInvalid, fmt.Errorf("lookup %s does not apply to %s values", e.Comparison.Name, kind)
	}
	return kind, nil
}

// Coerce validates and converts raw request input by the expression's
// expected shape: a boolean for isnull, a value list for in, a pair for
// range, a single value otherwise. The element kind is the effective kind,
// never the raw column type.
func (e Expr) Coerce(effective schema.Kind, raw string) (any, error) {
	switch e.Comparison.Arity {
	case ArityBool:
		return CoerceBool(raw)
	case ArityList:
		items, err := SplitCSV(raw, ",")
		if err != nil {
			return nil, err
		}
		values := make([]any, 0, len(items))
		for _, item := range items {
			v, err := Coerce(effective, item)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return values, nil
	case ArityPair:
		items, err := SplitCSV(raw, ",")
		if err != nil {
			return nil, err
		}
		if len(items) != 2 {
			return nil, fmt.Errorf("expected two values, got %d", len(items))
		}
		lo, err := Coerce(effective, items[0])
		if err != nil {
			return nil, err
		}
		hi, err := Coerce(effective, items[1])
		if err != nil {
			return nil, err
		}
		return []any{lo, hi}, nil
	default:
		return Coerce(effective, raw)
	}
}

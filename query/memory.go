package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/querykit/filterset/lookup"
	"github.com/querykit/filterset/schema"
	"github.com/rs/zerolog"
)

// Record is one in-memory row: column name to value, with to-one relations
// nested as Records under the relation name. A missing key reads as NULL.
type Record = map[string]any

// Matcher evaluates query specifications against in-memory records. It
// backs the default "all records" collection and makes filter behavior
// testable without a database.
type Matcher struct {
	registry *schema.Registry
	log      zerolog.Logger
}

func NewMatcher(registry *schema.Registry, log zerolog.Logger) *Matcher {
	return &Matcher{registry: registry, log: log}
}

// Apply filters and orders records per the specification. Distinct is
// meaningless here: to-one traversal never fans rows out.
func (m *Matcher) Apply(modelName string, spec Spec, records []Record) ([]Record, error) {
	kept := make([]Record, 0, len(records))
	for _, rec := range records {
		ok, err := m.Match(modelName, spec.Root, rec)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, rec)
		}
	}

	if len(spec.Ordering) > 0 {
		if err := m.sortRecords(modelName, spec.Ordering, kept); err != nil {
			return nil, err
		}
	}

	m.log.Debug().
		Str("model", modelName).
		Int("in", len(records)).
		Int("out", len(kept)).
		Msg("Applied specification to records")

	return kept, nil
}

// Match evaluates one predicate against one record. A nil predicate
// matches everything.
func (m *Matcher) Match(modelName string, p Predicate, rec Record) (bool, error) {
	if p == nil {
		return true, nil
	}

	switch node := p.(type) {
	case *Cond:
		return m.cond(modelName, node, rec)
	case *Group:
		for _, child := range node.Preds {
			ok, err := m.Match(modelName, child, rec)
			if err != nil {
				return false, err
			}
			if node.Op == OpAnd && !ok {
				return false, nil
			}
			if node.Op == OpOr && ok {
				return true, nil
			}
		}
		return node.Op == OpAnd, nil
	case *Not:
		ok, err := m.Match(modelName, node.Pred, rec)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, fmt.Errorf("unsupported predicate %T", p)
	}
}

func (m *Matcher) cond(modelName string, c *Cond, rec Record) (bool, error) {
	value, err := m.fieldValue(modelName, c.Path, rec)
	if err != nil {
		return false, err
	}

	for _, name := range c.Transforms {
		value, err = applyTransform(name, value)
		if err != nil {
			return false, err
		}
	}

	ok, err := matchLookup(c.Lookup, value, c.Value)
	if err != nil {
		return false, err
	}
	if c.Exclude {
		ok = !ok
	}
	return ok, nil
}

// fieldValue resolves the path against the schema, then walks the record:
// relation steps descend into nested records, the terminal reads the
// column key.
func (m *Matcher) fieldValue(modelName string, path []string, rec Record) (any, error) {
	rp, err := m.registry.Resolve(modelName, path)
	if err != nil {
		return nil, err
	}

	current := rec
	for _, step := range rp.Steps {
		child, exists := current[step.Relation.Name]
		if !exists || child == nil {
			return nil, nil
		}
		nested, ok := child.(Record)
		if !ok {
			return nil, fmt.Errorf("record field %s is not a nested record", step.Relation.Name)
		}
		current = nested
	}

	return current[rp.Field.Column], nil
}

func (m *Matcher) sortRecords(modelName string, ordering []Ordering, records []Record) error {
	var sortErr error
	sort.SliceStable(records, func(i, j int) bool {
		for _, ord := range ordering {
			a, err := m.fieldValue(modelName, ord.Path, records[i])
			if err != nil {
				sortErr = err
				return false
			}
			b, err := m.fieldValue(modelName, ord.Path, records[j])
			if err != nil {
				sortErr = err
				return false
			}

			c := compareWithNulls(a, b)
			if c == 0 {
				continue
			}
			if ord.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return sortErr
}

// compareWithNulls treats NULL as the largest value, matching PostgreSQL's
// default of NULLS LAST ascending and NULLS FIRST descending.
func compareWithNulls(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	c, err := compareValues(a, b)
	if err != nil {
		return 0
	}
	return c
}

func matchLookup(name string, value, expected any) (bool, error) {
	switch name {
	case lookup.IsNull:
		isNull, ok := expected.(bool)
		if !ok {
			return false, fmt.Errorf("lookup isnull requires a boolean, got %T", expected)
		}
		return (value == nil) == isNull, nil
	}

	// All remaining lookups never match NULL.
	if value == nil {
		return false, nil
	}

	switch name {
	case lookup.Exact:
		return equalValues(value, expected)
	case lookup.IExact:
		return strings.EqualFold(stringValue(value), stringValue(expected)), nil
	case lookup.Contains:
		return strings.Contains(stringValue(value), stringValue(expected)), nil
	case lookup.IContains:
		return strings.Contains(strings.ToLower(stringValue(value)), strings.ToLower(stringValue(expected))), nil
	case lookup.StartsWith:
		return strings.HasPrefix(stringValue(value), stringValue(expected)), nil
	case lookup.IStartsWith:
		return strings.HasPrefix(strings.ToLower(stringValue(value)), strings.ToLower(stringValue(expected))), nil
	case lookup.EndsWith:
		return strings.HasSuffix(stringValue(value), stringValue(expected)), nil
	case lookup.IEndsWith:
		return strings.HasSuffix(strings.ToLower(stringValue(value)), strings.ToLower(stringValue(expected))), nil
	case lookup.GT, lookup.GTE, lookup.LT, lookup.LTE:
		c, err := compareValues(value, expected)
		if err != nil {
			return false, err
		}
		switch name {
		case lookup.GT:
			return c > 0, nil
		case lookup.GTE:
			return c >= 0, nil
		case lookup.LT:
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case lookup.In:
		values, ok := expected.([]any)
		if !ok {
			return false, fmt.Errorf("lookup in requires a value list, got %T", expected)
		}
		for _, candidate := range values {
			ok, err := equalValues(value, candidate)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case lookup.Range:
		values, ok := expected.([]any)
		if !ok || len(values) != 2 {
			return false, fmt.Errorf("lookup range requires two values, got %T", expected)
		}
		lo, err := compareValues(value, values[0])
		if err != nil {
			return false, err
		}
		hi, err := compareValues(value, values[1])
		if err != nil {
			return false, err
		}
		// Inclusive on both ends, matching SQL BETWEEN.
		return lo >= 0 && hi <= 0, nil
	case lookup.Regex, lookup.IRegex:
		pattern := stringValue(expected)
		if name == lookup.IRegex {
			pattern = "(?i)" + pattern
		}
		matched, err := regexp.MatchString(pattern, stringValue(value))
		if err != nil {
			return false, fmt.Errorf("invalid regular expression: %w", err)
		}
		return matched, nil
	default:
		return false, fmt.Errorf("lookup %s has no in-memory form", name)
	}
}

func applyTransform(name string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	t, ok := value.(time.Time)
	if !ok {
		return nil, fmt.Errorf("transform %s requires a time value, got %T", name, value)
	}

	switch name {
	case lookup.Year:
		return int64(t.Year()), nil
	case lookup.Month:
		return int64(t.Month()), nil
	case lookup.Day:
		return int64(t.Day()), nil
	case lookup.Date:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()), nil
	default:
		return nil, fmt.Errorf("transform %s has no in-memory form", name)
	}
}

func equalValues(a, b any) (bool, error) {
	at, aOK := a.(time.Time)
	bt, bOK := b.(time.Time)
	if aOK && bOK {
		return at.Equal(bt), nil
	}

	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf, nil
	}

	switch av := a.(type) {
	case string:
		bs, ok := b.(string)
		return ok && av == bs, nil
	case bool:
		bb, ok := b.(bool)
		return ok && av == bb, nil
	default:
		return false, fmt.Errorf("cannot compare %T values", a)
	}
}

// compareValues returns -1, 0 or 1. Numeric values compare as float64, so
// int-typed records compare cleanly against coerced int64 input.
func compareValues(a, b any) (int, error) {
	at, aOK := a.(time.Time)
	bt, bOK := b.(time.Time)
	if aOK && bOK {
		switch {
		case at.Before(bt):
			return -1, nil
		case at.After(bt):
			return 1, nil
		default:
			return 0, nil
		}
	}

	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}

	as, aOK := a.(string)
	bs, bOK := b.(string)
	if aOK && bOK {
		return strings.Compare(as, bs), nil
	}

	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

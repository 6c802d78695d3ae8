package query

import "strings"

// Predicate is one node of a query condition tree. Implementations are
// Cond, Group and Not; the unexported method keeps the set closed.
type Predicate interface {
	predicate()
}

// Cond is a single field condition: a relationship path, an optional
// transform chain, a comparison and the coerced value. Value is a single
// value, a []any for list comparisons, or a bool for isnull.
type Cond struct {
	Path       []string
	Transforms []string
	Lookup     string
	Value      any
	Exclude    bool
}

func (*Cond) predicate() {}

// NewCond builds a condition from a double-underscore field path, e.g.
// NewCond("category__name", "icontains", "din").
func NewCond(path, lookup string, value any) *Cond {
	return &Cond{
		Path:   strings.Split(path, "__"),
		Lookup: lookup,
		Value:  value,
	}
}

type GroupOp int

const (
	OpAnd GroupOp = iota
	OpOr
)

func (op GroupOp) String() string {
	if op == OpOr {
		return "OR"
	}
	return "AND"
}

// Group combines child predicates with one logical operator.
type Group struct {
	Op    GroupOp
	Preds []Predicate
}

func (*Group) predicate() {}

// Not negates its child predicate.
type Not struct {
	Pred Predicate
}

func (*Not) predicate() {}

// And conjoins predicates, dropping nils. It returns nil for an empty set
// and the predicate itself for a single one.
func And(preds ...Predicate) Predicate {
	return group(OpAnd, preds)
}

// Or disjoins predicates with the same nil handling as And.
func Or(preds ...Predicate) Predicate {
	return group(OpOr, preds)
}

func group(op GroupOp, preds []Predicate) Predicate {
	kept := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return &Group{Op: op, Preds: kept}
	}
}

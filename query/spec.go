package query

import "strings"

// Ordering is one ORDER BY term: a field path and a direction.
type Ordering struct {
	Path []string
	Desc bool
}

// ParseOrdering parses a request ordering term; a "-" prefix means
// descending, e.g. "-category__name".
func ParseOrdering(term string) Ordering {
	desc := strings.HasPrefix(term, "-")
	return Ordering{
		Path: strings.Split(strings.TrimPrefix(term, "-"), "__"),
		Desc: desc,
	}
}

// Spec is the declarative query specification a filter binding produces:
// the condition tree plus ordering. The zero value selects everything. A
// Spec never executes anything itself; data-layer adapters translate it.
type Spec struct {
	Root     Predicate
	Ordering []Ordering
	Distinct bool
}

func (s Spec) IsZero() bool {
	return s.Root == nil && len(s.Ordering) == 0 && !s.Distinct
}

// Merge combines two specifications: conditions are conjoined, the later
// ordering wins when both are set.
func Merge(a, b Spec) Spec {
	merged := Spec{
		Root:     And(a.Root, b.Root),
		Ordering: a.Ordering,
		Distinct: a.Distinct || b.Distinct,
	}
	if len(b.Ordering) > 0 {
		merged.Ordering = b.Ordering
	}
	return merged
}

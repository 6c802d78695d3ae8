package lookup

import (
	"strings"

	"github.com/querykit/filterset/schema"
)

// Arity is the input shape a comparison expects from a request parameter.
type Arity int

const (
	// AritySingle takes one value of the effective kind.
	AritySingle Arity = iota
	// ArityList takes a delimiter-separated list of values.
	ArityList
	// ArityPair takes exactly two delimiter-separated values.
	ArityPair
	// ArityBool takes a boolean literal regardless of the field kind.
	ArityBool
)

// Lookup is a comparison operator: the final segment of a lookup
// expression. Kinds restricts the field kinds it applies to; empty means
// any kind.
type Lookup struct {
	Name  string
	Arity Arity
	Kinds []schema.Kind
}

// Transform is a value-to-value step usable before a comparison, such as
// extracting the year of a timestamp. In lists the kinds it accepts, Out
// the kind it produces.
type Transform struct {
	Name string
	In   []schema.Kind
	Out  schema.Kind
}

// Expr is a parsed lookup expression: transforms applied left to right,
// then one comparison. The zero value is not valid; use Registry.ParseExpr.
type Expr struct {
	Transforms []Transform
	Comparison Lookup
}

// String renders the expression in parameter form, e.g. "year__gt".
func (e Expr) String() string {
	parts := make([]string, 0, len(e.Transforms)+1)
	for _, t := range e.Transforms {
		parts = append(parts, t.Name)
	}
	parts = append(parts, e.Comparison.Name)
	return strings.Join(parts, "__")
}

// TransformNames returns the transform chain as names, for query
// specifications.
func (e Expr) TransformNames() []string {
	if len(e.Transforms) == 0 {
		return nil
	}
	names := make([]string, len(e.Transforms))
	for i, t := range e.Transforms {
		names[i] = t.Name
	}
	return names
}

// IsExact reports whether the expression is a bare exact comparison.
func (e Expr) IsExact() bool {
	return len(e.Transforms) == 0 && e.Comparison.Name == Exact
}

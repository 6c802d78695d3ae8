package filterset

import (
	"fmt"
	"strings"

	"github.com/querykit/filterset/lookup"
	"github.com/querykit/filterset/schema"
)

func splitPath(path string) []string {
	return strings.Split(path, "__")
}

// generate builds the filter for one shorthand entry. Shorthand names
// developer-chosen fields, so resolution errors fail the build instead of
// being deferred.
func (b *Builder) generate(defaults map[schema.Kind]Default, path, lookupExpr string, fromList bool) (*resolved, error) {
	segments := splitPath(path)
	rp, err := b.registry.Resolve(b.model, segments)
	if err != nil {
		return nil, err
	}

	if fromList {
		lookupExpr = lookup.Exact
		if def, ok := defaults[rp.Field.Kind]; ok && def.Lookup != "" {
			lookupExpr = def.Lookup
		}
	}

	expr, err := b.lookups.ParseExpr(splitPath(lookupExpr))
	if err != nil {
		return nil, err
	}
	kind, err := expr.EffectiveKind(rp.Field.Kind)
	if err != nil {
		return nil, err
	}

	name := path
	if !fromList && lookupExpr != lookup.Exact {
		name = path + "__" + lookupExpr
	}
	widget, choices := widgetFor(defaults, kind, expr)

	return &resolved{
		Filter: Filter{
			Name:    name,
			Field:   path,
			Expr:    expr.String(),
			Kind:    kind,
			Widget:  widget,
			Choices: choices,
		},
		generated: true,
		path:      segments,
		expr:      expr,
		kind:      kind,
	}, nil
}

// resolveDeclared resolves an explicit filter declaration. It never fails
// the build: a declaration that cannot be resolved is kept with its error,
// which surfaces when a query using it runs.
func (b *Builder) resolveDeclared(defaults map[schema.Kind]Default, model *schema.Model, decl Filter) *resolved {
	rf := &resolved{Filter: decl, kind: decl.Kind, choicesDeclared: len(decl.Choices) > 0}

	switch {
	case decl.Fn != nil:
		rf.method = true
		rf.handler = decl.Fn
	case decl.Method != "":
		rf.method = true
		if h, ok := b.handlers[decl.Method]; ok {
			rf.handler = h
		} else if h, ok := b.handlers["filter_"+decl.Name]; ok {
			rf.handler = h
			b.log.Debug().
				Str("filter", decl.Name).
				Str("method", decl.Method).
				Msg("Method not registered, dispatching to filter_ handler")
		} else {
			rf.noop = true
			b.log.Warn().
				Str("filter", decl.Name).
				Str("method", decl.Method).
				Msg("No handler registered for method filter, input is accepted but ignored")
		}
	case decl.Field == "" && decl.Expr == "":
		if h, ok := b.handlers["filter_"+decl.Name]; ok {
			rf.method = true
			rf.handler = h
		}
	}

	if rf.method {
		if rf.Widget == "" {
			rf.Widget = "text"
		}
		return rf
	}

	segments, exprStr := b.splitDeclared(model, decl, rf)
	rf.path = segments

	var exprParts []string
	if exprStr != "" {
		exprParts = splitPath(exprStr)
	}
	expr, err := b.lookups.ParseExpr(exprParts)
	if err != nil {
		// Unknown lookup on a declared filter: poisoned, reported at
		// query time.
		if rf.cfgErr == nil {
			rf.cfgErr = err
		}
		return rf
	}
	rf.expr = expr
	rf.Filter.Field = strings.Join(segments, "__")
	rf.Filter.Expr = expr.String()

	if rp, rerr := b.registry.Resolve(b.model, segments); rerr == nil && decl.Kind == schema.KindInvalid {
		kind, kerr := expr.EffectiveKind(rp.Field.Kind)
		if kerr != nil {
			rf.cfgErr = kerr
		} else {
			rf.kind = kind
			rf.Filter.Kind = kind
		}
	}
	// A path that does not resolve is left alone here: the query encoder
	// reports it when the filter is actually used.

	if decl.Widget == "" {
		widget, choices := widgetFor(defaults, rf.kind, expr)
		rf.Filter.Widget = widget
		if len(decl.Choices) == 0 {
			rf.Filter.Choices = choices
		}
	}
	return rf
}

// splitDeclared determines the field path and lookup expression of a
// declared filter. An explicit Field or Expr suppresses name splitting; a
// bare name is walked segment by segment against the model, the first
// non-field remainder becoming the lookup expression.
func (b *Builder) splitDeclared(model *schema.Model, decl Filter, rf *resolved) ([]string, string) {
	if decl.Field != "" {
		return splitPath(decl.Field), decl.Expr
	}
	if decl.Expr != "" {
		return splitPath(decl.Name), decl.Expr
	}

	segments, rest, err := b.splitName(model, splitPath(decl.Name))
	if err != nil {
		rf.cfgErr = err
		return splitPath(decl.Name), ""
	}
	return segments, strings.Join(rest, "__")
}

// splitName walks name segments against the model graph: fields terminate
// the path, relations continue it, and the first segment that is neither
// starts the lookup expression. A name that stalls on the root model names
// no field at all and is an error.
func (b *Builder) splitName(model *schema.Model, segments []string) ([]string, []string, error) {
	current := model
	for i, seg := range segments {
		if _, ok := current.Field(seg); ok {
			return segments[:i+1], segments[i+1:], nil
		}
		rel, ok := current.Relation(seg)
		if !ok {
			if i > 0 {
				// The walk stalled after a relation: filter on its
				// foreign key, the rest is the lookup expression.
				return segments[:i], segments[i:], nil
			}
			return nil, nil, fmt.Errorf("%w: %s on model %s", schema.ErrUnknownField, seg, current.Name)
		}
		if i == len(segments)-1 {
			return segments, nil, nil
		}
		next, err := b.registry.Get(rel.Target)
		if err != nil {
			return nil, nil, err
		}
		current = next
	}
	return segments, nil, nil
}
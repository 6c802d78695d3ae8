package filterset

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/querykit/filterset/datasource"
	"github.com/querykit/filterset/form"
	"github.com/querykit/filterset/lookup"
	"github.com/querykit/filterset/query"
	"github.com/querykit/filterset/schema"
	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"
)

// Binding is one request bound against a filter set: the validated form,
// the query specification assembled from the valid inputs, and the result
// collection. Validation errors live on the form; a misconfigured filter
// is carried as an error into the result once a parameter hits it, and a
// required filter counts as hit on every request.
type Binding struct {
	fs     *FilterSet
	form   *form.Form
	spec   query.Spec
	cfgErr error
	base   datasource.Collection
	result datasource.Collection
	log    zerolog.Logger
}

// Bind validates the request parameters against the filter set and
// assembles the query specification. Parameters that name no filter are
// ignored; filters with no parameter contribute nothing. The context is
// handed to method-filter handlers.
func (fs *FilterSet) Bind(ctx context.Context, params url.Values, base datasource.Collection) *Binding {
	b := &Binding{fs: fs, form: form.New(), base: base, log: fs.log}

	var conds []query.Predicate
	distinct := false

	for _, rf := range fs.filters {
		field := &form.Field{
			Name:    rf.Name,
			Label:   labelFor(rf),
			Help:    rf.Help,
			Widget:  rf.Widget,
			Choices: rf.Choices,
		}
		raw := params.Get(rf.Name)
		field.Raw = raw
		b.form.AddField(field)

		if raw == "" && !rf.Required {
			continue
		}

		// A required filter participates in every request, so its
		// configuration error is never dormant.
		if rf.cfgErr != nil {
			if b.cfgErr == nil {
				b.cfgErr = fmt.Errorf("filter %s: %w", rf.Name, rf.cfgErr)
			}
			continue
		}

		if raw == "" {
			b.form.AddError(rf.Name, "This field is required")
			continue
		}

		if !checkChoices(rf, raw) {
			b.form.AddError(rf.Name, "Select a valid choice")
			continue
		}

		if rf.method {
			value := any(raw)
			if rf.kind != schema.KindInvalid {
				coerced, err := lookup.Coerce(rf.kind, raw)
				if err != nil {
					b.form.AddError(rf.Name, kindMessage(rf.kind))
					continue
				}
				value = coerced
			}
			b.form.SetCleaned(rf.Name, value)
			if rf.noop {
				continue
			}
			pred, err := rf.handler(ctx, rf.Name, value)
			if err != nil {
				b.form.AddError(rf.Name, err.Error())
				continue
			}
			if pred != nil {
				conds = append(conds, pred)
				if rf.Distinct {
					distinct = true
				}
			}
			continue
		}

		value, err := rf.expr.Coerce(rf.kind, raw)
		if err != nil {
			b.form.AddError(rf.Name, coerceMessage(rf))
			continue
		}
		b.form.SetCleaned(rf.Name, value)
		conds = append(conds, &query.Cond{
			Path:       rf.path,
			Transforms: rf.expr.TransformNames(),
			Lookup:     rf.expr.Comparison.Name,
			Value:      value,
			Exclude:    rf.Exclude,
		})
		if rf.Distinct {
			distinct = true
		}
	}

	if fs.ordering != nil {
		b.bindOrdering(params)
	}

	b.spec.Root = query.And(conds...)
	b.spec.Distinct = distinct
	return b
}

func (b *Binding) bindOrdering(params url.Values) {
	o := b.fs.ordering
	field := &form.Field{
		Name:    o.Param,
		Label:   "Ordering",
		Widget:  "select",
		Choices: orderingChoices(o),
	}
	raw := params.Get(o.Param)
	field.Raw = raw
	b.form.AddField(field)

	if raw == "" {
		return
	}
	terms, err := lookup.SplitCSV(raw, ",")
	if err != nil {
		b.form.AddError(o.Param, "Enter a comma-separated list of ordering fields")
		return
	}

	var ordering []query.Ordering
	for _, term := range terms {
		name := strings.TrimPrefix(term, "-")
		if !slices.Contains(o.Allowed, name) {
			b.form.AddError(o.Param, fmt.Sprintf("%q is not an allowed ordering field", name))
			return
		}
		ordering = append(ordering, query.ParseOrdering(term))
	}
	b.form.SetCleaned(o.Param, terms)
	b.spec.Ordering = ordering
}

// Form returns the bound form with raw values, cleaned values and
// validation errors.
func (b *Binding) Form() *form.Form {
	return b.form
}

// Spec returns the assembled query specification. The error is non-nil
// when a parameter hit a misconfigured filter; it describes the
// configuration mistake, not the request.
func (b *Binding) Spec() (query.Spec, error) {
	return b.spec, b.cfgErr
}

// Result returns the filtered collection. A configuration error yields an
// errored collection; an invalid form yields either the partially filtered
// or the empty collection depending on the filter set's policy. The
// collection is lazy, nothing runs until it is consumed.
func (b *Binding) Result() datasource.Collection {
	if b.result != nil {
		return b.result
	}

	switch {
	case b.cfgErr != nil:
		b.result = datasource.Errored(b.cfgErr)
	case !b.form.IsValid() && b.fs.policy == PolicyEmptyOnError:
		b.log.Debug().
			Str("model", b.fs.model).
			Msg("Form invalid, returning empty result")
		b.result = datasource.Empty()
	default:
		base := b.base
		if base == nil {
			base = b.fs.base
		}
		if base == nil {
			b.result = datasource.Errored(ErrNoCollection)
			break
		}
		b.result = base.Filtered(b.spec)
	}
	return b.result
}

func checkChoices(rf *resolved, raw string) bool {
	// Only declared choices restrict input; choices a widget default
	// attaches are render metadata.
	if !rf.choicesDeclared || len(rf.Choices) == 0 {
		return true
	}
	values := []string{raw}
	if !rf.method {
		switch rf.expr.Comparison.Arity {
		case lookup.ArityList, lookup.ArityPair:
			if items, err := lookup.SplitCSV(raw, ","); err == nil {
				values = items
			}
		}
	}
	for _, v := range values {
		ok := false
		for _, c := range rf.Choices {
			if c.Value == v {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func kindMessage(kind schema.Kind) string {
	switch kind {
	case schema.KindInt:
		return "Enter a whole number"
	case schema.KindFloat:
		return "Enter a number"
	case schema.KindBool:
		return "Enter a boolean value: true, false, 1 or 0"
	case schema.KindTime:
		return "Enter a valid date and time"
	case schema.KindDate:
		return "Enter a valid date"
	default:
		return "Enter a valid value"
	}
}

func coerceMessage(rf *resolved) string {
	switch rf.expr.Comparison.Arity {
	case lookup.ArityBool:
		return "Enter a boolean value: true, false, 1 or 0"
	case lookup.ArityPair:
		return "Enter two valid values separated by a comma"
	case lookup.ArityList:
		return "Enter a comma-separated list of valid values"
	default:
		return kindMessage(rf.kind)
	}
}

func labelFor(rf *resolved) string {
	if rf.Label != "" {
		return rf.Label
	}
	label := strings.ReplaceAll(rf.Name, "__", " ")
	label = strings.ReplaceAll(label, "_", " ")
	runes := []rune(label)
	if len(runes) > 0 {
		runes[0] = unicode.ToUpper(runes[0])
	}
	return string(runes)
}

func orderingChoices(o *Ordering) []form.Choice {
	choices := make([]form.Choice, 0, len(o.Allowed)*2)
	for _, name := range o.Allowed {
		choices = append(choices, form.Choice{Value: name, Label: name})
		choices = append(choices, form.Choice{Value: "-" + name, Label: name + " (descending)"})
	}
	return choices
}
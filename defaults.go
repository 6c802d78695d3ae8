package filterset

import (
	"github.com/querykit/filterset/form"
	"github.com/querykit/filterset/lookup"
	"github.com/querykit/filterset/schema"
)

// Default describes the filter generated for a field of a given kind when
// the shorthand names only the field: which lookup it applies, and how the
// form renders it. Builder.Override replaces the entry for a kind.
type Default struct {
	Lookup  string
	Widget  string
	Choices []form.Choice
}

var boolChoices = []form.Choice{
	{Value: "true", Label: "Yes"},
	{Value: "false", Label: "No"},
}

func builtinDefaults() map[schema.Kind]Default {
	return map[schema.Kind]Default{
		schema.KindString: {Lookup: lookup.Exact, Widget: "text"},
		schema.KindInt:    {Lookup: lookup.Exact, Widget: "number"},
		schema.KindFloat:  {Lookup: lookup.Exact, Widget: "number"},
		schema.KindBool:   {Lookup: lookup.Exact, Widget: "select", Choices: boolChoices},
		schema.KindTime:   {Lookup: lookup.Exact, Widget: "datetime"},
		schema.KindDate:   {Lookup: lookup.Exact, Widget: "date"},
	}
}

// widgetFor picks the widget for a resolved expression: boolean lookups
// render as a yes/no select, list and range lookups as free text for the
// comma-separated values, everything else follows the kind default. The
// returned choices are render metadata and do not restrict input.
func widgetFor(defaults map[schema.Kind]Default, kind schema.Kind, expr lookup.Expr) (string, []form.Choice) {
	switch expr.Comparison.Arity {
	case lookup.ArityBool:
		return "select", boolChoices
	case lookup.ArityList, lookup.ArityPair:
		return "text", nil
	}
	if def, ok := defaults[kind]; ok {
		return def.Widget, def.Choices
	}
	return "text", nil
}
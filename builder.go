package filterset

import (
	"fmt"

	"github.com/querykit/filterset/datasource"
	"github.com/querykit/filterset/lookup"
	"github.com/querykit/filterset/schema"
	"github.com/rs/zerolog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Builder assembles a FilterSet for one model. Shorthand fields expand into
// generated filters at Build, declared filters are added afterwards and
// replace generated ones with the same name. Build validates the shorthand
// eagerly; a broken declared filter is kept and reports its error when a
// query runs.
type Builder struct {
	model        string
	registry     *schema.Registry
	lookups      *lookup.Registry
	fields       []string
	fieldLookups map[string][]string
	declared     []Filter
	overrides    map[schema.Kind]Default
	handlers     map[string]Handler
	ordering     *Ordering
	policy       ErrorPolicy
	base         datasource.Collection
	log          zerolog.Logger
}

// New creates a builder for the named model in the registry.
func New(model string, registry *schema.Registry) *Builder {
	return &Builder{
		model:        model,
		registry:     registry,
		lookups:      lookup.Default(),
		fieldLookups: make(map[string][]string),
		overrides:    make(map[schema.Kind]Default),
		handlers:     make(map[string]Handler),
		policy:       PolicySkipInvalid,
		log:          zerolog.Nop(),
	}
}

// Fields adds shorthand filters: one exact-match filter per field path,
// named after the path.
func (b *Builder) Fields(paths ...string) *Builder {
	b.fields = append(b.fields, paths...)
	return b
}

// FieldLookups adds shorthand filters for one field path, one filter per
// lookup expression. The filter for "gt" on "price" is named "price__gt";
// an "exact" lookup keeps the bare path as the name.
func (b *Builder) FieldLookups(path string, lookups ...string) *Builder {
	b.fieldLookups[path] = append(b.fieldLookups[path], lookups...)
	return b
}

// Declare adds explicit filters. A declared filter with the same name as a
// generated one replaces it, keeping its position in the form.
func (b *Builder) Declare(filters ...Filter) *Builder {
	b.declared = append(b.declared, filters...)
	return b
}

// Override replaces the generated-filter default for a field kind.
func (b *Builder) Override(kind schema.Kind, def Default) *Builder {
	b.overrides[kind] = def
	return b
}

// Handle registers a named handler for method-based filters. A filter with
// Method "m" dispatches to the handler registered as "m", falling back to
// "filter_<name>"; a declared filter with no field, expression or Fn also
// dispatches to "filter_<name>" when one is registered.
func (b *Builder) Handle(name string, h Handler) *Builder {
	b.handlers[name] = h
	return b
}

// OrderBy enables an ordering parameter restricted to the given field
// paths. A "-" prefix on a value selects descending order.
func (b *Builder) OrderBy(param string, allowed ...string) *Builder {
	b.ordering = &Ordering{Param: param, Allowed: allowed}
	return b
}

// Policy sets the result policy applied when a binding's form is invalid.
func (b *Builder) Policy(p ErrorPolicy) *Builder {
	b.policy = p
	return b
}

// Base sets the default collection bindings filter when the caller passes
// none.
func (b *Builder) Base(c datasource.Collection) *Builder {
	b.base = c
	return b
}

// Lookups replaces the lookup registry, usually to add custom lookups.
func (b *Builder) Lookups(reg *lookup.Registry) *Builder {
	b.lookups = reg
	return b
}

func (b *Builder) Logger(log zerolog.Logger) *Builder {
	b.log = log
	return b
}

// Build resolves the shorthand and declared filters into a FilterSet.
func (b *Builder) Build() (*FilterSet, error) {
	if b.registry == nil {
		return nil, fmt.Errorf("filterset %s: no schema registry", b.model)
	}
	model, err := b.registry.Get(b.model)
	if err != nil {
		return nil, fmt.Errorf("filterset %s: %w", b.model, err)
	}

	defaults := builtinDefaults()
	for kind, def := range b.overrides {
		defaults[kind] = def
	}

	fs := &FilterSet{
		model:    b.model,
		registry: b.registry,
		lookups:  b.lookups,
		byName:   make(map[string]*resolved),
		ordering: b.ordering,
		policy:   b.policy,
		base:     b.base,
		log:      b.log,
	}

	for _, path := range b.fields {
		rf, err := b.generate(defaults, path, "", true)
		if err != nil {
			return nil, fmt.Errorf("filterset %s: field %s: %w", b.model, path, err)
		}
		fs.add(rf)
	}

	paths := maps.Keys(b.fieldLookups)
	slices.Sort(paths)
	for _, path := range paths {
		for _, expr := range b.fieldLookups[path] {
			rf, err := b.generate(defaults, path, expr, false)
			if err != nil {
				return nil, fmt.Errorf("filterset %s: field %s lookup %s: %w", b.model, path, expr, err)
			}
			fs.add(rf)
		}
	}

	for _, decl := range b.declared {
		if decl.Name == "" {
			return nil, fmt.Errorf("filterset %s: declared filter without a name", b.model)
		}
		fs.add(b.resolveDeclared(defaults, model, decl))
	}

	if b.ordering != nil {
		if b.ordering.Param == "" {
			return nil, fmt.Errorf("filterset %s: ordering without a parameter name", b.model)
		}
		for _, path := range b.ordering.Allowed {
			if _, err := b.registry.Resolve(b.model, splitPath(path)); err != nil {
				return nil, fmt.Errorf("filterset %s: ordering field %s: %w", b.model, path, err)
			}
		}
	}

	b.log.Debug().
		Str("model", b.model).
		Int("filters", len(fs.filters)).
		Msg("Built filter set")
	return fs, nil
}

// MustBuild is Build for static filter sets; it panics on error.
func (b *Builder) MustBuild() *FilterSet {
	fs, err := b.Build()
	if err != nil {
		panic(err)
	}
	return fs
}
package definition

import (
	"fmt"

	"github.com/querykit/filterset"
	"github.com/querykit/filterset/lookup"
	"github.com/querykit/filterset/schema"
	"github.com/rs/zerolog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// NewService creates a service that builds filter sets from the repository's
// definitions against the given schema registry.
func NewService(repo *Repository, registry *schema.Registry, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		lookups:  lookup.Default(),
		handlers: make(map[string]filterset.Handler),
		sets:     make(map[string]*filterset.FilterSet),
		log:      log,
	}
}

// Handle registers a handler available to every definition's method
// filters.
func (svc *Service) Handle(name string, h filterset.Handler) {
	svc.mu.Lock()
	svc.handlers[name] = h
	svc.mu.Unlock()
}

// Lookups replaces the lookup registry used for built filter sets.
func (svc *Service) Lookups(reg *lookup.Registry) {
	svc.mu.Lock()
	svc.lookups = reg
	svc.mu.Unlock()
}

// BuildAll builds a filter set for every loaded definition. Definitions
// that fail to build are logged and skipped; the error reports how many
// failed.
func (svc *Service) BuildAll() error {
	definitions := svc.repo.All()

	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.sets = make(map[string]*filterset.FilterSet)
	failed := 0

	for _, def := range definitions {
		fs, err := svc.build(def)
		if err != nil {
			failed++
			svc.log.Error().
				Err(err).
				Str("definition", def.Name).
				Msg("Failed to build filter set")
			continue
		}
		svc.sets[def.Name] = fs
	}

	svc.log.Info().
		Int("built", len(svc.sets)).
		Int("failed", failed).
		Msg("Built filter sets from definitions")

	if failed > 0 {
		return fmt.Errorf("failed to build %d of %d filter sets", failed, len(definitions))
	}
	return nil
}

func (svc *Service) build(def *Definition) (*filterset.FilterSet, error) {
	builder := filterset.New(def.Model, svc.registry).
		Lookups(svc.lookups).
		Logger(svc.log)

	if len(def.Fields) > 0 {
		builder.Fields(def.Fields...)
	}
	for field, lookups := range def.FieldLookups {
		builder.FieldLookups(field, lookups...)
	}
	for name, h := range svc.handlers {
		builder.Handle(name, h)
	}

	for _, fd := range def.Filters {
		filter := filterset.Filter{
			Name:     fd.Name,
			Field:    fd.Field,
			Expr:     fd.Expr,
			Required: fd.Required,
			Exclude:  fd.Exclude,
			Distinct: fd.Distinct,
			Label:    fd.Label,
			Help:     fd.Help,
			Widget:   fd.Widget,
			Choices:  fd.Choices,
			Method:   fd.Method,
		}
		if fd.Kind != "" {
			kind, err := schema.ParseKind(fd.Kind)
			if err != nil {
				return nil, fmt.Errorf("filter %s: %w", fd.Name, err)
			}
			filter.Kind = kind
		}
		builder.Declare(filter)
	}

	if def.Ordering != nil {
		builder.OrderBy(def.Ordering.Param, def.Ordering.Allowed...)
	}

	policy, err := parsePolicy(def.Policy)
	if err != nil {
		return nil, err
	}
	builder.Policy(policy)

	return builder.Build()
}

// FilterSet returns the built filter set for a definition name.
func (svc *Service) FilterSet(name string) (*filterset.FilterSet, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	fs, exists := svc.sets[name]
	if !exists {
		return nil, fmt.Errorf("no filter set built for definition: %s", name)
	}
	return fs, nil
}

// Names returns the names of the built filter sets in sorted order.
func (svc *Service) Names() []string {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	names := maps.Keys(svc.sets)
	slices.Sort(names)
	return names
}

func parsePolicy(s string) (filterset.ErrorPolicy, error) {
	switch s {
	case "", "skip_invalid":
		return filterset.PolicySkipInvalid, nil
	case "empty_on_error":
		return filterset.PolicyEmptyOnError, nil
	default:
		return 0, fmt.Errorf("unknown error policy %q", s)
	}
}
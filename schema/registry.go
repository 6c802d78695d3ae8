package schema

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var (
	ErrUnknownModel = errors.New("unknown model")
	ErrUnknownField = errors.New("unknown field")
)

// Registry holds the registered model descriptors. It is safe for
// concurrent use; models themselves are treated as read-only once
// registered.
type Registry struct {
	models map[string]*Model
	mu     sync.RWMutex
	log    zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		models: make(map[string]*Model),
		log:    log,
	}
}

// Register stores a model under its name, replacing any previous
// registration.
func (r *Registry) Register(m *Model) {
	r.mu.Lock()
	r.models[m.Name] = m
	r.mu.Unlock()

	r.log.Debug().
		Str("model", m.Name).
		Str("table", m.Table).
		Int("fields", len(m.fields)).
		Int("relations", len(m.relations)).
		Msg("Registered model")
}

func (r *Registry) Get(name string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.models[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return m, nil
}

// MustGet is Get for registrations known to exist, typically at startup.
func (r *Registry) MustGet(name string) *Model {
	m, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return m
}

// Names returns the registered model names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := maps.Keys(r.models)
	slices.Sort(names)
	return names
}

// Resolve walks a relationship path on the named model: every segment but
// the last must be a relation, the last must be a field or a relation. A
// trailing relation resolves to its local key column, so "category" filters
// on the foreign key itself.
func (r *Registry) Resolve(modelName string, path []string) (*ResolvedPath, error) {
	root, err := r.Get(modelName)
	if err != nil {
		return nil, err
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty path on model %s", ErrUnknownField, modelName)
	}

	resolved := &ResolvedPath{Model: root}
	current := root

	for i, segment := range path {
		last := i == len(path)-1

		if field, ok := current.Field(segment); ok {
			if !last {
				return nil, fmt.Errorf("%w: %s is not a relation on %s (path %s)",
					ErrUnknownField, segment, current.Name, strings.Join(path, "__"))
			}
			resolved.Field = field
			return resolved, nil
		}

		rel, ok := current.Relation(segment)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no field or relation %q (path %s)",
				ErrUnknownField, current.Name, segment, strings.Join(path, "__"))
		}

		if last {
			// Trailing relation: filter on the local key column.
			resolved.Field = &Field{
				Name:     rel.Name,
				Column:   rel.LocalColumn,
				Kind:     KindInt,
				Nullable: true,
			}
			return resolved, nil
		}

		target, err := r.Get(rel.Target)
		if err != nil {
			return nil, fmt.Errorf("relation %s on %s: %w", rel.Name, current.Name, err)
		}
		resolved.Steps = append(resolved.Steps, Step{Relation: rel, Model: target})
		current = target
	}

	return resolved, nil
}

// Package definition loads filter set definitions from JSON files or a
// remote endpoint and builds the runtime filter sets from them. Definitions
// keep filter configuration out of code, so deployments can adjust the
// filtering surface without a rebuild.
package definition

import (
	"net/http"
	"sync"

	"github.com/querykit/filterset"
	"github.com/querykit/filterset/form"
	"github.com/querykit/filterset/lookup"
	"github.com/querykit/filterset/schema"
	"github.com/rs/zerolog"
)

// Definition describes one filter set: the model it filters, the shorthand
// fields, the declared filters and the ordering parameter.
type Definition struct {
	Name         string              `json:"name"`
	Model        string              `json:"model"`
	Fields       []string            `json:"fields,omitempty"`
	FieldLookups map[string][]string `json:"field_lookups,omitempty"`
	Filters      []FilterDef         `json:"filters,omitempty"`
	Ordering     *OrderingDef        `json:"ordering,omitempty"`
	Policy       string              `json:"policy,omitempty"`
}

// FilterDef is one declared filter in a definition file.
type FilterDef struct {
	Name     string        `json:"name"`
	Field    string        `json:"field,omitempty"`
	Expr     string        `json:"expr,omitempty"`
	Kind     string        `json:"kind,omitempty"`
	Required bool          `json:"required,omitempty"`
	Exclude  bool          `json:"exclude,omitempty"`
	Distinct bool          `json:"distinct,omitempty"`
	Label    string        `json:"label,omitempty"`
	Help     string        `json:"help,omitempty"`
	Widget   string        `json:"widget,omitempty"`
	Choices  []form.Choice `json:"choices,omitempty"`
	Method   string        `json:"method,omitempty"`
}

// OrderingDef enables the ordering parameter of a definition.
type OrderingDef struct {
	Param   string   `json:"param"`
	Allowed []string `json:"allowed"`
}

// Repository holds the loaded definitions, keyed by name. Remote loads are
// cached on disk so a restart survives the endpoint being down.
type Repository struct {
	definitions map[string]*Definition
	mu          sync.RWMutex
	cachePath   string
	client      *http.Client
	log         zerolog.Logger
}

// Service builds and serves the filter sets for the loaded definitions.
type Service struct {
	repo     *Repository
	registry *schema.Registry
	lookups  *lookup.Registry
	handlers map[string]filterset.Handler
	sets     map[string]*filterset.FilterSet
	mu       sync.RWMutex
	log      zerolog.Logger
}
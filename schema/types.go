package schema

import (
	"fmt"
	"strings"
)

// Kind is the semantic value kind of a model field. It drives default
// filter selection and value coercion, independent of the column type the
// data layer happens to use.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindDate:
		return "date"
	default:
		return "invalid"
	}
}

// ParseKind parses a kind name as used in definition files and struct tags.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "text":
		return KindString, nil
	case "int", "integer":
		return KindInt, nil
	case "float", "number", "decimal":
		return KindFloat, nil
	case "bool", "boolean":
		return KindBool, nil
	case "time", "datetime", "timestamp":
		return KindTime, nil
	case "date":
		return KindDate, nil
	default:
		return KindInvalid, fmt.Errorf("unknown kind %q", s)
	}
}

// Field describes one filterable field of a model.
type Field struct {
	Name     string
	Column   string
	Kind     Kind
	Nullable bool
}

// Relation describes a to-one relation to another model, joined on
// LocalColumn = target.RemoteColumn.
type Relation struct {
	Name         string
	Target       string
	LocalColumn  string
	RemoteColumn string
}

// Model is the descriptor of one filterable entity: its table plus the
// fields and relations a filter path may traverse. Models are read-only
// after registration.
type Model struct {
	Name      string
	Table     string
	fields    map[string]*Field
	relations map[string]*Relation
	order     []string
}

func NewModel(name, table string) *Model {
	return &Model{
		Name:      name,
		Table:     table,
		fields:    make(map[string]*Field),
		relations: make(map[string]*Relation),
	}
}

// AddField adds or replaces a field. An empty column defaults to the field
// name.
func (m *Model) AddField(f Field) *Model {
	if f.Column == "" {
		f.Column = f.Name
	}
	if _, exists := m.fields[f.Name]; !exists {
		m.order = append(m.order, f.Name)
	}
	m.fields[f.Name] = &f
	return m
}

// AddRelation adds or replaces a relation. RemoteColumn defaults to "id"
// and LocalColumn to "<name>_id".
func (m *Model) AddRelation(r Relation) *Model {
	if r.RemoteColumn == "" {
		r.RemoteColumn = "id"
	}
	if r.LocalColumn == "" {
		r.LocalColumn = r.Name + "_id"
	}
	m.relations[r.Name] = &r
	return m
}

func (m *Model) Field(name string) (*Field, bool) {
	f, ok := m.fields[name]
	return f, ok
}

func (m *Model) Relation(name string) (*Relation, bool) {
	r, ok := m.relations[name]
	return r, ok
}

// Fields returns the model's fields in declaration order.
func (m *Model) Fields() []Field {
	result := make([]Field, 0, len(m.order))
	for _, name := range m.order {
		result = append(result, *m.fields[name])
	}
	return result
}

func (m *Model) Relations() []Relation {
	result := make([]Relation, 0, len(m.relations))
	for _, r := range m.relations {
		result = append(result, *r)
	}
	return result
}

// Step is one traversed relation on a resolved path.
type Step struct {
	Relation *Relation
	Model    *Model
}

// ResolvedPath is the outcome of walking a relationship path: the relations
// crossed in order, then the terminal field. A path ending on a relation
// name resolves to the relation's local key column.
type ResolvedPath struct {
	Model *Model
	Steps []Step
	Field *Field
}

func (rp *ResolvedPath) String() string {
	parts := make([]string, 0, len(rp.Steps)+1)
	for _, s := range rp.Steps {
		parts = append(parts, s.Relation.Name)
	}
	if rp.Field != nil {
		parts = append(parts, rp.Field.Name)
	}
	return strings.Join(parts, "__")
}

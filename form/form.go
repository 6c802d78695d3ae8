// Package form carries the validation outcome of a filter binding: the
// bound fields with their raw and cleaned values, and the per-field errors
// collected during validation. Errors are data for rendering, never Go
// errors.
package form

import "encoding/json"

// Choice is one allowed value of a choice field.
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Field is one bound form field.
type Field struct {
	Name    string   `json:"name"`
	Label   string   `json:"label,omitempty"`
	Help    string   `json:"help,omitempty"`
	Widget  string   `json:"widget,omitempty"`
	Choices []Choice `json:"choices,omitempty"`
	Raw     string   `json:"raw"`
	Cleaned any      `json:"cleaned,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// Form is an ordered set of bound fields. The zero state is valid; fields
// accumulate errors during validation.
type Form struct {
	fields map[string]*Field
	order  []string
}

func New() *Form {
	return &Form{fields: make(map[string]*Field)}
}

// AddField appends a field, replacing any previous field of the same name
// in place.
func (f *Form) AddField(field *Field) {
	if _, exists := f.fields[field.Name]; !exists {
		f.order = append(f.order, field.Name)
	}
	f.fields[field.Name] = field
}

func (f *Form) Field(name string) (*Field, bool) {
	field, ok := f.fields[name]
	return field, ok
}

// Fields returns the fields in the order they were added.
func (f *Form) Fields() []*Field {
	result := make([]*Field, 0, len(f.order))
	for _, name := range f.order {
		result = append(result, f.fields[name])
	}
	return result
}

// AddError records a validation error against a field. Unknown names are
// registered as bare fields so the error is never dropped.
func (f *Form) AddError(name, message string) {
	field, ok := f.fields[name]
	if !ok {
		field = &Field{Name: name}
		f.AddField(field)
	}
	field.Errors = append(field.Errors, message)
}

// SetCleaned stores the validated value of a field.
func (f *Form) SetCleaned(name string, value any) {
	if field, ok := f.fields[name]; ok {
		field.Cleaned = value
	}
}

// CleanedValue returns the validated value of a field, if validation
// produced one.
func (f *Form) CleanedValue(name string) (any, bool) {
	field, ok := f.fields[name]
	if !ok || field.Cleaned == nil {
		return nil, false
	}
	return field.Cleaned, true
}

// IsValid reports whether no field has errors.
func (f *Form) IsValid() bool {
	for _, field := range f.fields {
		if len(field.Errors) > 0 {
			return false
		}
	}
	return true
}

// Errors returns the per-field error messages, keyed by field name.
func (f *Form) Errors() map[string][]string {
	result := make(map[string][]string)
	for name, field := range f.fields {
		if len(field.Errors) > 0 {
			result[name] = field.Errors
		}
	}
	return result
}

// MarshalJSON renders the form for API responses: ordered fields plus the
// aggregate error map.
func (f *Form) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Valid  bool                `json:"valid"`
		Fields []*Field            `json:"fields"`
		Errors map[string][]string `json:"errors,omitempty"`
	}{
		Valid:  f.IsValid(),
		Fields: f.Fields(),
		Errors: f.Errors(),
	})
}

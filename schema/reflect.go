package schema

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
)

var timeType = reflect.TypeOf(time.Time{})

// FromStruct derives a model descriptor from a tagged struct. Column names
// come from `db` tags (the sqlx convention), field names default to the
// snake_cased Go name, and the `filterset` tag refines both:
//
//	Price    float64    `db:"price"`
//	Release  *time.Time `db:"release_date" filterset:"kind=date"`
//	Category *Category  `db:"-" filterset:"rel=Category,local=category_id"`
//
// Pointer fields are nullable. Fields tagged `filterset:"-"`, fields of
// unsupported types, and fields tagged `db:"-"` without a relation mapping
// are skipped.
func FromStruct(name, table string, v any) (*Model, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model %s: expected a struct, got %v", name, reflect.TypeOf(v))
	}

	m := NewModel(name, table)

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		opts := parseTag(sf.Tag.Get("filterset"))
		if opts.skip {
			continue
		}

		fieldName := opts.name
		if fieldName == "" {
			fieldName = toSnake(sf.Name)
		}

		if opts.rel != "" {
			local := opts.local
			if local == "" {
				local = fieldName + "_id"
			}
			m.AddRelation(Relation{
				Name:         fieldName,
				Target:       opts.rel,
				LocalColumn:  local,
				RemoteColumn: opts.remote,
			})
			continue
		}

		ft := sf.Type
		nullable := false
		if ft.Kind() == reflect.Ptr {
			nullable = true
			ft = ft.Elem()
		}

		kind := opts.kind
		if kind == KindInvalid {
			kind = kindOf(ft)
		}
		if kind == KindInvalid {
			continue
		}

		column := sf.Tag.Get("db")
		if column == "-" {
			// Not a column under the db-tag convention.
			continue
		}
		if column == "" {
			column = fieldName
		}

		m.AddField(Field{
			Name:     fieldName,
			Column:   column,
			Kind:     kind,
			Nullable: nullable || opts.nullable,
		})
	}

	return m, nil
}

func kindOf(t reflect.Type) Kind {
	if t == timeType {
		return KindTime
	}
	switch t.Kind() {
	case reflect.String:
		return KindString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInt
	case reflect.Float32, reflect.Float64:
		return KindFloat
	case reflect.Bool:
		return KindBool
	default:
		return KindInvalid
	}
}

type tagOptions struct {
	skip     bool
	name     string
	kind     Kind
	rel      string
	local    string
	remote   string
	nullable bool
}

func parseTag(tag string) tagOptions {
	var opts tagOptions
	if tag == "" {
		return opts
	}
	if tag == "-" {
		opts.skip = true
		return opts
	}

	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		key, value, _ := strings.Cut(part, "=")
		switch key {
		case "name":
			opts.name = value
		case "kind":
			if k, err := ParseKind(value); err == nil {
				opts.kind = k
			}
		case "rel":
			opts.rel = value
		case "local":
			opts.local = value
		case "remote":
			opts.remote = value
		case "nullable":
			opts.nullable = true
		}
	}
	return opts
}

func toSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (prevLower || nextLower) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

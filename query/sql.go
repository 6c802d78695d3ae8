package query

import (
	"fmt"
	"strings"

	"github.com/querykit/filterset/lookup"
	"github.com/querykit/filterset/schema"
	"github.com/rs/zerolog"
)

// Clause is an encoded query fragment: join clauses, a WHERE condition
// with ? placeholders plus its arguments, and an ORDER BY list. Callers
// rebind placeholders for their driver, e.g. with sqlx.Rebind.
type Clause struct {
	Joins   []string
	Where   string
	Args    []any
	OrderBy string
}

func (c *Clause) Empty() bool {
	return c.Where == "" && len(c.Joins) == 0 && c.OrderBy == ""
}

// SQLEncoder renders query specifications as PostgreSQL text. Relationship
// paths become LEFT JOINs with aliases derived from the path, so the same
// relation is joined once however many conditions traverse it.
type SQLEncoder struct {
	registry   *schema.Registry
	transforms map[string]func(string) string
	log        zerolog.Logger
}

func NewSQLEncoder(registry *schema.Registry, log zerolog.Logger) *SQLEncoder {
	return &SQLEncoder{
		registry: registry,
		transforms: map[string]func(string) string{
			lookup.Year:  func(col string) string { return fmt.Sprintf("EXTRACT(YEAR FROM %s)", col) },
			lookup.Month: func(col string) string { return fmt.Sprintf("EXTRACT(MONTH FROM %s)", col) },
			lookup.Day:   func(col string) string { return fmt.Sprintf("EXTRACT(DAY FROM %s)", col) },
			lookup.Date:  func(col string) string { return fmt.Sprintf("CAST(%s AS DATE)", col) },
		},
		log: log,
	}
}

// RegisterTransform adds or replaces the SQL form of a transform.
func (e *SQLEncoder) RegisterTransform(name string, fn func(column string) string) {
	e.transforms[name] = fn
}

// Encode renders the specification for the named model.
func (e *SQLEncoder) Encode(modelName string, spec Spec) (*Clause, error) {
	model, err := e.registry.Get(modelName)
	if err != nil {
		return nil, err
	}

	st := &sqlState{
		enc:     e,
		model:   model,
		aliases: make(map[string]string),
		used:    map[string]bool{model.Table: true},
	}

	clause := &Clause{}
	if spec.Root != nil {
		clause.Where, clause.Args, err = st.encode(spec.Root)
		if err != nil {
			return nil, err
		}
	}

	terms := make([]string, 0, len(spec.Ordering))
	for _, ord := range spec.Ordering {
		column, err := st.columnFor(ord.Path)
		if err != nil {
			return nil, fmt.Errorf("ordering: %w", err)
		}
		direction := "ASC"
		if ord.Desc {
			direction = "DESC"
		}
		terms = append(terms, column+" "+direction)
	}
	clause.OrderBy = strings.Join(terms, ", ")
	clause.Joins = st.joins

	e.log.Debug().
		Str("model", modelName).
		Str("where", clause.Where).
		Int("joins", len(clause.Joins)).
		Msg("Encoded query specification")

	return clause, nil
}

// SelectSQL renders a complete SELECT over the model's table.
func (e *SQLEncoder) SelectSQL(modelName string, spec Spec) (string, []any, error) {
	clause, err := e.Encode(modelName, spec)
	if err != nil {
		return "", nil, err
	}
	model, err := e.registry.Get(modelName)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if spec.Distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(model.Table + ".* FROM " + model.Table)
	for _, join := range clause.Joins {
		b.WriteString(" " + join)
	}
	if clause.Where != "" {
		b.WriteString(" WHERE " + clause.Where)
	}
	if clause.OrderBy != "" {
		b.WriteString(" ORDER BY " + clause.OrderBy)
	}
	return b.String(), clause.Args, nil
}

// CountSQL renders the matching COUNT query, without ordering.
func (e *SQLEncoder) CountSQL(modelName string, spec Spec) (string, []any, error) {
	clause, err := e.Encode(modelName, Spec{Root: spec.Root})
	if err != nil {
		return "", nil, err
	}
	model, err := e.registry.Get(modelName)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM " + model.Table)
	for _, join := range clause.Joins {
		b.WriteString(" " + join)
	}
	if clause.Where != "" {
		b.WriteString(" WHERE " + clause.Where)
	}
	return b.String(), clause.Args, nil
}

type sqlState struct {
	enc     *SQLEncoder
	model   *schema.Model
	aliases map[string]string
	used    map[string]bool
	joins   []string
}

func (st *sqlState) encode(p Predicate) (string, []any, error) {
	switch node := p.(type) {
	case *Cond:
		return st.cond(node)
	case *Group:
		parts := make([]string, 0, len(node.Preds))
		var args []any
		for _, child := range node.Preds {
			sql, childArgs, err := st.encode(child)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			args = append(args, childArgs...)
		}
		if len(parts) == 1 {
			return parts[0], args, nil
		}
		sep := ") " + node.Op.String() + " ("
		return "(" + strings.Join(parts, sep) + ")", args, nil
	case *Not:
		sql, args, err := st.encode(node.Pred)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + sql + ")", args, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate %T", p)
	}
}

func (st *sqlState) cond(c *Cond) (string, []any, error) {
	column, err := st.columnFor(c.Path)
	if err != nil {
		return "", nil, err
	}

	for _, name := range c.Transforms {
		fn, ok := st.enc.transforms[name]
		if !ok {
			return "", nil, fmt.Errorf("transform %s has no SQL form", name)
		}
		column = fn(column)
	}

	sql, args, err := encodeLookup(column, c.Lookup, c.Value)
	if err != nil {
		return "", nil, err
	}
	if c.Exclude {
		sql = "NOT (" + sql + ")"
	}
	return sql, args, nil
}

// columnFor resolves a path, registering LEFT JOINs for every traversed
// relation, and returns the qualified column reference.
func (st *sqlState) columnFor(path []string) (string, error) {
	rp, err := st.enc.registry.Resolve(st.model.Name, path)
	if err != nil {
		return "", err
	}

	source := st.model.Table
	key := ""
	for _, step := range rp.Steps {
		if key == "" {
			key = step.Relation.Name
		} else {
			key = key + "__" + step.Relation.Name
		}
		alias, ok := st.aliases[key]
		if !ok {
			base := strings.ReplaceAll(key, "__", "_")
			alias = base
			// Distinct paths can flatten to the same name; number the
			// later ones.
			for n := 2; st.used[alias]; n++ {
				alias = fmt.Sprintf("%s_%d", base, n)
			}
			st.used[alias] = true
			st.aliases[key] = alias
			st.joins = append(st.joins, fmt.Sprintf("LEFT JOIN %s AS %s ON %s.%s = %s.%s",
				step.Model.Table, alias,
				alias, step.Relation.RemoteColumn,
				source, step.Relation.LocalColumn))
		}
		source = alias
	}

	return source + "." + rp.Field.Column, nil
}

func encodeLookup(column, name string, value any) (string, []any, error) {
	switch name {
	case lookup.Exact:
		return column + " = ?", []any{value}, nil
	case lookup.IExact:
		return "LOWER(" + column + ") = LOWER(?)", []any{value}, nil
	case lookup.Contains, lookup.IContains:
		return likeClause(column, name == lookup.IContains, "%"+escapeLike(stringValue(value))+"%")
	case lookup.StartsWith, lookup.IStartsWith:
		return likeClause(column, name == lookup.IStartsWith, escapeLike(stringValue(value))+"%")
	case lookup.EndsWith, lookup.IEndsWith:
		return likeClause(column, name == lookup.IEndsWith, "%"+escapeLike(stringValue(value)))
	case lookup.GT:
		return column + " > ?", []any{value}, nil
	case lookup.GTE:
		return column + " >= ?", []any{value}, nil
	case lookup.LT:
		return column + " < ?", []any{value}, nil
	case lookup.LTE:
		return column + " <= ?", []any{value}, nil
	case lookup.In:
		values, ok := value.([]any)
		if !ok || len(values) == 0 {
			return "", nil, fmt.Errorf("lookup in requires a value list, got %T", value)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		return column + " IN (" + placeholders + ")", values, nil
	case lookup.Range:
		values, ok := value.([]any)
		if !ok || len(values) != 2 {
			return "", nil, fmt.Errorf("lookup range requires two values, got %T", value)
		}
		// Inclusive on both ends, like SQL BETWEEN.
		return column + " BETWEEN ? AND ?", values, nil
	case lookup.IsNull:
		isNull, ok := value.(bool)
		if !ok {
			return "", nil, fmt.Errorf("lookup isnull requires a boolean, got %T", value)
		}
		if isNull {
			return column + " IS NULL", nil, nil
		}
		return column + " IS NOT NULL", nil, nil
	case lookup.Regex:
		return column + " ~ ?", []any{value}, nil
	case lookup.IRegex:
		return column + " ~* ?", []any{value}, nil
	default:
		return "", nil, fmt.Errorf("lookup %s has no SQL form", name)
	}
}

func likeClause(column string, fold bool, pattern string) (string, []any, error) {
	op := "LIKE"
	if fold {
		op = "ILIKE"
	}
	return column + " " + op + " ?", []any{pattern}, nil
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// escapeLike escapes LIKE wildcards in user input so they match literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

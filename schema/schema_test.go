package schema

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()

	reg := NewRegistry(zerolog.Nop())

	product := NewModel("Product", "products").
		AddField(Field{Name: "name", Kind: KindString}).
		AddField(Field{Name: "price", Kind: KindFloat}).
		AddField(Field{Name: "created_at", Column: "created_at", Kind: KindTime}).
		AddRelation(Relation{Name: "category", Target: "Category"})
	reg.Register(product)

	category := NewModel("Category", "categories").
		AddField(Field{Name: "name", Kind: KindString}).
		AddRelation(Relation{Name: "parent", Target: "Category", LocalColumn: "parent_id"})
	reg.Register(category)

	return reg
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in       string
		expected Kind
		wantErr  bool
	}{
		{"string", KindString, false},
		{"Integer", KindInt, false},
		{"float", KindFloat, false},
		{"boolean", KindBool, false},
		{"datetime", KindTime, false},
		{"date", KindDate, false},
		{"blob", KindInvalid, true},
	}

	for _, tt := range tests {
		k, err := ParseKind(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.expected, k, tt.in)
	}
}

func TestResolveField(t *testing.T) {
	reg := testRegistry(t)

	rp, err := reg.Resolve("Product", []string{"price"})
	require.NoError(t, err)
	assert.Empty(t, rp.Steps)
	assert.Equal(t, "price", rp.Field.Name)
	assert.Equal(t, KindFloat, rp.Field.Kind)
}

func TestResolveRelationPath(t *testing.T) {
	reg := testRegistry(t)

	rp, err := reg.Resolve("Product", []string{"category", "name"})
	require.NoError(t, err)
	require.Len(t, rp.Steps, 1)
	assert.Equal(t, "category", rp.Steps[0].Relation.Name)
	assert.Equal(t, "categories", rp.Steps[0].Model.Table)
	assert.Equal(t, "name", rp.Field.Name)
	assert.Equal(t, "category__name", rp.String())
}

func TestResolveNestedRelationPath(t *testing.T) {
	reg := testRegistry(t)

	rp, err := reg.Resolve("Product", []string{"category", "parent", "name"})
	require.NoError(t, err)
	require.Len(t, rp.Steps, 2)
	assert.Equal(t, "parent_id", rp.Steps[1].Relation.LocalColumn)
	assert.Equal(t, "name", rp.Field.Name)
}

func TestResolveTrailingRelation(t *testing.T) {
	reg := testRegistry(t)

	// A path ending on a relation filters on the foreign key column.
	rp, err := reg.Resolve("Product", []string{"category"})
	require.NoError(t, err)
	assert.Empty(t, rp.Steps)
	assert.Equal(t, "category_id", rp.Field.Column)
	assert.Equal(t, KindInt, rp.Field.Kind)
}

func TestResolveErrors(t *testing.T) {
	reg := testRegistry(t)

	_, err := reg.Resolve("Order", []string{"total"})
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = reg.Resolve("Product", []string{"colour"})
	assert.ErrorIs(t, err, ErrUnknownField)

	// A plain field cannot be traversed further.
	_, err = reg.Resolve("Product", []string{"price", "amount"})
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = reg.Resolve("Product", nil)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestRegistryNames(t *testing.T) {
	reg := testRegistry(t)
	assert.Equal(t, []string{"Category", "Product"}, reg.Names())
}

func TestFromStruct(t *testing.T) {
	type Category struct {
		ID   int64  `db:"id"`
		Name string `db:"name"`
	}
	type Product struct {
		ID          int64      `db:"id"`
		Name        string     `db:"name"`
		Price       float64    `db:"price"`
		Available   bool       `db:"available"`
		CreatedAt   time.Time  `db:"created_at"`
		ReleaseDate *time.Time `db:"release_date" filterset:"kind=date"`
		CategoryID  int64      `db:"category_id"`
		Category    *Category  `db:"-" filterset:"rel=Category,local=category_id"`
		DisplayName string     `db:"-"`
		internal    string
		Ignored     string `filterset:"-"`
	}

	m, err := FromStruct("Product", "products", Product{})
	require.NoError(t, err)

	f, ok := m.Field("price")
	require.True(t, ok)
	assert.Equal(t, KindFloat, f.Kind)
	assert.Equal(t, "price", f.Column)

	f, ok = m.Field("created_at")
	require.True(t, ok)
	assert.Equal(t, KindTime, f.Kind)

	f, ok = m.Field("release_date")
	require.True(t, ok)
	assert.Equal(t, KindDate, f.Kind)
	assert.True(t, f.Nullable)

	r, ok := m.Relation("category")
	require.True(t, ok)
	assert.Equal(t, "Category", r.Target)
	assert.Equal(t, "category_id", r.LocalColumn)
	assert.Equal(t, "id", r.RemoteColumn)

	_, ok = m.Field("internal")
	assert.False(t, ok)
	_, ok = m.Field("ignored")
	assert.False(t, ok)
	// db:"-" marks a non-column; without a relation mapping the field is
	// not filterable.
	_, ok = m.Field("display_name")
	assert.False(t, ok)

	names := make([]string, 0)
	for _, f := range m.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"id", "name", "price", "available", "created_at", "release_date", "category_id"}, names)
}

func TestFromStructRejectsNonStruct(t *testing.T) {
	_, err := FromStruct("X", "x", 42)
	assert.Error(t, err)
}

func TestToSnake(t *testing.T) {
	tests := map[string]string{
		"Name":       "name",
		"CreatedAt":  "created_at",
		"CategoryID": "category_id",
		"ID":         "id",
		"HTTPStatus": "http_status",
	}
	for in, expected := range tests {
		assert.Equal(t, expected, toSnake(in), in)
	}
}

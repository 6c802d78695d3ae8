package filterset

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/querykit/filterset/datasource"
	"github.com/querykit/filterset/form"
	"github.com/querykit/filterset/lookup"
	"github.com/querykit/filterset/query"
	"github.com/querykit/filterset/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *schema.Registry {
	reg := schema.NewRegistry(zerolog.Nop())

	product := schema.NewModel("Product", "products").
		AddField(schema.Field{Name: "id", Kind: schema.KindInt}).
		AddField(schema.Field{Name: "name", Kind: schema.KindString}).
		AddField(schema.Field{Name: "price", Kind: schema.KindFloat}).
		AddField(schema.Field{Name: "in_stock", Kind: schema.KindBool}).
		AddField(schema.Field{Name: "release_date", Kind: schema.KindTime, Nullable: true}).
		AddRelation(schema.Relation{Name: "category", Target: "Category"})
	reg.Register(product)

	category := schema.NewModel("Category", "categories").
		AddField(schema.Field{Name: "id", Kind: schema.KindInt}).
		AddField(schema.Field{Name: "name", Kind: schema.KindString})
	reg.Register(category)

	return reg
}

func testProducts() []query.Record {
	accessories := query.Record{"id": int64(1), "name": "Accessories"}
	displays := query.Record{"id": int64(2), "name": "Displays"}

	return []query.Record{
		{
			"id": int64(1), "name": "Basic Mouse", "price": 10.0, "in_stock": true,
			"release_date": time.Date(2021, 5, 1, 9, 0, 0, 0, time.UTC),
			"category_id":  int64(1), "category": accessories,
		},
		{
			"id": int64(2), "name": "Ergo Keyboard", "price": 25.0, "in_stock": true,
			"release_date": time.Date(2022, 6, 15, 9, 0, 0, 0, time.UTC),
			"category_id":  int64(1), "category": accessories,
		},
		{
			"id": int64(3), "name": "Gaming Monitor", "price": 50.0, "in_stock": false,
			"release_date": time.Date(2023, 1, 20, 9, 0, 0, 0, time.UTC),
			"category_id":  int64(2), "category": displays,
		},
		{
			"id": int64(4), "name": "Studio Display", "price": 180.0, "in_stock": false,
			"release_date": nil,
			"category_id":  int64(2), "category": displays,
		},
	}
}

func testBase(reg *schema.Registry) datasource.Collection {
	matcher := query.NewMatcher(reg, zerolog.Nop())
	return datasource.NewMemory(matcher, "Product", testProducts())
}

func bind(fs *FilterSet, base datasource.Collection, pairs ...string) *Binding {
	params := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		params.Set(pairs[i], pairs[i+1])
	}
	return fs.Bind(context.Background(), params, base)
}

func resultNames(t *testing.T, b *Binding) []string {
	t.Helper()
	rows, err := b.Result().All(context.Background())
	require.NoError(t, err)
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r["name"].(string))
	}
	return out
}

func TestFieldsGenerateExactFilters(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Fields("name", "price", "category__name").
		Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "price", "category__name"}, fs.FilterNames())

	f, ok := fs.Filter("price")
	require.True(t, ok)
	assert.Equal(t, "price", f.Field)
	assert.Equal(t, "exact", f.Expr)
	assert.Equal(t, schema.KindFloat, f.Kind)
}

func TestFieldLookupsNameFilters(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		FieldLookups("price", "exact", "gt", "lt").
		FieldLookups("release_date", "year__gt").
		Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"price", "price__gt", "price__lt", "release_date__year__gt"}, fs.FilterNames())

	f, ok := fs.Filter("release_date__year__gt")
	require.True(t, ok)
	assert.Equal(t, "release_date", f.Field)
	assert.Equal(t, "year__gt", f.Expr)
	// The year transform makes this an integer filter even though the
	// column holds timestamps.
	assert.Equal(t, schema.KindInt, f.Kind)
}

func TestDeclaredReplacesGeneratedInPlace(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Fields("name", "price", "in_stock").
		Declare(Filter{Name: "price", Expr: "gte", Label: "Minimum price"}).
		Build()
	require.NoError(t, err)

	// Same name, same slot, declared behavior.
	assert.Equal(t, []string{"name", "price", "in_stock"}, fs.FilterNames())
	f, ok := fs.Filter("price")
	require.True(t, ok)
	assert.Equal(t, "gte", f.Expr)
	assert.Equal(t, "Minimum price", f.Label)

	base := testBase(testRegistry())
	assert.Equal(t, []string{"Gaming Monitor", "Studio Display"}, resultNames(t, bind(fs, base, "price", "50")))
}

func TestDeclaredNameSplitsIntoFieldAndLookup(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Declare(
			Filter{Name: "price__gt"},
			Filter{Name: "category__name__icontains"},
			Filter{Name: "release_date__year"},
		).
		Build()
	require.NoError(t, err)

	f, ok := fs.Filter("price__gt")
	require.True(t, ok)
	assert.Equal(t, "price", f.Field)
	assert.Equal(t, "gt", f.Expr)

	f, ok = fs.Filter("category__name__icontains")
	require.True(t, ok)
	assert.Equal(t, "category__name", f.Field)
	assert.Equal(t, "icontains", f.Expr)

	f, ok = fs.Filter("release_date__year")
	require.True(t, ok)
	assert.Equal(t, "release_date", f.Field)
	assert.Equal(t, "year__exact", f.Expr)
	assert.Equal(t, schema.KindInt, f.Kind)
}

func TestExplicitFieldSuppressesNameSplitting(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Declare(Filter{Name: "min_price", Field: "price", Expr: "gte"}).
		Build()
	require.NoError(t, err)

	base := testBase(testRegistry())
	assert.Equal(t, []string{"Gaming Monitor", "Studio Display"}, resultNames(t, bind(fs, base, "min_price", "50")))
}

func TestIsNullValidatesBooleanInput(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		FieldLookups("release_date", "isnull").
		Build()
	require.NoError(t, err)
	base := testBase(testRegistry())

	// The filter takes booleans even though the field holds timestamps.
	for raw, want := range map[string][]string{
		"true":  {"Studio Display"},
		"1":     {"Studio Display"},
		"false": {"Basic Mouse", "Ergo Keyboard", "Gaming Monitor"},
		"0":     {"Basic Mouse", "Ergo Keyboard", "Gaming Monitor"},
	} {
		b := bind(fs, base, "release_date__isnull", raw)
		require.True(t, b.Form().IsValid(), "input %q", raw)
		assert.Equal(t, want, resultNames(t, b), "input %q", raw)
	}

	b := bind(fs, base, "release_date__isnull", "yes")
	assert.False(t, b.Form().IsValid())
	assert.Equal(t, []string{"Enter a boolean value: true, false, 1 or 0"}, b.Form().Errors()["release_date__isnull"])
}

func TestInFilterSplitsAndCoerces(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		FieldLookups("id", "in").
		Build()
	require.NoError(t, err)
	base := testBase(testRegistry())

	b := bind(fs, base, "id__in", "1,3")
	require.True(t, b.Form().IsValid())
	assert.Equal(t, []string{"Basic Mouse", "Gaming Monitor"}, resultNames(t, b))

	cleaned, ok := b.Form().CleanedValue("id__in")
	require.True(t, ok)
	assert.Equal(t, []any{int64(1), int64(3)}, cleaned)

	// Empty items make the whole value malformed.
	b = bind(fs, base, "id__in", "1,,3")
	assert.False(t, b.Form().IsValid())
	assert.NotEmpty(t, b.Form().Errors()["id__in"])
}

func TestRangeFilterIsInclusive(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		FieldLookups("price", "range").
		Build()
	require.NoError(t, err)
	base := testBase(testRegistry())

	b := bind(fs, base, "price__range", "10,50")
	require.True(t, b.Form().IsValid())
	assert.Equal(t, []string{"Basic Mouse", "Ergo Keyboard", "Gaming Monitor"}, resultNames(t, b))

	b = bind(fs, base, "price__range", "10")
	assert.False(t, b.Form().IsValid())
	assert.Equal(t, []string{"Enter two valid values separated by a comma"}, b.Form().Errors()["price__range"])
}

func TestComparisonBoundsAreExclusive(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		FieldLookups("price", "gt", "lt").
		Build()
	require.NoError(t, err)
	base := testBase(testRegistry())

	// Records priced exactly 10 and exactly 50 fall outside (10, 50).
	b := bind(fs, base, "price__gt", "10", "price__lt", "50")
	require.True(t, b.Form().IsValid())
	assert.Equal(t, []string{"Ergo Keyboard"}, resultNames(t, b))
}

func TestMethodFilterDispatch(t *testing.T) {
	reg := testRegistry()
	cheap := func(ctx context.Context, name string, value any) (query.Predicate, error) {
		return query.NewCond("price", "lt", 30.0), nil
	}

	// Explicit Fn wins over everything else.
	fs, err := New("Product", reg).
		Declare(Filter{Name: "cheap", Fn: cheap}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"Basic Mouse", "Ergo Keyboard"}, resultNames(t, bind(fs, testBase(reg), "cheap", "1")))

	// Method names a registered handler.
	fs, err = New("Product", reg).
		Handle("filter_cheap", cheap).
		Declare(Filter{Name: "cheap", Method: "filter_cheap"}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"Basic Mouse", "Ergo Keyboard"}, resultNames(t, bind(fs, testBase(reg), "cheap", "1")))

	// Unregistered method falls back to the filter_<name> handler.
	fs, err = New("Product", reg).
		Handle("filter_cheap", cheap).
		Declare(Filter{Name: "cheap", Method: "missing"}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"Basic Mouse", "Ergo Keyboard"}, resultNames(t, bind(fs, testBase(reg), "cheap", "1")))

	// A bare declaration picks up filter_<name> on its own.
	fs, err = New("Product", reg).
		Handle("filter_cheap", cheap).
		Declare(Filter{Name: "cheap"}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"Basic Mouse", "Ergo Keyboard"}, resultNames(t, bind(fs, testBase(reg), "cheap", "1")))
}

func TestMethodFilterWithoutHandlerIsNoOp(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Declare(Filter{Name: "cheap", Method: "nowhere"}).
		Build()
	require.NoError(t, err)

	// Input is accepted and recorded but the collection is untouched.
	b := bind(fs, testBase(testRegistry()), "cheap", "1")
	assert.True(t, b.Form().IsValid())
	cleaned, ok := b.Form().CleanedValue("cheap")
	require.True(t, ok)
	assert.Equal(t, "1", cleaned)
	assert.Len(t, resultNames(t, b), 4)
}

func TestMethodFilterValueCoercion(t *testing.T) {
	var got any
	fs, err := New("Product", testRegistry()).
		Declare(Filter{Name: "max_price", Kind: schema.KindFloat, Fn: func(ctx context.Context, name string, value any) (query.Predicate, error) {
			got = value
			return query.NewCond("price", "lte", value), nil
		}}).
		Build()
	require.NoError(t, err)

	b := bind(fs, testBase(testRegistry()), "max_price", "25")
	require.True(t, b.Form().IsValid())
	assert.Equal(t, 25.0, got)
	assert.Equal(t, []string{"Basic Mouse", "Ergo Keyboard"}, resultNames(t, b))

	b = bind(fs, testBase(testRegistry()), "max_price", "cheap")
	assert.False(t, b.Form().IsValid())
	assert.Equal(t, []string{"Enter a number"}, b.Form().Errors()["max_price"])
}

func TestMethodFilterErrorBecomesFieldError(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Fields("in_stock").
		Declare(Filter{Name: "nearby", Fn: func(ctx context.Context, name string, value any) (query.Predicate, error) {
			return nil, errors.New("geocoding unavailable")
		}}).
		Build()
	require.NoError(t, err)

	// The handler failure lands on its own field; the other filter still
	// applies under the default policy.
	b := bind(fs, testBase(testRegistry()), "nearby", "berlin", "in_stock", "true")
	assert.False(t, b.Form().IsValid())
	assert.Equal(t, []string{"geocoding unavailable"}, b.Form().Errors()["nearby"])
	assert.Equal(t, []string{"Basic Mouse", "Ergo Keyboard"}, resultNames(t, b))
}

func TestShorthandUnknownFieldFailsBuild(t *testing.T) {
	_, err := New("Product", testRegistry()).Fields("colour").Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrUnknownField)

	_, err = New("Product", testRegistry()).FieldLookups("name", "bogus").Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, lookup.ErrUnknownLookup)

	// A lookup that cannot apply to the field kind is a build error too.
	_, err = New("Product", testRegistry()).FieldLookups("price", "icontains").Build()
	require.Error(t, err)
}

func TestDeclaredUnknownFieldSurfacesAtQueryTime(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Fields("name").
		Declare(Filter{Name: "colour"}).
		Build()
	require.NoError(t, err)
	base := testBase(testRegistry())

	// Untouched, the broken filter stays dormant.
	b := bind(fs, base, "name", "Basic Mouse")
	assert.Equal(t, []string{"Basic Mouse"}, resultNames(t, b))

	// A parameter hitting it turns the result into an error, loudly.
	b = bind(fs, base, "colour", "red")
	_, err = b.Result().All(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrUnknownField)
	assert.Contains(t, err.Error(), "colour")

	_, err = b.Result().Count(context.Background())
	assert.Error(t, err)
}

func TestDeclaredUnknownLookupSurfacesAtQueryTime(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Declare(Filter{Name: "price", Expr: "almost"}).
		Build()
	require.NoError(t, err)

	b := bind(fs, testBase(testRegistry()), "price", "10")
	_, err = b.Result().All(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, lookup.ErrUnknownLookup)
}

func TestPolicySkipInvalidAppliesValidFilters(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Fields("in_stock").
		FieldLookups("price", "gt").
		Build()
	require.NoError(t, err)

	b := bind(fs, testBase(testRegistry()), "price__gt", "lots", "in_stock", "false")
	assert.False(t, b.Form().IsValid())
	assert.Equal(t, []string{"Enter a number"}, b.Form().Errors()["price__gt"])
	// The boolean filter still narrows the result.
	assert.Equal(t, []string{"Gaming Monitor", "Studio Display"}, resultNames(t, b))
}

func TestPolicyEmptyOnError(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Fields("in_stock").
		FieldLookups("price", "gt").
		Policy(PolicyEmptyOnError).
		Build()
	require.NoError(t, err)

	b := bind(fs, testBase(testRegistry()), "price__gt", "lots", "in_stock", "false")
	rows, err := b.Result().All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)

	count, err := b.Result().Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRequiredFilter(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Declare(Filter{Name: "name", Required: true}).
		Build()
	require.NoError(t, err)

	b := bind(fs, testBase(testRegistry()))
	assert.False(t, b.Form().IsValid())
	assert.Equal(t, []string{"This field is required"}, b.Form().Errors()["name"])

	b = bind(fs, testBase(testRegistry()), "name", "Basic Mouse")
	assert.True(t, b.Form().IsValid())
}

func TestRequiredUnknownFieldSurfacesWithoutInput(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Declare(Filter{Name: "colour", Required: true}).
		Build()
	require.NoError(t, err)

	// Required means every request uses the filter, so the configuration
	// error is not masked by the missing-value message.
	b := bind(fs, testBase(testRegistry()))
	_, err = b.Result().All(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrUnknownField)
	assert.Contains(t, err.Error(), "colour")
	assert.Empty(t, b.Form().Errors()["colour"])
}

func TestChoicesRestrictInput(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Declare(Filter{Name: "category__name", Choices: []form.Choice{
			{Value: "Accessories", Label: "Accessories"},
			{Value: "Displays", Label: "Displays"},
		}}).
		Build()
	require.NoError(t, err)
	base := testBase(testRegistry())

	b := bind(fs, base, "category__name", "Displays")
	require.True(t, b.Form().IsValid())
	assert.Equal(t, []string{"Gaming Monitor", "Studio Display"}, resultNames(t, b))

	b = bind(fs, base, "category__name", "Cables")
	assert.False(t, b.Form().IsValid())
	assert.Equal(t, []string{"Select a valid choice"}, b.Form().Errors()["category__name"])
}

func TestDefaultChoicesAreRenderOnly(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Fields("in_stock").
		FieldLookups("release_date", "isnull").
		Build()
	require.NoError(t, err)
	base := testBase(testRegistry())

	// The yes/no select attached by the kind default is render metadata:
	// boolean literals outside it still validate.
	b := bind(fs, base, "in_stock", "1")
	require.True(t, b.Form().IsValid())
	assert.Equal(t, []string{"Basic Mouse", "Ergo Keyboard"}, resultNames(t, b))

	field, ok := b.Form().Field("in_stock")
	require.True(t, ok)
	assert.Equal(t, boolChoices, field.Choices)

	b = bind(fs, base, "release_date__isnull", "1")
	require.True(t, b.Form().IsValid())
	assert.Equal(t, []string{"Studio Display"}, resultNames(t, b))
}

func TestOverrideChangesKindDefault(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Override(schema.KindString, Default{Lookup: lookup.IContains, Widget: "search"}).
		Fields("name", "price").
		Build()
	require.NoError(t, err)

	f, ok := fs.Filter("name")
	require.True(t, ok)
	assert.Equal(t, "icontains", f.Expr)
	assert.Equal(t, "search", f.Widget)

	// Other kinds keep the built-in default.
	f, ok = fs.Filter("price")
	require.True(t, ok)
	assert.Equal(t, "exact", f.Expr)

	b := bind(fs, testBase(testRegistry()), "name", "display")
	assert.Equal(t, []string{"Studio Display"}, resultNames(t, b))
}

func TestOrderingParameter(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Fields("in_stock").
		OrderBy("ordering", "price", "name").
		Build()
	require.NoError(t, err)
	base := testBase(testRegistry())

	b := bind(fs, base, "ordering", "-price")
	require.True(t, b.Form().IsValid())
	assert.Equal(t, []string{"Studio Display", "Gaming Monitor", "Ergo Keyboard", "Basic Mouse"}, resultNames(t, b))

	b = bind(fs, base, "ordering", "release_date")
	assert.False(t, b.Form().IsValid())
	assert.Equal(t, []string{`"release_date" is not an allowed ordering field`}, b.Form().Errors()["ordering"])
}

func TestOrderingAllowedFieldsValidatedAtBuild(t *testing.T) {
	_, err := New("Product", testRegistry()).
		OrderBy("ordering", "colour").
		Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrUnknownField)
}

func TestUnknownParameterIsIgnored(t *testing.T) {
	fs, err := New("Product", testRegistry()).Fields("name").Build()
	require.NoError(t, err)

	b := bind(fs, testBase(testRegistry()), "flavour", "salty")
	assert.True(t, b.Form().IsValid())
	assert.Len(t, resultNames(t, b), 4)
}

func TestExcludeFilter(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Declare(Filter{Name: "category__name", Exclude: true}).
		Build()
	require.NoError(t, err)

	b := bind(fs, testBase(testRegistry()), "category__name", "Displays")
	assert.Equal(t, []string{"Basic Mouse", "Ergo Keyboard"}, resultNames(t, b))
}

func TestDistinctFlagPropagates(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Declare(Filter{Name: "category__name", Distinct: true}).
		Build()
	require.NoError(t, err)

	b := bind(fs, testBase(testRegistry()), "category__name", "Displays")
	spec, err := b.Spec()
	require.NoError(t, err)
	assert.True(t, spec.Distinct)
}

func TestBaseCollectionFallback(t *testing.T) {
	reg := testRegistry()
	fs, err := New("Product", reg).
		Fields("in_stock").
		Base(testBase(reg)).
		Build()
	require.NoError(t, err)

	b := bind(fs, nil, "in_stock", "true")
	assert.Equal(t, []string{"Basic Mouse", "Ergo Keyboard"}, resultNames(t, b))

	fs, err = New("Product", reg).Fields("in_stock").Build()
	require.NoError(t, err)
	_, err = bind(fs, nil).Result().All(context.Background())
	assert.ErrorIs(t, err, ErrNoCollection)
}

func TestBuildUnknownModel(t *testing.T) {
	_, err := New("Widget", testRegistry()).Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrUnknownModel)
}

func TestFormCarriesFieldMetadata(t *testing.T) {
	fs, err := New("Product", testRegistry()).
		Fields("in_stock").
		Declare(Filter{Name: "price__lte", Label: "Max price", Help: "Inclusive upper bound"}).
		Build()
	require.NoError(t, err)

	b := bind(fs, testBase(testRegistry()))
	field, ok := b.Form().Field("in_stock")
	require.True(t, ok)
	assert.Equal(t, "In stock", field.Label)
	assert.Equal(t, "select", field.Widget)
	assert.Equal(t, boolChoices, field.Choices)

	field, ok = b.Form().Field("price__lte")
	require.True(t, ok)
	assert.Equal(t, "Max price", field.Label)
	assert.Equal(t, "Inclusive upper bound", field.Help)
}
package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePredicateOperators(t *testing.T) {
	cases := map[string]Op{
		"name=left-pad":      OpEqual,
		"name!=left-pad":     OpNotEqual,
		"name<>left-pad":     OpNotEqualAlt,
		"downloads>=100":     OpGreaterEqual,
		"downloads<=100":     OpLessEqual,
		"downloads>100":      OpGreater,
		"downloads<100":      OpLess,
	}

	for expr, wantOp := range cases {
		pred, err := parsePredicate(expr)
		require.NoError(t, err, expr)
		assert.Equal(t, wantOp, pred.Op, expr)
	}
}

func TestParseFilterValueANDsWithinOneValue(t *testing.T) {
	expr, err := ParseFilterValue("name=left-pad&description=*pad*")
	require.NoError(t, err)
	require.Len(t, expr, 2)
	assert.Equal(t, "name", expr[0].Attribute)
	assert.Equal(t, "description", expr[1].Attribute)
}

func TestWildcardMatchesWithOtherMetacharsEscaped(t *testing.T) {
	pred, err := parsePredicate(`name=left-*`)
	require.NoError(t, err)

	assert.True(t, pred.Matches(func(string) (string, bool) { return "left-pad", true }))
	assert.False(t, pred.Matches(func(string) (string, bool) { return "right-pad", true }))
}

func TestNullLiteralTestsAbsence(t *testing.T) {
	pred, err := parsePredicate("description=null")
	require.NoError(t, err)

	assert.True(t, pred.Matches(func(string) (string, bool) { return "", false }))
	assert.False(t, pred.Matches(func(string) (string, bool) { return "present", true }))
}

func TestNumericCoercionForOrderedComparison(t *testing.T) {
	pred, err := parsePredicate("downloads>=100")
	require.NoError(t, err)

	assert.True(t, pred.Matches(func(string) (string, bool) { return "150", true }))
	assert.False(t, pred.Matches(func(string) (string, bool) { return "50", true }))
}

func TestFilterCompositionLawORAcrossParams(t *testing.T) {
	exprA, err := ParseFilterValue("name=left-pad")
	require.NoError(t, err)

	exprB, err := ParseFilterValue("name=right-pad")
	require.NoError(t, err)

	get := func(name string) func(string) (string, bool) {
		return func(attr string) (string, bool) {
			if attr == "name" {
				return name, true
			}

			return "", false
		}
	}

	assert.True(t, AnyExpressionMatches([]Expression{exprA, exprB}, get("left-pad")))
	assert.True(t, AnyExpressionMatches([]Expression{exprA, exprB}, get("right-pad")))
	assert.False(t, AnyExpressionMatches([]Expression{exprA, exprB}, get("other")))
}

func TestMandatoryNameConstraint(t *testing.T) {
	withName, err := ParseFilterValue("name=left-pad")
	require.NoError(t, err)

	withoutName, err := ParseFilterValue("description=left")
	require.NoError(t, err)

	assert.True(t, AnyConstrainsName([]Expression{withName}))
	assert.False(t, AnyConstrainsName([]Expression{withoutName}))
	assert.False(t, AnyConstrainsName(nil))
}

func TestApplyCollectionReturnsNoticeWhenNameConstraintMissing(t *testing.T) {
	items := []Entity{fakeEntity{xid: "/noderegistries/npmjs.org/packages/left-pad", attrs: map[string]string{"name": "left-pad"}}}

	expr, err := ParseFilterValue("description=foo")
	require.NoError(t, err)

	result := ApplyCollection(items, Request{Filters: []Expression{expr}}, Options{NameIndexed: true})

	assert.Empty(t, result.Page)
	assert.Equal(t, 0, result.Total)
	assert.NotEmpty(t, result.Notice)
}

func TestApplyCollectionWildcardOnNameIndexedAdapterIsNonEmpty(t *testing.T) {
	items := []Entity{
		fakeEntity{xid: "/x/1", attrs: map[string]string{"name": "left-pad"}},
		fakeEntity{xid: "/x/2", attrs: map[string]string{"name": "right-pad"}},
	}

	expr, err := ParseFilterValue("name=*pad*")
	require.NoError(t, err)

	result := ApplyCollection(items, Request{Filters: []Expression{expr}}, Options{NameIndexed: true})

	assert.Len(t, result.Page, 2)
	assert.Empty(t, result.Notice)
}

func TestApplyCollectionSortsWithXIDTieBreak(t *testing.T) {
	items := []Entity{
		fakeEntity{xid: "/b", attrs: map[string]string{"name": "same"}},
		fakeEntity{xid: "/a", attrs: map[string]string{"name": "same"}},
	}

	sortSpec, err := ParseSort("name=asc")
	require.NoError(t, err)

	result := ApplyCollection(items, Request{Sort: sortSpec}, Options{})

	require.Len(t, result.Page, 2)
	assert.Equal(t, "/a", result.Page[0].XID())
	assert.Equal(t, "/b", result.Page[1].XID())
}

func TestApplyCollectionPaginationBounds(t *testing.T) {
	items := make([]Entity, 0, 125)
	for i := 0; i < 125; i++ {
		items = append(items, fakeEntity{xid: "/x/" + string(rune('a'+i%26)) + string(rune(i)), attrs: map[string]string{"name": "pkg"}})
	}

	pag, err := ParsePagination("50", "50")
	require.NoError(t, err)

	result := ApplyCollection(items, Request{Pagination: pag}, Options{BaseURL: "https://example.com/x"})

	assert.Len(t, result.Page, 50)
	assert.Equal(t, 125, result.Total)
	assert.Contains(t, result.Links, `rel="first"`)
	assert.Contains(t, result.Links, `rel="prev"`)
	assert.Contains(t, result.Links, `rel="next"`)
	assert.Contains(t, result.Links, `rel="last"`)
}

func TestApplyCollectionOutOfRangeOffsetIsEmptyNotError(t *testing.T) {
	items := []Entity{fakeEntity{xid: "/a", attrs: map[string]string{"name": "pkg"}}}

	pag, err := ParsePagination("10", "100")
	require.NoError(t, err)

	result := ApplyCollection(items, Request{Pagination: pag}, Options{BaseURL: "https://example.com/x"})

	assert.Empty(t, result.Page)
	assert.NotContains(t, result.Links, `rel="next"`)
}

func TestApplyCollectionNoLimitOmitsLinks(t *testing.T) {
	items := []Entity{fakeEntity{xid: "/a", attrs: map[string]string{"name": "pkg"}}}

	result := ApplyCollection(items, Request{}, Options{})

	assert.Empty(t, result.Links)
	assert.Len(t, result.Page, 1)
}

func TestParsePaginationRejectsInvalidValues(t *testing.T) {
	_, err := ParsePagination("0", "")
	require.Error(t, err)

	_, err = ParsePagination("", "-1")
	require.Error(t, err)
}

func TestParseInlineVariants(t *testing.T) {
	assert.True(t, ParseInline("*").All)
	assert.Equal(t, []string{"versions", "meta"}, ParseInline("versions,meta").Names)
	assert.True(t, ParseInline("2").All)
	assert.Equal(t, 2, ParseInline("2").Depth)
	assert.False(t, ParseInline("").Active())
}

type fakeEntity struct {
	xid   string
	attrs map[string]string
}

func (f fakeEntity) XID() string { return f.xid }

func (f fakeEntity) Attribute(path string) (string, bool) {
	v, ok := f.attrs[path]
	return v, ok
}

package nameindex

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildIndex(t *testing.T, names ...string) *Index {
	t.Helper()

	idx := New(nil)
	b := NewBuilder()

	for _, n := range names {
		b.Add(n)
	}

	idx.Refresh(b)

	return idx
}

func TestExistsIsCaseInsensitive(t *testing.T) {
	idx := buildIndex(t, "left-pad", "@scope/pkg")

	assert.True(t, idx.Exists("Left-Pad"))
	assert.True(t, idx.Exists("@scope/pkg"))
	assert.False(t, idx.Exists("right-pad"))
}

func TestRawNamePreservesOriginalCasing(t *testing.T) {
	idx := buildIndex(t, "Left-Pad")

	raw, ok := idx.RawName(normalize("Left-Pad"))
	require.True(t, ok)
	assert.Equal(t, "Left-Pad", raw)
}

func TestPrefixReturnsLexicographicMatches(t *testing.T) {
	idx := buildIndex(t, "left-pad", "left-trim", "right-pad")

	names := idx.Prefix("left-")
	require.Len(t, names, 2)
	assert.ElementsMatch(t, []string{"left-pad", "left-trim"}, names)
}

func TestSearchRanksByTrigramOverlap(t *testing.T) {
	idx := buildIndex(t, "left-pad", "right-pad", "unrelated")

	matches := idx.Search("pad")
	require.NotEmpty(t, matches)

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.RawName)
	}

	assert.Contains(t, names, "left-pad")
	assert.Contains(t, names, "right-pad")
	assert.NotContains(t, names, "unrelated")
}

func TestRefreshSwapsAtomically(t *testing.T) {
	idx := buildIndex(t, "left-pad")
	assert.True(t, idx.Exists("left-pad"))

	b := NewBuilder()
	b.Add("right-pad")
	idx.Refresh(b)

	assert.False(t, idx.Exists("left-pad"))
	assert.True(t, idx.Exists("right-pad"))
}

func TestAllReturnsLexicographicOrder(t *testing.T) {
	idx := buildIndex(t, "zebra", "apple", "mango")

	assert.Equal(t, []string{"apple", "mango", "zebra"}, idx.All())
}

func TestLargeCatalogBuildsCuckooFilter(t *testing.T) {
	idx := New(nil)
	b := NewBuilder()

	for i := 0; i < largeCatalogThreshold+10; i++ {
		b.Add(fmt.Sprintf("pkg-%d", i))
	}

	idx.Refresh(b)

	assert.True(t, idx.Exists("pkg-5"))
	assert.False(t, idx.Exists("does-not-exist"))
	assert.Equal(t, largeCatalogThreshold+10, idx.Size())
}

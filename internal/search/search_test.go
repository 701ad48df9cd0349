package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "cafe creme", Normalize("  Café   Crème "))
	assert.Equal(t, "resume", Normalize("RÉSUMÉ"))
	assert.Equal(t, "fi", Normalize("ﬁ")) // compatibility ligature
	assert.Equal(t, "", Normalize("   "))
}

func TestSearch_RanksTitleAboveBody(t *testing.T) {
	docs := []Document{
		{ID: "1", Title: "Shipping policy", Body: "We ship refunds never"},
		{ID: "2", Title: "Refund policy", Body: "How refunds work"},
		{ID: "3", Title: "Greeting", Body: "Hello there"},
	}

	hits := Search("refund", docs, 0)
	require.Len(t, hits, 2)
	assert.Equal(t, "2", hits[0].ID)
	assert.Equal(t, "1", hits[1].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestSearch_AccentInsensitive(t *testing.T) {
	docs := []Document{{ID: "1", Title: "Menu du café"}}

	hits := Search("CAFE", docs, 0)
	require.Len(t, hits, 1)
	assert.Equal(t, "1", hits[0].ID)
}

func TestSearch_FuzzyTitle(t *testing.T) {
	docs := []Document{
		{ID: "1", Title: "Customer support greeting"},
		{ID: "2", Title: "Sales pitch"},
	}

	hits := Search("csg", docs, 0)
	require.Len(t, hits, 1)
	assert.Equal(t, "1", hits[0].ID)
	assert.NotEmpty(t, hits[0].MatchedIndexes)
}

func TestSearch_EmptyQueryAndLimit(t *testing.T) {
	docs := []Document{{ID: "1", Title: "a"}, {ID: "2", Title: "ab"}, {ID: "3", Title: "abc"}}

	assert.Empty(t, Search("  ", docs, 0))
	assert.Len(t, Search("a", docs, 2), 2)
}

func TestSnippet(t *testing.T) {
	body := strings.Repeat("lorem ", 50) + "the needle is here " + strings.Repeat("ipsum ", 50)

	s := Snippet(body, "NEEDLE")
	assert.Contains(t, s, "needle")
	assert.True(t, strings.HasPrefix(s, "…"))
	assert.True(t, strings.HasSuffix(s, "…"))

	assert.Equal(t, "short body", Snippet("short   body", "absent"))
	assert.Equal(t, "", Snippet("", "x"))
}

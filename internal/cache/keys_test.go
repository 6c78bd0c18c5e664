package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTitleSearchKey_CaseAndWhitespaceInsensitive(t *testing.T) {
	a := TitleSearchKey("  Dune ", "Frank Herbert", 20)
	b := TitleSearchKey("dune", "FRANK HERBERT", 20)
	assert.Equal(t, a, b)
}

func TestTitleSearchKey_DifferentAuthorsDiffer(t *testing.T) {
	a := TitleSearchKey("Dune", "Frank Herbert", 20)
	b := TitleSearchKey("Dune", "Someone Else", 20)
	assert.NotEqual(t, a, b)
}

func TestTitleSearchKey_DifferentMaxResultsDiffer(t *testing.T) {
	a := TitleSearchKey("Dune", "", 20)
	b := TitleSearchKey("Dune", "", 40)
	assert.NotEqual(t, a, b)
}

func TestTitleSearchKey_MatchesDocumentedGrammar(t *testing.T) {
	assert.Equal(t, "search:title:maxresults=20&title=the hobbit", TitleSearchKey("the hobbit", "", 20))
}

func TestAuthorSearchKey_MatchesDocumentedGrammar(t *testing.T) {
	assert.Equal(t, "search:author:author=harper lee&limit=100&offset=0&sortby=publicationyear",
		AuthorSearchKey("harper lee", 100, 0, "publicationyear"))
}

func TestAuthorSearchKey_DifferentOffsetsDiffer(t *testing.T) {
	a := AuthorSearchKey("Harper Lee", 100, 0, "")
	b := AuthorSearchKey("Harper Lee", 100, 100, "")
	assert.NotEqual(t, a, b)
}

func TestISBNSearchKey(t *testing.T) {
	assert.Equal(t, ISBNSearchKey("9780141439513"), ISBNSearchKey(" 9780141439513 "))
}

func TestISBNSearchKey_MatchesDocumentedGrammar(t *testing.T) {
	assert.Equal(t, "book:isbn:9780345391803", ISBNSearchKey("978-0-345-39180-3"))
}

func TestAdvancedSearchKey_FieldOrderIndependent(t *testing.T) {
	a := AdvancedSearchKey(map[string]string{"title": "Dune", "author": "Frank Herbert"}, 20)
	b := AdvancedSearchKey(map[string]string{"author": "Frank Herbert", "title": "Dune"}, 20)
	assert.Equal(t, a, b)
}

func TestAdvancedSearchKey_DifferentFieldsDiffer(t *testing.T) {
	a := AdvancedSearchKey(map[string]string{"title": "Dune"}, 20)
	b := AdvancedSearchKey(map[string]string{"author": "Dune"}, 20)
	assert.NotEqual(t, a, b)
}

func TestEnrichmentKey(t *testing.T) {
	assert.Equal(t, "enrich:9780141439513", EnrichmentKey("9780141439513"))
}

func TestColdIndexKey(t *testing.T) {
	assert.Equal(t, "cold-index:enrich:x", ColdIndexKey("enrich:x"))
}

func TestFuzz_ZeroFactorReturnsUnchanged(t *testing.T) {
	assert.Equal(t, 5*time.Minute, Fuzz(5*time.Minute, 0))
}

func TestFuzz_WithinBounds(t *testing.T) {
	base := 10 * time.Minute
	for i := 0; i < 50; i++ {
		got := Fuzz(base, 1.0)
		assert.GreaterOrEqual(t, got, time.Duration(float64(base)*0.9))
		assert.LessOrEqual(t, got, time.Duration(float64(base)*1.1))
	}
}

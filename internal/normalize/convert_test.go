package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bookwyrm/core/internal/domain"
	"github.com/bookwyrm/core/internal/providers"
)

func TestCatalogAToWork(t *testing.T) {
	b := providers.CatalogABook{
		Title:      "Dune",
		Authors:    []string{"Frank Herbert", ""},
		Categories: []string{"science fiction"},
	}
	w := CatalogAToWork(b)
	assert.Equal(t, "Dune", w.Title)
	assert.Equal(t, []domain.Author{{Name: "Frank Herbert", Gender: domain.GenderUnknown}}, w.Authors)
	assert.Equal(t, []string{"science-fiction"}, w.SubjectTags)
	assert.True(t, w.Synthetic)
	assert.Equal(t, domain.ProviderCatalogA, w.PrimaryProvider)
}

func TestCatalogAToEdition_PrefersISBN13(t *testing.T) {
	b := providers.CatalogABook{
		Title:  "Dune",
		ISBN10: "0441172717",
		ISBN13: "9780441172719",
	}
	e := CatalogAToEdition(b)
	assert.Equal(t, "9780441172719", e.ISBN)
	assert.Contains(t, e.ISBNs, "0441172717")
}

func TestCatalogAToEdition_DerivesISBN13FromISBN10(t *testing.T) {
	b := providers.CatalogABook{Title: "Dune", ISBN10: "0441172717"}
	e := CatalogAToEdition(b)
	assert.Equal(t, 13, len(e.ISBN))
	assert.Equal(t, "978", e.ISBN[:3])
}

func TestCatalogBToEdition(t *testing.T) {
	e := providers.CatalogBEdition{
		Title:         "Dune",
		Publisher:     []string{"Ace Books"},
		Languages:     []string{"eng"},
		ISBN:          []string{"9780441172719", "0441172717"},
		NumberOfPages: 412,
		CoverID:       1234,
	}
	got := CatalogBToEdition(e)
	assert.Equal(t, "9780441172719", got.ISBN)
	assert.Equal(t, "Ace Books", got.Publisher)
	assert.Equal(t, "eng", got.Language)
	assert.Equal(t, 412, got.PageCount)
	assert.Contains(t, got.CoverImageURL, "1234")
}

func TestCatalogCToEdition(t *testing.T) {
	r := providers.CatalogCRecord{
		Title:   "Dune",
		ISBN13:  "9780441172719",
		Binding: "Mass Market Paperback",
		Pages:   "412 pages",
	}
	got := CatalogCToEdition(r)
	assert.Equal(t, "9780441172719", got.ISBN)
	assert.Equal(t, domain.FormatMassMarket, got.Format)
	assert.Equal(t, 412, got.PageCount)
}

func TestDetectedBookToWork(t *testing.T) {
	w := DetectedBookToWork(providers.DetectedBook{Title: "Dune", Author: "Frank Herbert"})
	assert.Equal(t, "Dune", w.Title)
	assert.True(t, w.Synthetic)
	assert.Equal(t, domain.ProviderAIVision, w.PrimaryProvider)
	assert.Len(t, w.Authors, 1)
}

func TestParsedRowToWork_NoAuthor(t *testing.T) {
	w := ParsedRowToWork(providers.ParsedRow{Title: "Dune"})
	assert.Equal(t, "Dune", w.Title)
	assert.Empty(t, w.Authors)
}

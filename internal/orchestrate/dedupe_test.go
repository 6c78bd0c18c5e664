package orchestrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookwyrm/core/internal/domain"
)

func TestDedupeEditions_MergesByISBN(t *testing.T) {
	a := domain.Edition{ISBN: "9780441172719", Publisher: "Ace", Contributors: []domain.Provider{domain.ProviderCatalogA}}
	b := domain.Edition{ISBN: "9780441172719", PageCount: 412, Contributors: []domain.Provider{domain.ProviderCatalogB}}
	out := DedupeEditions([]domain.Edition{a, b})
	require.Len(t, out, 1)
	assert.Equal(t, "Ace", out[0].Publisher)
	assert.Equal(t, 412, out[0].PageCount)
	assert.ElementsMatch(t, []domain.Provider{domain.ProviderCatalogA, domain.ProviderCatalogB}, out[0].Contributors)
}

func TestDedupeEditions_NeverOverwritesNonEmptyWinner(t *testing.T) {
	winner := domain.Edition{ISBN: "123", Publisher: "Winner Pub", Format: domain.FormatIllustrated, PageCount: 500}
	loser := domain.Edition{ISBN: "123", Publisher: "Loser Pub", Format: domain.FormatPaperback}
	out := DedupeEditions([]domain.Edition{winner, loser})
	require.Len(t, out, 1)
	assert.Equal(t, "Winner Pub", out[0].Publisher)
	assert.Equal(t, domain.FormatIllustrated, out[0].Format)
}

func TestDedupeEditions_DistinctISBNsKept(t *testing.T) {
	a := domain.Edition{ISBN: "1"}
	b := domain.Edition{ISBN: "2"}
	out := DedupeEditions([]domain.Edition{a, b})
	assert.Len(t, out, 2)
}

func TestDedupeEditions_FallsBackToTitleWhenNoISBN(t *testing.T) {
	a := domain.Edition{Title: "Dune", Publisher: "Ace"}
	b := domain.Edition{Title: "dune ", PageCount: 400}
	out := DedupeEditions([]domain.Edition{a, b})
	require.Len(t, out, 1)
	assert.Equal(t, 400, out[0].PageCount)
}

func TestDedupeWorks_MergesByTitleAndFirstAuthor(t *testing.T) {
	a := domain.Work{Title: "Dune", Authors: []domain.Author{{Name: "Frank Herbert"}}, Description: "classic"}
	b := domain.Work{Title: "DUNE", Authors: []domain.Author{{Name: "frank herbert"}}, CoverImageURL: "https://x"}
	out := DedupeWorks([]domain.Work{a, b})
	require.Len(t, out, 1)
	assert.Equal(t, "classic", out[0].Description)
	assert.Equal(t, "https://x", out[0].CoverImageURL)
}

func TestDedupeWorks_SyntheticOnlyWhenBothSynthetic(t *testing.T) {
	a := domain.Work{Title: "Dune", Synthetic: true}
	b := domain.Work{Title: "Dune", Synthetic: false}
	out := DedupeWorks([]domain.Work{a, b})
	require.Len(t, out, 1)
	assert.False(t, out[0].Synthetic)
}

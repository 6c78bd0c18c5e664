package orchestrate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bookwyrm/core/internal/domain"
)

func TestScoreEdition_Bounds(t *testing.T) {
	assert.GreaterOrEqual(t, ScoreEdition(domain.Edition{}), 0)
	assert.LessOrEqual(t, ScoreEdition(domain.Edition{
		Format:          domain.FormatIllustrated,
		PageCount:       500,
		CoverImageURL:   "https://x/b-L.jpg",
		PublicationDate: "2023-01-01",
		Language:        "en",
	}), 100)
}

func TestScoreEdition_BetterFieldsScoreHigher(t *testing.T) {
	plain := domain.Edition{Format: domain.FormatUnknown}
	rich := domain.Edition{
		Format:          domain.FormatIllustrated,
		PageCount:       400,
		CoverImageURL:   "https://x/b-L.jpg",
		PublicationDate: "2023-01-01",
		Language:        "en",
	}
	assert.Greater(t, ScoreEdition(rich), ScoreEdition(plain))
}

func TestRankEditions_OrdersDescendingByScore(t *testing.T) {
	low := domain.Edition{ISBN: "1", Format: domain.FormatUnknown}
	high := domain.Edition{ISBN: "2", Format: domain.FormatIllustrated, PageCount: 400}
	ranked := RankEditions([]domain.Edition{low, high})
	assert.Equal(t, "2", ranked[0].ISBN)
	assert.Equal(t, "1", ranked[1].ISBN)
}

func TestRankEditions_TieBreaksByYearThenPagesThenISBN(t *testing.T) {
	a := domain.Edition{ISBN: "b", PublicationDate: "2020", PageCount: 100}
	b := domain.Edition{ISBN: "a", PublicationDate: "2020", PageCount: 100}
	ranked := RankEditions([]domain.Edition{a, b})
	assert.Equal(t, "a", ranked[0].ISBN)
}

func TestRankEditions_DoesNotMutateInput(t *testing.T) {
	in := []domain.Edition{{ISBN: "1"}}
	_ = RankEditions(in)
	assert.Equal(t, 0, in[0].QualityScore)
}

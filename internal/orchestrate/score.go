package orchestrate

import (
	"sort"

	"github.com/bookwyrm/core/internal/domain"
	"github.com/bookwyrm/core/internal/normalize"
)

// ScoreEdition computes the 0-100 quality score of spec §4.5.
func ScoreEdition(e domain.Edition) int {
	score := 50

	switch e.Format {
	case domain.FormatIllustrated:
		score += 30
	case domain.FormatFirstEdition:
		score += 25
	case domain.FormatAnniversary:
		score += 20
	case domain.FormatHardcover:
		score += 15
	case domain.FormatPaperback:
		score += 10
	case domain.FormatStandard:
		score += 5
	}

	switch {
	case e.PageCount > 300:
		score += 10
	case e.PageCount > 200:
		score += 5
	}

	switch normalize.CoverResolution(e.CoverImageURL) {
	case "hi-res":
		score += 15
	case "standard":
		score += 10
	case "low-res":
		score += 5
	}

	year := normalize.ExtractYear(e.PublicationDate)
	switch {
	case year >= 2020:
		score += 10
	case year >= 2010:
		score += 5
	}

	if e.Language == "en" {
		score += 5
	}

	return clamp(score, 0, 100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RankEditions scores and sorts editions descending by quality, breaking
// ties by more-recent publication year, then longer pageCount, then ISBN
// lexicographic order, for determinism (spec §4.5).
func RankEditions(editions []domain.Edition) []domain.Edition {
	out := make([]domain.Edition, len(editions))
	copy(out, editions)
	for i := range out {
		out[i].QualityScore = ScoreEdition(out[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.QualityScore != b.QualityScore {
			return a.QualityScore > b.QualityScore
		}
		ya, yb := normalize.ExtractYear(a.PublicationDate), normalize.ExtractYear(b.PublicationDate)
		if ya != yb {
			return ya > yb
		}
		if a.PageCount != b.PageCount {
			return a.PageCount > b.PageCount
		}
		return a.ISBN < b.ISBN
	})
	return out
}

package orchestrate

import (
	"strings"

	"github.com/bookwyrm/core/internal/domain"
)

// DedupeEditions merges editions that refer to the same physical book,
// keyed by normalized ISBN-13 if present, otherwise by normalized title
// alone: an Edition carries no author, so the author part of the fallback
// key is always empty (spec §4.5, §9). Ties are broken by quality score -- kept editions win
// over lower-scoring duplicates, but never overwrite a non-empty field with
// an empty one from the loser.
func DedupeEditions(editions []domain.Edition) []domain.Edition {
	byKey := map[string]domain.Edition{}
	order := []string{}

	for _, e := range editions {
		scored := e
		scored.QualityScore = ScoreEdition(e)

		key := editionKey(e)
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = scored
			order = append(order, key)
			continue
		}
		if scored.QualityScore > existing.QualityScore {
			byKey[key] = mergeEditions(scored, existing)
		} else {
			byKey[key] = mergeEditions(existing, scored)
		}
	}

	out := make([]domain.Edition, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}

func editionKey(e domain.Edition) string {
	if e.ISBN != "" {
		return "isbn:" + e.ISBN
	}
	author := ""
	return "title:" + normalizeText(e.Title) + "|" + normalizeText(author)
}

// mergeEditions fills winner's holes from loser without ever overwriting a
// non-empty winner field (spec §4.5 "never overwrite non-empty primary
// fields").
func mergeEditions(winner, loser domain.Edition) domain.Edition {
	out := winner
	if out.ISBN == "" {
		out.ISBN = loser.ISBN
	}
	out.ISBNs = unionStrings(out.ISBNs, loser.ISBNs)
	if out.Publisher == "" {
		out.Publisher = loser.Publisher
	}
	if out.PublicationDate == "" {
		out.PublicationDate = loser.PublicationDate
	}
	if out.PageCount == 0 {
		out.PageCount = loser.PageCount
	}
	if out.Format == "" || out.Format == domain.FormatUnknown {
		out.Format = loser.Format
	}
	if out.CoverImageURL == "" {
		out.CoverImageURL = loser.CoverImageURL
	}
	if out.Language == "" {
		out.Language = loser.Language
	}
	out.Contributors = unionProviders(out.Contributors, loser.Contributors)
	return out
}

// DedupeWorks merges Works keyed by normalized title + first author (spec
// §9).
func DedupeWorks(works []domain.Work) []domain.Work {
	byKey := map[string]domain.Work{}
	order := []string{}

	for _, w := range works {
		key := workKey(w)
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = w
			order = append(order, key)
			continue
		}
		byKey[key] = mergeWorks(existing, w)
	}

	out := make([]domain.Work, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}

func workKey(w domain.Work) string {
	firstAuthor := ""
	if len(w.Authors) > 0 {
		firstAuthor = w.Authors[0].Name
	}
	return normalizeText(w.Title) + "|" + normalizeText(firstAuthor)
}

func mergeWorks(winner, loser domain.Work) domain.Work {
	out := winner
	if out.Description == "" {
		out.Description = loser.Description
	}
	if out.CoverImageURL == "" {
		out.CoverImageURL = loser.CoverImageURL
	}
	if out.FirstPublicationYear == 0 {
		out.FirstPublicationYear = loser.FirstPublicationYear
	}
	if len(out.Authors) == 0 {
		out.Authors = loser.Authors
	}
	out.SubjectTags = unionStrings(out.SubjectTags, loser.SubjectTags)
	out.Editions = append(out.Editions, loser.Editions...)
	out.Contributors = unionProviders(out.Contributors, loser.Contributors)
	out.Synthetic = out.Synthetic && loser.Synthetic
	return out
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func unionStrings(a, b []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func unionProviders(a, b []domain.Provider) []domain.Provider {
	seen := map[domain.Provider]struct{}{}
	out := make([]domain.Provider, 0, len(a)+len(b))
	for _, p := range append(append([]domain.Provider{}, a...), b...) {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

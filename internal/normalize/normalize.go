// Package normalize converts raw provider payloads into the canonical
// domain.Work/domain.Edition/domain.Author DTOs (spec §4.2). Every function
// here is pure: no I/O, no network, and never panics -- missing optional
// fields become zero values and a missing required title falls back to
// "Unknown", per spec §4.2.
package normalize

import (
	"strconv"
	"strings"

	"github.com/bookwyrm/core/internal/domain"
	"github.com/bookwyrm/core/internal/providers"
)

// CatalogAToWork builds a synthetic Work (spec §3: "if the upstream yielded
// only an Edition, a synthetic:true Work is fabricated") from a flat
// catalog-A book record, since catalog-A has no separate work-level
// concept.
func CatalogAToWork(b providers.CatalogABook) domain.Work {
	return domain.Work{
		Title:                CoalesceTitle(b.Title),
		Authors:              authorsFromNames(b.Authors),
		SubjectTags:          NormalizeSubjects(b.Categories),
		FirstPublicationYear: ExtractYear(b.PublishedDate),
		Description:          SanitizeDescription(b.Description),
		CoverImageURL:        UpgradeCoverURL(b.ImageURL),
		Synthetic:            true,
		PrimaryProvider:      domain.ProviderCatalogA,
		Contributors:         []domain.Provider{domain.ProviderCatalogA},
	}
}

// CatalogAToEdition builds an Edition from a catalog-A book record.
func CatalogAToEdition(b providers.CatalogABook) domain.Edition {
	isbn13, isbn10 := preferISBN13(b.ISBN13, b.ISBN10)
	return domain.Edition{
		ISBN:            isbn13,
		ISBNs:           nonEmpty(isbn13, isbn10),
		Title:           CoalesceTitle(b.Title),
		Publisher:       b.Publisher,
		PublicationDate: b.PublishedDate,
		PageCount:       b.PageCount,
		Format:          domain.Format(InferFormat("")),
		CoverImageURL:   UpgradeCoverURL(b.ImageURL),
		Language:        b.Language,
		PrimaryProvider: domain.ProviderCatalogA,
		Contributors:    []domain.Provider{domain.ProviderCatalogA},
	}
}

// CatalogBToWork builds a synthetic Work from a catalog-B edition record
// (catalog-B, like catalog-A, exposes editions flatly rather than a
// separate work entity in the slice this spec consumes).
func CatalogBToWork(e providers.CatalogBEdition) domain.Work {
	lang := ""
	if len(e.Languages) > 0 {
		lang = e.Languages[0]
	}
	return domain.Work{
		Title:                CoalesceTitle(e.Title),
		Authors:              authorsFromNames(e.AuthorNames),
		SubjectTags:          NormalizeSubjects(e.Subjects),
		OriginalLanguage:     lang,
		FirstPublicationYear: ExtractYear(e.PublishDate),
		Synthetic:            true,
		PrimaryProvider:      domain.ProviderCatalogB,
		Contributors:         []domain.Provider{domain.ProviderCatalogB},
	}
}

// CatalogBToEdition builds an Edition from a catalog-B record.
func CatalogBToEdition(e providers.CatalogBEdition) domain.Edition {
	isbn13, isbn10 := preferFromList(e.ISBN)
	publisher := ""
	if len(e.Publisher) > 0 {
		publisher = e.Publisher[0]
	}
	lang := ""
	if len(e.Languages) > 0 {
		lang = e.Languages[0]
	}
	cover := ""
	if e.CoverID != 0 {
		cover = coverIDToURL(e.CoverID)
	}
	return domain.Edition{
		ISBN:            isbn13,
		ISBNs:           nonEmpty(isbn13, isbn10),
		Title:           CoalesceTitle(e.Title),
		Publisher:       publisher,
		PublicationDate: e.PublishDate,
		PageCount:       e.NumberOfPages,
		Format:          domain.Format(InferFormat("")),
		CoverImageURL:   UpgradeCoverURL(cover),
		Language:        lang,
		PrimaryProvider: domain.ProviderCatalogB,
		Contributors:    []domain.Provider{domain.ProviderCatalogB},
	}
}

// CatalogCToEdition builds an Edition from catalog-C's loosely-typed
// record. catalog-C supplies no work-level data at all, so callers always
// pair this with a synthetic Work built elsewhere (the orchestrator).
func CatalogCToEdition(r providers.CatalogCRecord) domain.Edition {
	isbn13, isbn10 := preferISBN13(r.ISBN13, r.ISBN10)
	pages := 0
	if n, ok := parseLeadingInt(r.Pages); ok {
		pages = n
	}
	return domain.Edition{
		ISBN:            isbn13,
		ISBNs:           nonEmpty(isbn13, isbn10),
		Title:           CoalesceTitle(r.Title),
		Publisher:       r.Publisher,
		PublicationDate: r.DatePub,
		PageCount:       pages,
		Format:          domain.Format(InferFormat(r.Binding)),
		CoverImageURL:   UpgradeCoverURL(r.Image),
		PrimaryProvider: domain.ProviderCatalogC,
		Contributors:    []domain.Provider{domain.ProviderCatalogC},
	}
}

// DetectedBookToWork builds a provisional synthetic Work from an AI-vision
// detection, prior to enrichment against the catalog providers (spec
// §4.7 stage 3).
func DetectedBookToWork(b providers.DetectedBook) domain.Work {
	var authors []domain.Author
	if b.Author != "" {
		authors = authorsFromNames([]string{b.Author})
	}
	return domain.Work{
		Title:           CoalesceTitle(b.Title),
		Authors:         authors,
		Synthetic:       true,
		PrimaryProvider: domain.ProviderAIVision,
		Contributors:    []domain.Provider{domain.ProviderAIVision},
	}
}

// ParsedRowToWork builds a provisional synthetic Work from an AI-CSV row.
func ParsedRowToWork(r providers.ParsedRow) domain.Work {
	var authors []domain.Author
	if r.Author != "" {
		authors = authorsFromNames([]string{r.Author})
	}
	return domain.Work{
		Title:           CoalesceTitle(r.Title),
		Authors:         authors,
		Synthetic:       true,
		PrimaryProvider: domain.ProviderAICSV,
		Contributors:    []domain.Provider{domain.ProviderAICSV},
	}
}

func authorsFromNames(names []string) []domain.Author {
	out := make([]domain.Author, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		out = append(out, domain.Author{Name: n, Gender: domain.GenderUnknown})
	}
	return out
}

// preferISBN13 normalizes whichever of isbn13/isbn10 are present, preferring
// the 13-digit form as the canonical Edition.ISBN (spec §3, §4.2).
func preferISBN13(isbn13, isbn10 string) (canonical, secondary string) {
	if n13, err := NormalizeISBN(isbn13); err == nil {
		canonical = n13
	}
	if n10, err := NormalizeISBN(isbn10); err == nil {
		secondary = n10
		if canonical == "" {
			if derived, err := ToISBN13(n10); err == nil {
				canonical = derived
			}
		}
	}
	return canonical, secondary
}

func preferFromList(isbns []string) (canonical, secondary string) {
	for _, raw := range isbns {
		n, err := NormalizeISBN(raw)
		if err != nil {
			continue
		}
		if len(n) == 13 {
			canonical = n
		} else {
			secondary = n
		}
	}
	if canonical == "" && secondary != "" {
		if derived, err := ToISBN13(secondary); err == nil {
			canonical = derived
		}
	}
	return canonical, secondary
}

func nonEmpty(vals ...string) []string {
	out := make([]string, 0, len(vals))
	seen := map[string]struct{}{}
	for _, v := range vals {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func coverIDToURL(id int) string {
	return "https://covers.example.org/b/id/" + strconv.Itoa(id) + "-L.jpg"
}

func parseLeadingInt(s string) (int, bool) {
	n := 0
	found := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
		found = true
	}
	return n, found
}

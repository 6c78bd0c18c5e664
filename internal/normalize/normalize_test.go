package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractYear(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"1954-07-29", 1954},
		{"1954", 1954},
		{"July 1954", 1954},
		{"unknown", 0},
		{"", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractYear(tc.in), tc.in)
	}
}

func TestSanitizeDescription(t *testing.T) {
	got := SanitizeDescription("<p>A <b>great</b> book.</p>")
	assert.Equal(t, "A great book.", got)
	assert.Empty(t, SanitizeDescription(""))
}

func TestUpgradeCoverURL(t *testing.T) {
	assert.Equal(t, "", UpgradeCoverURL(""))
	assert.Equal(t, "https://covers.example.org/b.jpg", UpgradeCoverURL("http://covers.example.org/b.jpg"))
	assert.Contains(t, UpgradeCoverURL("https://covers.example.org/b.jpg?zoom=1"), "zoom=3")
}

func TestCoverResolution(t *testing.T) {
	assert.Equal(t, "none", CoverResolution(""))
	assert.Equal(t, "hi-res", CoverResolution("https://x/b.jpg?zoom=4"))
	assert.Equal(t, "low-res", CoverResolution("https://x/b.jpg?zoom=1"))
	assert.Equal(t, "hi-res", CoverResolution("https://x/b-L.jpg"))
	assert.Equal(t, "low-res", CoverResolution("https://x/b-S.jpg"))
	assert.Equal(t, "standard", CoverResolution("https://x/b.jpg"))
}

func TestCoalesceTitle(t *testing.T) {
	assert.Equal(t, "Unknown", CoalesceTitle(""))
	assert.Equal(t, "Unknown", CoalesceTitle("   "))
	assert.Equal(t, "Dune", CoalesceTitle("Dune"))
}

func TestNormalizeSubjects(t *testing.T) {
	got := NormalizeSubjects([]string{"Epic Fantasy", "Sci-Fi Adventure", "Epic Fantasy", "nonsense category"})
	assert.Equal(t, []string{"fantasy", "science-fiction"}, got)
}

func TestInferFormat(t *testing.T) {
	cases := map[string]string{
		"":                       "Unknown",
		"Mass Market Paperback":  "MassMarket",
		"Hardcover":              "Hardcover",
		"Kindle Edition":         "Ebook",
		"Audiobook":              "Audiobook",
		"1st Edition":            "FirstEdition",
		"Illustrated Anniversary": "Illustrated",
		"something else":         "Standard",
	}
	for in, want := range cases {
		assert.Equal(t, want, InferFormat(in), in)
	}
}

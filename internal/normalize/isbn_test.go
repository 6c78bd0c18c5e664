package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeISBN(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"isbn13 clean", "9780140449136", "9780140449136", false},
		{"isbn13 hyphenated", "978-0-14-044913-6", "9780140449136", false},
		{"isbn10 clean", "0141439513", "0141439513", false},
		{"isbn10 with X check digit", "020161622X", "020161622X", false},
		{"bad checksum", "9780140449137", "", true},
		{"wrong length", "12345", "", true},
		{"empty", "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeISBN(tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeISBNIdempotent(t *testing.T) {
	n1, err := NormalizeISBN("978-0-14-044913-6")
	require.NoError(t, err)
	n2, err := NormalizeISBN(n1)
	require.NoError(t, err)
	assert.Equal(t, n1, n2)
}

func TestToISBN13(t *testing.T) {
	got, err := ToISBN13("0141439513")
	require.NoError(t, err)
	assert.Equal(t, 13, len(got))
	assert.Equal(t, "978", got[:3])

	got, err = ToISBN13("9780140449136")
	require.NoError(t, err)
	assert.Equal(t, "9780140449136", got)

	_, err = ToISBN13("bad")
	assert.Error(t, err)
}

func TestLooksLikeISBN(t *testing.T) {
	assert.True(t, LooksLikeISBN("9780140449136"))
	assert.False(t, LooksLikeISBN("the hobbit"))
}

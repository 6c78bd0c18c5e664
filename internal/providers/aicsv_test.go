package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAICSV_ParseCSV_RejectsEmptyText(t *testing.T) {
	a := NewAICSV("key", "gpt-4o-mini")
	_, err := a.ParseCSV(t.Context(), "")
	require.Error(t, err)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindInvalidResponse, pe.Kind)
}

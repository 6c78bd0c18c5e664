package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAIVision_ScanImage_RejectsEmptyImage(t *testing.T) {
	a := NewAIVision("key", "gpt-4o-mini")
	_, err := a.ScanImage(t.Context(), nil, "image/jpeg")
	require.Error(t, err)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindInvalidResponse, pe.Kind)
}

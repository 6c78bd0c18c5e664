package apierrors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderError_ChainExhaustedMapsToProviderError(t *testing.T) {
	err := NewChainError(KindUnavailable)
	assert.Equal(t, "PROVIDER_ERROR", err.Code())
}

func TestProviderError_ChainNotFoundMapsToNotFound(t *testing.T) {
	err := NewChainError(KindNotFound)
	assert.Equal(t, "NOT_FOUND", err.Code())
}

func TestProviderError_SingleProviderKeepsSpecificCode(t *testing.T) {
	err := &ProviderError{Provider: "catalog_a", Kind: KindTimeout, Err: assert.AnError}
	assert.Equal(t, "PROVIDER_TIMEOUT", err.Code())
}

func TestErrUpstreamBudgetExceeded_Code(t *testing.T) {
	assert.Equal(t, "UPSTREAM_BUDGET_EXCEEDED", ErrUpstreamBudgetExceeded.Code())
}

func TestCoded_CarriesStatusAndCode(t *testing.T) {
	err := Coded(404, "NOT_FOUND", "missing")
	assert.Equal(t, 404, err.Status())
	assert.Equal(t, "NOT_FOUND", err.Code())
	assert.Equal(t, "missing", err.Error())
}

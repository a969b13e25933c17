// File: internal/common/errors_test.go
package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_WithDetailsDoesNotMutateSentinel(t *testing.T) {
	detailed := ErrCredential.WithDetails("EMAIL_EXISTS")

	assert.Equal(t, "EMAIL_EXISTS", detailed.Details)
	assert.Nil(t, ErrCredential.Details)
	assert.Equal(t, ErrCredential.Code, detailed.Code)
	assert.Equal(t, ErrCredential.StatusCode, detailed.StatusCode)
}

func TestAPIError_ErrorsIsMatchesByCode(t *testing.T) {
	detailed := ErrStoreUnavailable.WithDetails("dial tcp: connection refused")
	assert.ErrorIs(t, detailed, ErrStoreUnavailable)
	assert.NotErrorIs(t, detailed, ErrNotFound)

	wrapped := fmt.Errorf("profile fetch: %w", detailed)
	assert.ErrorIs(t, wrapped, ErrStoreUnavailable)
}

func TestIsAPIError(t *testing.T) {
	apiErr, ok := IsAPIError(ErrProfileSync.WithDetails("sync failed"))
	require.True(t, ok)
	assert.Equal(t, ErrProfileSync.Code, apiErr.Code)

	_, ok = IsAPIError(errors.New("plain error"))
	assert.False(t, ok)
}

func TestSentinelStatusCodes(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, ErrCredential.StatusCode)
	assert.Equal(t, http.StatusBadRequest, ErrCancelled.StatusCode)
	assert.Equal(t, http.StatusBadGateway, ErrProvider.StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, ErrStoreUnavailable.StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, ErrProfileSync.StatusCode)
}

package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrorTypeRateLimit))
	assert.True(t, IsRetryable(ErrorTypeNetwork))
	assert.True(t, IsRetryable(ErrorTypeServerError))
	assert.False(t, IsRetryable(ErrorTypeAuth))
	assert.False(t, IsRetryable(ErrorTypeParsing))
	assert.False(t, IsRetryable(ErrorTypeNotFound))
}

func TestTypeOfWrapped(t *testing.T) {
	err := fmt.Errorf("fetch page 3: %w", New(ErrorTypeRateLimit, 429, "rate limit exceeded"))

	assert.Equal(t, ErrorTypeRateLimit, TypeOf(err))
	assert.True(t, Is(err, ErrorTypeRateLimit))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(fmt.Errorf("plain")))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(New(ErrorTypeAuth, 401, "invalid key")))
	assert.True(t, IsFatal(fmt.Errorf("wrap: %w", New(ErrorTypeConfig, 0, "missing dsn"))))
	assert.False(t, IsFatal(New(ErrorTypeServerError, 503, "unavailable")))
	assert.False(t, IsFatal(nil))
}

func TestIsRetryableStatusCode(t *testing.T) {
	for _, code := range []int{0, 429, 500, 502, 503, 504} {
		assert.True(t, IsRetryableStatusCode(code), "code %d", code)
	}
	for _, code := range []int{400, 401, 403, 404} {
		assert.False(t, IsRetryableStatusCode(code), "code %d", code)
	}
}

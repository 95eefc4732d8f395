package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", fmt.Errorf("wrapped: %w", ErrInvalidInput), http.StatusBadRequest},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"upstream auth", ErrUnauthorized, http.StatusInternalServerError},
		{"upstream down", ErrUpstreamUnavailable, http.StatusServiceUnavailable},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
		{"app error wins", New(ErrInternal, http.StatusTeapot, "short and stout"), http.StatusTeapot},
		{"app error without status", &AppError{Err: ErrRateLimited, Message: "slow down"}, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppError_UnwrapsToSentinel(t *testing.T) {
	err := fmt.Errorf("provider: %w", Newf(ErrRateLimited, http.StatusTooManyRequests, "HTTP %d", 429))
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, "rate limit exceeded: HTTP 429", errors.Unwrap(err).Error())
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrUpstreamUnavailable))
	assert.True(t, IsTransient(fmt.Errorf("x: %w", ErrRateLimited)))
	assert.False(t, IsTransient(ErrUnauthorized))
	assert.False(t, IsTransient(ErrInvalidInput))
}

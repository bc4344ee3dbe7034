package httpclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBreaker(t *testing.T, name string) *CircuitBreakerClient {
	t.Helper()
	cfg := CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  3,
	}
	clientCfg := DefaultConfig()
	clientCfg.Timeout = 500 * time.Millisecond
	return NewCircuitBreakerClient(New(clientCfg), cfg, testLogger())
}

func TestCircuitBreaker_SuccessPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cb := newTestBreaker(t, "cb-success")
	resp, err := cb.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_ErrorStatusDoesNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := newTestBreaker(t, "cb-5xx")
	for i := 0; i < 10; i++ {
		resp, err := cb.Get(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		resp.Body.Close()
	}

	// Error responses still reach the caller, and the breaker stays closed.
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_OpensOnConnectionFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	unreachable := srv.URL
	srv.Close()

	cb := newTestBreaker(t, "cb-open")
	for i := 0; i < 5; i++ {
		_, err := cb.Get(context.Background(), unreachable)
		require.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Get(context.Background(), unreachable)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_FallbackInvokedWhenOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	unreachable := srv.URL
	srv.Close()

	cb := newTestBreaker(t, "cb-fallback")
	for i := 0; i < 5; i++ {
		_, err := cb.Get(context.Background(), unreachable)
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	fallbackCalled := false
	withFallback := cb.WithFallback(func(ctx context.Context, err error) (*http.Response, error) {
		fallbackCalled = true
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"cached":true}`)),
			Header:     make(http.Header),
		}, nil
	})

	resp, err := withFallback.Get(context.Background(), unreachable)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.True(t, fallbackCalled)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCircuitBreaker_FallbackNotInvokedWhenClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fallbackCalled := false
	cb := newTestBreaker(t, "cb-no-fallback").WithFallback(func(ctx context.Context, err error) (*http.Response, error) {
		fallbackCalled = true
		return nil, err
	})

	resp, err := cb.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.False(t, fallbackCalled)
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("merchant")
	assert.Equal(t, "merchant", cfg.Name)
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.Equal(t, 0.5, cfg.FailureRatio)
	assert.Equal(t, uint32(5), cfg.MinRequests)
}

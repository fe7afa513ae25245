package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/webboot/internal/infrastructure/resilience"
)

func TestStreamLeavesBodyUnread(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "webboot-test", r.Header.Get("User-Agent"))
		assert.Equal(t, AcceptEncoding, r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Type", "application/wasm")
		_, _ = w.Write([]byte("\x00asm\x01\x00\x00\x00"))
	}))
	defer srv.Close()

	c := NewClient(Options{UserAgent: "webboot-test"})
	status, header, body, err := c.Stream(context.Background(), srv.URL+"/app.wasm")
	require.NoError(t, err)
	defer body.Close()

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/wasm", header.Get("Content-Type"))

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00asm\x01\x00\x00\x00"), data)
}

func TestStreamDoesNotRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Options{})
	status, _, body, err := c.Stream(context.Background(), srv.URL)
	require.NoError(t, err)
	body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, int32(1), hits.Load())
}

func TestStreamTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := NewClient(Options{Timeout: 20 * time.Millisecond})
	_, _, _, err := c.Stream(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestRequestHonorsCancelledContext(t *testing.T) {
	c := NewClient(Options{RateLimit: 1})

	// Drain the single token so the next Wait has to block.
	_, err := c.Request(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, err := c.Request(ctx)
	assert.Error(t, err)
	assert.Nil(t, req)
}

func TestSetRateLimit(t *testing.T) {
	c := NewClient(Options{})
	assert.True(t, c.Limiter.Limit() > 1e300)

	c.SetRateLimit(0.5)
	assert.Equal(t, 1, c.Limiter.Burst())

	c.SetRateLimit(10)
	assert.Equal(t, 10, c.Limiter.Burst())
}

func TestPollOpensBreaker(t *testing.T) {
	c := NewClient(Options{})
	failure := errors.New("origin unreachable")

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, c.Poll(func() error { return failure }), failure)
	}

	assert.Equal(t, resilience.StateOpen, c.Breaker.State())
	assert.ErrorIs(t, c.Poll(func() error { return nil }), resilience.ErrCircuitOpen)
}

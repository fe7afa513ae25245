package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/webboot/internal/infrastructure/resilience"
)

// DefaultUserAgent identifies headless fetches.
const DefaultUserAgent = "webboot-headless/1.0"

// AcceptEncoding is advertised on every request; bodies are decoded by the
// caller.
const AcceptEncoding = "zstd, gzip"

// Client wraps resty with rate limiting and a circuit breaker for background
// requests
type Client struct {
	Resty   *resty.Client
	Limiter *rate.Limiter
	Breaker *resilience.Breaker
	Mu      sync.RWMutex
}

// Options configures a Client.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	// RateLimit caps requests per second; zero means unlimited.
	RateLimit float64
}

// NewClient creates an HTTP client. Requests are not retried: a failed
// module fetch is reported, never repeated.
func NewClient(opts Options) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	// Pooled transport from the retryable client; retries stay off.
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil

	restyClient := resty.New()
	restyClient.
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept-Encoding", AcceptEncoding)
	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	c := &Client{
		Resty: restyClient,
		Breaker: resilience.New("http-poll", resilience.Settings{
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		}),
	}
	c.SetRateLimit(opts.RateLimit)
	return c
}

// SetRateLimit configures rate limiting (requests per second)
func (c *Client) SetRateLimit(rps float64) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if rps <= 0 {
		c.Limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Request creates a new request after waiting for the rate limiter
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	c.Mu.RLock()
	limiter := c.Limiter
	c.Mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return c.Resty.R().SetContext(ctx), nil
}

// Stream issues a GET whose body is left unread for the caller.
func (c *Client) Stream(ctx context.Context, url string) (int, http.Header, io.ReadCloser, error) {
	req, err := c.Request(ctx)
	if err != nil {
		return 0, nil, nil, err
	}

	resp, err := req.SetDoNotParseResponse(true).Get(url)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("GET %s: %w", url, err)
	}
	return resp.StatusCode(), resp.Header(), resp.RawBody(), nil
}

// Poll runs fn through the circuit breaker.
func (c *Client) Poll(fn func() error) error {
	return c.Breaker.Execute(fn)
}

// Package client is the HTTP client behind the headless host's fetches.
//
// Built on go-resty/resty over a hashicorp/go-retryablehttp pooled transport:
//   - No retries: a failed module fetch is surfaced once and not repeated
//   - Context-based cancellation and a per-client timeout
//   - Optional rate limiting with golang.org/x/time/rate
//   - A circuit breaker (Poll) for background worker update checks
//
// Bodies are requested with "Accept-Encoding: zstd, gzip" and returned still
// encoded; the headless fetcher decodes them.
package client

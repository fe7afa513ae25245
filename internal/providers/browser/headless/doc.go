/*
Package headless is an in-process browser host for running the bootstrap
outside a browser.

# Overview

A Host loads a page from disk or over HTTP and exposes it through the host
interfaces:

  - Document: an x/net/html tree with htmlquery and goquery lookups and
    batched mutation observers
  - ScriptRuntime: a goja VM running the page's inline scripts against the
    same tree
  - ServiceWorkers: registration with the browser lifecycle
    (installing, installed, activating, activated) and script fingerprinting
  - Window: display-mode media queries and install prompt events
  - WebAssembly: wazero compilation with WASI preview 1
  - Fetcher: resty over a pooled transport, zstd and gzip decoding, file URLs

# Event Loop

Every callback (mutation batches, worker state changes, install events,
timers, scripts) runs on one Loop goroutine. Settle waits until the loop is
idle, which is how callers observe a quiescent page.

# Worker Updates

Registered scripts are re-fetched every UpdatePoll through the HTTP client's
circuit breaker, and file scripts are also watched with fsnotify. A changed
fingerprint installs a new worker. If the page is controlled, the new worker
stops at "installed", which is what an update notification looks for.

# Usage Example

	h, err := headless.Open(ctx, headless.Options{
		Page:       "web/index.html",
		UpdatePoll: time.Minute,
	})
	if err != nil {
		return err
	}
	defer h.Close(ctx)

	boot := bootstrap.New(h, h.Runtime(), bootstrap.Options{Logger: logger})
	report, err := boot.Start(ctx)
*/
package headless

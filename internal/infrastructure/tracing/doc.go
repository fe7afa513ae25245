/*
Package tracing records request spans for the development server.

# Overview

Every request the dev server answers becomes a span carrying the request ID,
the route, the status and the duration. Spans are handed to a buffered
collector and logged asynchronously, so a slow log sink never stalls the
static file path the browser bootstrap is waiting on.

# Usage

	tracer := tracing.New("webboot-serve", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	// Manual span creation
	span, ctx := tracer.StartSpan(ctx, "operation")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

# Trace Format

Trace context propagates through HTTP headers:
  - X-Trace-ID: identifier for the whole request flow
  - X-Span-ID: identifier for the current operation

A request without X-Trace-ID starts a new trace.

# Performance

The collector buffers 1000 spans. When the buffer is full, spans are dropped
with a warning instead of blocking the request.
*/
package tracing

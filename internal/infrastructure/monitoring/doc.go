/*
Package monitoring provides metrics collection for the bootstrap runtime.

# Overview

This package implements Prometheus-based metrics for the four bootstrap
components and the dev server. Every collector is registered on a private
registry so that several runtimes (and tests) can coexist in one process.

# Features

- Module loads by strategy (streaming, buffered) and outcome
- Crawler skips and fetched module sizes
- Worker registrations and update notifications
- Install prompt outcomes and prompt handle availability
- DOM guard reverted nodes
- Dev server request metrics

# Usage

	metrics := monitoring.NewMetrics()

	loader := loader.New(host, runtime, nil).WithMetrics(metrics)

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

A nil *Metrics is valid; every Record method is a no-op on it.

# Metrics Endpoint

	handler := promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})
	router.GET("/metrics", gin.WrapH(handler))
*/
package monitoring

// Package server provides the static development server behind
// `webboot serve`.
//
// It serves a site directory the way the bootstrap expects a production host
// to:
//   - worker scripts carry Service-Worker-Allowed so a worker under a
//     subdirectory may control the whole origin
//   - .wasm files are served as application/wasm so streaming instantiation
//     is accepted
//   - every response is Cache-Control: no-cache so update polling sees edits
//     immediately
//
// Server Lifecycle:
//  1. New validates the site root and builds the Gin router
//  2. Run listens until Shutdown
//  3. Shutdown drains in-flight requests and flushes request spans
//
// Routes:
//   - GET /healthz: liveness probe
//   - GET /metrics: Prometheus metrics from the shared registry
//   - everything else: files under the site root, no directory listings
//
// Example Usage:
//
//	srv, err := server.New(server.Options{Addr: ":8080", Root: "./site"})
//	if err != nil {
//	    return err
//	}
//	go srv.Run()
//	defer srv.Shutdown(ctx)
package server

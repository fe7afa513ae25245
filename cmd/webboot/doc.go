// Command webboot boots web application pages outside a browser and serves
// them during development.
//
// The headless host runs the same bootstrap the browser shell runs: the body
// guard, worker registration, install prompt capture and module loading. A
// WASI module found at the module URL is started in process.
//
// Configuration:
//   - Environment variables (WEBBOOT_*, LOG_LEVEL, LOG_DEV)
//   - An optional YAML or TOML file (--config), overriding the environment
//   - CLI flags, overriding both
//
// Usage:
//
//	# Boot a page and print the report
//	webboot run --page ./site/index.html --module /web/app.wasm
//
//	# Check the foreign-script guard
//	webboot run --page ./site/index.html --inject ./ads.js
//
//	# Keep the page open, polling the worker script for updates
//	webboot run --page http://localhost:8080/ --controlled --hold --metrics-addr :9090
//
//	# Serve a site with worker and wasm headers
//	webboot serve --root ./site --addr 127.0.0.1:8080
//
//	# Would this user agent load the module?
//	webboot crawler "Mozilla/5.0 (compatible; Googlebot/2.1)"
package main

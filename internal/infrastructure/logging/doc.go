// Package logging provides structured logging using uber/zap.
//
// This package offers two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Log output goes to stderr by default so command output on stdout (crawler
// checks, boot reports) stays machine readable. The browser shell uses
// NewConsole, whose lines end up in the devtools console.
//
// Components receive the embedded *zap.Logger and name it after themselves
// (update, install, domguard, loader, headless).
//
// Example Usage:
//
//	logger := logging.NewFromSettings(cfg.Logging.Level, cfg.Logging.Development)
//	defer logger.Sync()
//	logger.Info("registering application service worker", zap.String("worker", url))
package logging

// Package config provides 12-factor configuration management for webboot.
//
// Configuration is loaded from environment variables with sensible defaults,
// then overlaid by an optional YAML or TOML file. CLI flags override both.
//
// Configuration Sections:
//   - Boot: worker and module URLs, injected env file, loader icon classes
//   - Headless: page, user agent, display mode, fetch timeout, update polling
//   - Server: dev server address and document root
//   - Logging: Log level and output format
//
// Example Usage:
//
//	cfg, err := config.LoadWithFile(path)
//	envMap, err := config.LoadEnvFile(cfg.Boot.EnvFile)
//
// Environment Variables:
//   - WEBBOOT_WORKER_URL, WEBBOOT_MODULE_URL, WEBBOOT_ENV_FILE
//   - WEBBOOT_PAGE, WEBBOOT_USER_AGENT, WEBBOOT_DISPLAY_MODE
//   - WEBBOOT_FETCH_TIMEOUT, WEBBOOT_UPDATE_POLL, WEBBOOT_METRICS_ADDR
//   - WEBBOOT_SERVE_ADDR, WEBBOOT_SERVE_ROOT
//   - LOG_LEVEL, LOG_DEV
package config

package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Size limits for injected configuration
const (
	MaxURLLength      = 2048
	MaxEnvKeyLength   = 128
	MaxEnvValueLength = 64 * 1024
	MaxEnvEntries     = 512
)

// EnvKeyPattern allows the characters shells accept in variable names, plus
// dots and hyphens used by dotted config keys.
var EnvKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateResourceURL checks a worker or module URL. Relative references are
// allowed; absolute ones must be http, https or file.
func ValidateResourceURL(raw, fieldName string) error {
	if err := ValidateString(raw, fieldName, 1, MaxURLLength, true); err != nil {
		return err
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", fieldName, err)
	}
	switch u.Scheme {
	case "", "http", "https", "file":
	default:
		return fmt.Errorf("%s has unsupported scheme %q", fieldName, u.Scheme)
	}
	if u.Fragment != "" {
		return fmt.Errorf("%s must not carry a fragment", fieldName)
	}
	return nil
}

// ValidateEnv validates an injected environment mapping
func ValidateEnv(vars map[string]string) error {
	if len(vars) > MaxEnvEntries {
		return fmt.Errorf("environment has %d entries, limit is %d", len(vars), MaxEnvEntries)
	}
	for k, v := range vars {
		if err := ValidateString(k, "environment key", 1, MaxEnvKeyLength, true); err != nil {
			return err
		}
		if !EnvKeyPattern.MatchString(k) {
			return fmt.Errorf("environment key %q contains invalid characters", k)
		}
		if err := ValidateString(v, "environment value for "+k, 0, MaxEnvValueLength, false); err != nil {
			return err
		}
	}
	return nil
}

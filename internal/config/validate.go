package config

import (
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// recognizedParsers is the set of valid parser names for checks.
var recognizedParsers = map[string]bool{
	"go-test":    true,
	"go-build":   true,
	"go-vet":     true,
	"typescript": true,
	"generic":    true,
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.StateDir == "" {
		add("state_dir", "is required")
	}
	if cfg.Database == "" {
		add("database", "is required")
	}
	if !logLevels[cfg.Log.Level] {
		add("log.level", "unrecognized level %q", cfg.Log.Level)
	}

	if cfg.Backend.URL != "" {
		u, err := url.Parse(cfg.Backend.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("backend.url", "must be an http(s) URL, got %q", cfg.Backend.URL)
		}
	}
	if cfg.Backend.Timeout != "" {
		if _, err := time.ParseDuration(cfg.Backend.Timeout); err != nil {
			add("backend.timeout", "invalid duration %q", cfg.Backend.Timeout)
		}
	}
	if cfg.Backend.Retries < 0 {
		add("backend.retries", "must not be negative")
	}

	if cfg.Agentic.MaxAttempts < 1 {
		add("agentic.max_attempts", "must be at least 1")
	}
	if cfg.Agentic.MaxActions < 1 {
		add("agentic.max_actions", "must be at least 1")
	}

	for i, pattern := range cfg.Policy.Protected {
		if !doublestar.ValidatePattern(pattern) {
			add(fmt.Sprintf("policy.protected[%d]", i), "invalid glob %q", pattern)
		}
	}

	names := make([]string, 0, len(cfg.Checks))
	for name := range cfg.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := cfg.Checks[name]
		prefix := "checks." + name
		if check.Command == "" {
			add(prefix+".command", "is required")
		}
		if check.Parser != "" && !recognizedParsers[check.Parser] {
			add(prefix+".parser", "unrecognized parser %q", check.Parser)
		}
		if check.Timeout != "" {
			if _, err := time.ParseDuration(check.Timeout); err != nil {
				add(prefix+".timeout", "invalid duration %q", check.Timeout)
			}
		}
	}

	seen := make(map[string]bool)
	for _, name := range cfg.Verify {
		if _, ok := cfg.Checks[name]; !ok {
			add("verify", "references undefined check %q", name)
		}
		if seen[name] {
			add("verify", "lists check %q twice", name)
		}
		seen[name] = true
	}
	return errs
}

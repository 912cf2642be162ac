package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxAttempts = 3
	DefaultMaxActions  = 20
	DefaultServeAddr   = "127.0.0.1:7420"
)

// DefaultProtected is used when policy.protected is not set.
var DefaultProtected = []string{".git/**", "**/.env", "**/*.pem"}

// Load reads and parses the configuration at path, then applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault loads the first config found in ./fixfactory.yaml or
// ~/.fixfactory/config.yaml. With neither present it returns the defaults.
func LoadDefault() (*Config, error) {
	candidates := []string{"fixfactory.yaml"}
	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".fixfactory", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Default()
}

// Default returns a config with every default applied.
func Default() (*Config, error) {
	var cfg Config
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) error {
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("get home directory: %w", err)
		}
		cfg.StateDir = filepath.Join(home, ".fixfactory")
	}
	if cfg.Database == "" {
		cfg.Database = filepath.Join(cfg.StateDir, "fixfactory.db")
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Agentic.MaxAttempts == 0 {
		cfg.Agentic.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Agentic.MaxActions == 0 {
		cfg.Agentic.MaxActions = DefaultMaxActions
	}
	if cfg.Policy.Protected == nil {
		cfg.Policy.Protected = append([]string(nil), DefaultProtected...)
	}
	if cfg.Backend.Retries == 0 {
		cfg.Backend.Retries = 2
	}
	if cfg.Serve.Addr == "" {
		cfg.Serve.Addr = DefaultServeAddr
	}
	for name, chk := range cfg.Checks {
		if chk.Parser == "" {
			chk.Parser = "generic"
			cfg.Checks[name] = chk
		}
	}
	return nil
}

// CheckTimeout parses a check's timeout; empty or invalid yields zero, which
// the runner replaces with its default.
func (c Check) CheckTimeout() time.Duration {
	if c.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// BackendTimeout parses backend.timeout. Empty, zero or invalid means no
// client-side timeout; the service decides how long a request may run.
func (b Backend) BackendTimeout() time.Duration {
	if b.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(b.Timeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// ErrUnknownCheck is returned by VerifyChecks for a name with no definition.
var ErrUnknownCheck = errors.New("unknown check")

// VerifyChecks returns the verify checks in order, keyed by name.
func (cfg *Config) VerifyChecks() ([]NamedCheck, error) {
	out := make([]NamedCheck, 0, len(cfg.Verify))
	for _, name := range cfg.Verify {
		chk, ok := cfg.Checks[name]
		if !ok {
			return nil, fmt.Errorf("verify: %q: %w", name, ErrUnknownCheck)
		}
		out = append(out, NamedCheck{Name: name, Check: chk})
	}
	return out, nil
}

// NamedCheck pairs a check with its config key.
type NamedCheck struct {
	Name string
	Check
}

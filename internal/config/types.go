package config

// Config is the top-level configuration parsed from fixfactory.yaml.
type Config struct {
	Backend  Backend          `yaml:"backend"`
	StateDir string           `yaml:"state_dir"`
	Database string           `yaml:"database"`
	Log      Log              `yaml:"log"`
	Apply    Apply            `yaml:"apply"`
	Agentic  Agentic          `yaml:"agentic"`
	Policy   Policy           `yaml:"policy"`
	Checks   map[string]Check `yaml:"checks"`
	Verify   []string         `yaml:"verify"`
	Serve    Serve            `yaml:"serve"`
}

// Backend points at the remote analysis and planning service. An empty URL
// selects the built-in local analyzer.
type Backend struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
	Retries int    `yaml:"retries"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `yaml:"level"`
	File        string `yaml:"file"`
	Development bool   `yaml:"development"`
}

// Apply holds apply defaults.
type Apply struct {
	AutoCheck bool `yaml:"auto_check"`
}

// Agentic bounds agentic runs.
type Agentic struct {
	MaxAttempts int `yaml:"max_attempts"`
	MaxActions  int `yaml:"max_actions"`
}

// Policy lists glob patterns, relative to the project root, that no action may touch.
type Policy struct {
	Protected []string `yaml:"protected"`
}

// Check defines a verification command run in the project directory.
type Check struct {
	Command string `yaml:"command"`
	Parser  string `yaml:"parser"`
	Timeout string `yaml:"timeout"`
}

// Serve configures `fixfactory serve`.
type Serve struct {
	Addr string `yaml:"addr"`
}

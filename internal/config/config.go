// Package config handles configuration loading and defaults.
//
// Configuration is loaded from multiple sources in priority order:
// 1. Built-in defaults
// 2. Config file (--config, or todo.toml / .todo.toml in the working directory)
// 3. Environment variables (TODO_*)
// 4. CLI flags, applied by the caller through Overrides
//
// Each level overrides the previous one.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendNATS   = "nats"
)

// Default values.
const (
	DefaultBackend    = BackendFile
	DefaultCollection = "todo-list"
	DefaultDataDir    = "."
	DefaultNATSURL    = "nats://127.0.0.1:4222"
	DefaultListen     = ":8080"
	DefaultTheme      = "classic"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
)

var (
	ErrUnknownBackend = errors.New("unknown backend")
	ErrInvalidValue   = errors.New("invalid config value")
)

// projectConfigFiles are searched in the working directory, first match wins.
var projectConfigFiles = []string{"todo.toml", ".todo.toml"}

// Config holds the full configuration.
type Config struct {
	// Store
	Backend    string `toml:"backend"`
	Collection string `toml:"collection"`
	DataDir    string `toml:"data_dir"`
	NATSURL    string `toml:"nats_url"`

	// Surfaces
	Listen string `toml:"listen"`
	Theme  string `toml:"theme"`

	// Logging
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogFile   string `toml:"log_file"`

	// Path of the file the config was read from, empty for none.
	Source string `toml:"-"`
}

// Overrides carries flag values; nil fields leave the loaded value alone.
type Overrides struct {
	Backend    *string
	Collection *string
	DataDir    *string
	NATSURL    *string
	Listen     *string
	Theme      *string
	LogLevel   *string
}

// Default returns a config with every field at its default.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	cfg.Backend = DefaultBackend
	cfg.Collection = DefaultCollection
	cfg.DataDir = DefaultDataDir
	cfg.NATSURL = DefaultNATSURL
	cfg.Listen = DefaultListen
	cfg.Theme = DefaultTheme
	cfg.LogLevel = DefaultLogLevel
	cfg.LogFormat = DefaultLogFormat
}

// Load builds the config from defaults, the config file, env and overrides.
// An explicit path must exist; the project files are optional.
func Load(path string, ov Overrides) (*Config, error) {
	cfg := Default()

	file := path
	if file == "" {
		file = findProjectConfigFile()
	}
	if file != "" {
		if err := loadConfigFile(cfg, file); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", file, err)
		}
		cfg.Source = file
	}

	loadFromEnv(cfg)
	applyOverrides(cfg, ov)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findProjectConfigFile() string {
	for _, name := range projectConfigFiles {
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			return name
		}
	}
	return ""
}

func loadConfigFile(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%w: unknown keys %s", ErrInvalidValue, strings.Join(keys, ", "))
	}
	return nil
}

// loadFromEnv overrides config from environment variables.
func loadFromEnv(cfg *Config) {
	envs := []struct {
		name string
		dst  *string
	}{
		{"TODO_BACKEND", &cfg.Backend},
		{"TODO_COLLECTION", &cfg.Collection},
		{"TODO_DATA_DIR", &cfg.DataDir},
		{"TODO_NATS_URL", &cfg.NATSURL},
		{"TODO_LISTEN", &cfg.Listen},
		{"TODO_THEME", &cfg.Theme},
		{"TODO_LOG_LEVEL", &cfg.LogLevel},
		{"TODO_LOG_FORMAT", &cfg.LogFormat},
		{"TODO_LOG_FILE", &cfg.LogFile},
	}
	for _, e := range envs {
		if v := strings.TrimSpace(os.Getenv(e.name)); v != "" {
			*e.dst = v
		}
	}
}

func applyOverrides(cfg *Config, ov Overrides) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cfg.Backend, ov.Backend)
	set(&cfg.Collection, ov.Collection)
	set(&cfg.DataDir, ov.DataDir)
	set(&cfg.NATSURL, ov.NATSURL)
	set(&cfg.Listen, ov.Listen)
	set(&cfg.Theme, ov.Theme)
	set(&cfg.LogLevel, ov.LogLevel)
}

// Validate checks enumerated fields and required values.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case BackendMemory, BackendFile, BackendNATS:
	default:
		return fmt.Errorf("%w %q (want memory, file or nats)", ErrUnknownBackend, c.Backend)
	}
	if strings.TrimSpace(c.Collection) == "" {
		return fmt.Errorf("%w: collection is empty", ErrInvalidValue)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log_level %q", ErrInvalidValue, c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalidValue, c.LogFormat)
	}
	switch strings.ToLower(c.Theme) {
	case "classic", "neon", "mono":
	default:
		return fmt.Errorf("%w: theme %q", ErrInvalidValue, c.Theme)
	}
	return nil
}

// Example returns a commented config file with the defaults.
func Example() string {
	return fmt.Sprintf(`# livetodo configuration
backend = %q      # memory | file | nats
collection = %q
data_dir = %q          # file backend
nats_url = %q

listen = %q      # serve
theme = %q      # classic | neon | mono

log_level = %q       # debug | info | warn | error
log_format = %q      # text | json | logfmt
# log_file = "todo.log"
`, DefaultBackend, DefaultCollection, DefaultDataDir, DefaultNATSURL,
		DefaultListen, DefaultTheme, DefaultLogLevel, DefaultLogFormat)
}

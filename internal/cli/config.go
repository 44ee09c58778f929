package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	// DefaultConfigFile is read from the working directory when --config is not given.
	DefaultConfigFile = "dynq.yaml"
	DefaultOutput     = "table"
	DefaultTimeout    = 30 * time.Second

	envPrefix = "DYNQ_"
)

// Config is the connection and output setup of one dynq run.
type Config struct {
	Dialect    string        `koanf:"dialect"`
	Driver     string        `koanf:"driver"`
	DSN        string        `koanf:"dsn"`
	Table      string        `koanf:"table"`
	PrimaryKey string        `koanf:"primary_key"`
	Sequence   string        `koanf:"sequence"`
	Timeout    time.Duration `koanf:"timeout"`
	Output     string        `koanf:"output"`
	Verbose    bool          `koanf:"verbose"`

	// SessionParams are applied to Oracle sessions, e.g. NLS_DATE_FORMAT.
	SessionParams map[string]string `koanf:"session_params"`
}

// Validate checks the settings a model cannot be opened without.
func (c *Config) Validate() error {
	if c.Dialect == "" {
		return fmt.Errorf("dialect is required")
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	switch c.Output {
	case "table", "json":
	default:
		return fmt.Errorf("unknown output format %q (table|json)", c.Output)
	}
	return nil
}

// LoadConfig loads configuration from defaults, the config file, DYNQ_
// environment variables and flags. Later sources win.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, string, error) {
	k := koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"timeout": DefaultTimeout.String(),
		"output":  DefaultOutput,
		"verbose": false,
	}, "."), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	used := cfgFile
	if used == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			used = DefaultConfigFile
		}
	}
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, "", fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// 3. Environment: DYNQ_PRIMARY_KEY -> primary_key
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags, only those explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, "", fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, "", fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Dialect = strings.ToLower(cfg.Dialect)
	return &cfg, used, nil
}

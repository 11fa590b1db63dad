package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors — silently ignoring a
// typo in a config file leads to hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values. This supports the
// zero-config first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// checkUnknownKeys rejects config keys that did not decode into a field.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		keys = append(keys, k.String())
	}

	return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
}

// CLIOverrides holds values from command-line flags, the top layer of the
// override chain.
type CLIOverrides struct {
	ConfigPath string
	ListenAddr string
	StateDB    string
	UserID     string
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// CLI flags always win, matching user expectations for one-off overrides.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg, env)
	applyCLI(cfg, cli)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config, env EnvOverrides) {
	if env.StateDB != "" {
		cfg.StateDB = env.StateDB
	}

	if env.SessionSecret != "" {
		cfg.Session.Secret = env.SessionSecret
	}

	if env.GoogleClientID != "" {
		cfg.Google.ClientID = env.GoogleClientID
	}

	if env.GoogleClientSecret != "" {
		cfg.Google.ClientSecret = env.GoogleClientSecret
	}

	if env.OpenAIAPIKey != "" {
		cfg.Finance.OpenAIAPIKey = env.OpenAIAPIKey
	}
}

func applyCLI(cfg *Config, cli CLIOverrides) {
	if cli.ListenAddr != "" {
		cfg.ListenAddr = cli.ListenAddr
	}

	if cli.StateDB != "" {
		cfg.StateDB = cli.StateDB
	}

	if cli.UserID != "" {
		cfg.UserID = cli.UserID
	}
}

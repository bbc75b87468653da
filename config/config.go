package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type StorageConfig struct {
	// Backend is "file" (one JSON document per key) or "sqlite".
	Backend string `toml:"backend"`
}

type DefaultsConfig struct {
	Provider     string   `toml:"provider"`
	Model        string   `toml:"model"`
	SystemPrompt string   `toml:"system_prompt"`
	MaxTurns     int      `toml:"max_turns"`
	Temperature  *float64 `toml:"temperature,omitempty"`
	MaxTokens    int      `toml:"max_tokens"`
	Stream       bool     `toml:"stream"`
}

type SecurityConfig struct {
	Method     string `toml:"method"`
	SSHKeyPath string `toml:"ssh_key_path,omitempty"`
}

type MetricsConfig struct {
	Listen string `toml:"listen"`
}

type UserConfig struct {
	Storage  StorageConfig  `toml:"storage"`
	Defaults DefaultsConfig `toml:"defaults"`
	Security SecurityConfig `toml:"security"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

type Config struct {
	DataDirectory  string
	StorageBackend string
	Defaults       DefaultsConfig
	Security       SecurityConfig
	MetricsListen  string

	// EnvAPIKeys holds vendor keys found in the environment, keyed by provider id.
	EnvAPIKeys map[string]string
}

// envAPIKeyVars maps provider ids to the environment variables that may seed
// their API keys.
var envAPIKeyVars = map[string]string{
	"anthropic":  "ANTHROPIC_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
}

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

func (c *Config) applyUserConfig(u *UserConfig) {
	if u.Storage.Backend != "" {
		c.StorageBackend = u.Storage.Backend
	}
	c.Defaults = u.Defaults
	c.Security = u.Security
	c.MetricsListen = u.Metrics.Listen
}

func (c *Config) applyEnvOverrides() {
	if dataDir := os.Getenv("CHATDESK_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if p := os.Getenv("CHATDESK_DEFAULT_PROVIDER"); p != "" {
		c.Defaults.Provider = p
	}
	if m := os.Getenv("CHATDESK_DEFAULT_MODEL"); m != "" {
		c.Defaults.Model = m
	}
	if b := os.Getenv("CHATDESK_STORAGE"); b != "" {
		c.StorageBackend = b
	}
	if n := os.Getenv("CHATDESK_MAX_TURNS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			c.Defaults.MaxTurns = v
		}
	}

	c.EnvAPIKeys = make(map[string]string)
	for id, name := range envAPIKeyVars {
		if key := os.Getenv(name); key != "" {
			c.EnvAPIKeys[id] = key
		}
	}
}

// loadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set.
func loadDotEnv(path string) {
	if !FileExists(path) {
		return
	}
	if err := godotenv.Load(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not read %s: %v\n", path, err)
	}
}

// Load resolves the configuration from settings.toml, the user's config.toml,
// .env files and CHATDESK_* environment variables, in increasing precedence.
func Load() (*Config, error) {
	loadDotEnv(".env")

	cfg := &Config{
		DataDirectory:  GetDefaultDataDir(),
		StorageBackend: "file",
	}

	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}
	if systemCfg.DataDirectory != "" {
		cfg.DataDirectory = systemCfg.DataDirectory
	}

	// The data directory may come from the environment, so settle it first.
	if dataDir := os.Getenv("CHATDESK_DATA_DIR"); dataDir != "" {
		cfg.DataDirectory = dataDir
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	loadDotEnv(filepath.Join(dataDir, ".env"))

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	cfg.applyUserConfig(userCfg)
	cfg.applyEnvOverrides()

	switch cfg.StorageBackend {
	case "file", "sqlite":
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	return cfg, nil
}

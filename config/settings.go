package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// LoadSystemConfig reads ~/.config/chatdesk/settings.toml, writing the
// commented template on first run.
func LoadSystemConfig() (*SystemConfig, error) {
	cfg := DefaultSystemConfig()
	if err := loadOrCreate(GetSettingsFilePath(), GenerateSystemConfigTemplate(), cfg); err != nil {
		return nil, fmt.Errorf("system config: %w", err)
	}
	return cfg, nil
}

// LoadUserConfig reads <dataDir>/config.toml over the defaults, writing the
// commented template on first run.
func LoadUserConfig(dataDir string) (*UserConfig, error) {
	cfg := DefaultUserConfig()
	if err := loadOrCreate(filepath.Join(dataDir, "config.toml"), GenerateUserConfigTemplate(), cfg); err != nil {
		return nil, fmt.Errorf("user config: %w", err)
	}
	return cfg, nil
}

// loadOrCreate decodes path into v. A missing file is created from template
// and v keeps its defaults.
func loadOrCreate(path, template string, v any) error {
	if !FileExists(path) {
		if err := EnsureDir(filepath.Dir(path)); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(template), 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		if Debug {
			DebugLog.Infof("Created default config at %s", path)
		}
		return nil
	}

	md, err := toml.DecodeFile(path, v)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 && Debug {
		DebugLog.Warnf("Ignoring unknown keys in %s: %v", path, undecoded)
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appName = "chatdesk"

// GetConfigDir is ~/.config/chatdesk on every platform.
func GetConfigDir() string {
	return filepath.Join(homeDir(), ".config", appName)
}

// GetDefaultDataDir is ~/.local/share/chatdesk, or %LOCALAPPDATA%\chatdesk
// on Windows.
func GetDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appName)
		}
		return filepath.Join(homeDir(), "AppData", "Local", appName)
	}
	return filepath.Join(homeDir(), ".local", "share", appName)
}

func GetSettingsFilePath() string {
	return filepath.Join(GetConfigDir(), "settings.toml")
}

// homeDir prefers $HOME so tests can redirect it.
func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return string(filepath.Separator)
}

// ExpandPath expands a leading ~ and environment variables.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		path = filepath.Join(homeDir(), strings.TrimPrefix(path, "~"))
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// EnsureDir creates path with user-only permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDataDirPermissions creates dataDir if needed and tightens it to 0700.
func EnsureDataDirPermissions(dataDir string) error {
	info, err := os.Stat(dataDir)
	if os.IsNotExist(err) {
		return EnsureDir(dataDir)
	}
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0700 {
		return os.Chmod(dataDir, 0700)
	}
	return nil
}

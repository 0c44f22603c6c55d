package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultDataDir picks the conventional per-OS location for broker state.
// Queue snapshots live under this directory unless configuration overrides
// it.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "quern")
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Quern")
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "Quern")
		}
		return filepath.Join(home, "AppData", "Local", "Quern")
	default:
		if isDir("/var/lib") {
			return "/var/lib/quern"
		}
		return filepath.Join(home, ".quern")
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

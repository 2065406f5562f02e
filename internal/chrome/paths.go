package chrome

import (
	"os"
	"path/filepath"
	"runtime"
)

// ConfigDir returns Chrome's configuration directory for the running OS.
func ConfigDir() string {
	home, _ := os.UserHomeDir()
	return configDirFor(runtime.GOOS, home, os.Getenv("LOCALAPPDATA"))
}

func configDirFor(goos, home, localAppData string) string {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Google", "Chrome")
	case "windows":
		if localAppData == "" {
			localAppData = filepath.Join(home, "AppData", "Local")
		}
		return filepath.Join(localAppData, "Google", "Chrome", "User Data")
	default:
		return filepath.Join(home, ".config", "google-chrome")
	}
}

func baseName(path string) string {
	return filepath.Base(filepath.Clean(path))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

package env

import (
	"os"
	"path/filepath"
)

// Version is stamped by the build (-ldflags "-X stack-keeper/internal/env.Version=...").
var Version string = "dev"

var Daemon bool = false

// (default: %USERPROFILE%/.stack-keeper on Windows, $HOME/.stack-keeper on Linux)
var KeeperDir string = GetKeeperDir()

/**
 * Get stack-keeper directory path
 * @returns {string} Returns stack-keeper directory path
 */
func GetKeeperDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".stack-keeper")
}

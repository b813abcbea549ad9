package commands

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/hay-kot/gltodo/internal/core/config"
	"github.com/hay-kot/gltodo/internal/core/credential"
	"github.com/hay-kot/gltodo/internal/engine"
)

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	DataDir    string
	Account    string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config

	// Engine runs sync passes and local to-do operations
	Engine *engine.Engine

	// TokenOverridden reports whether GITLAB_TOKEN supplies the token
	TokenOverridden func() bool
}

// account resolves --account against the loaded config.
func (f *Flags) account() (credential.Account, error) {
	return f.Config.Account(f.Account)
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "gltodo", "config.yaml")
}

// DefaultDataDir returns the default data directory using XDG_DATA_HOME.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "gltodo")
}

// DefaultLogFile returns the default log file path using the system's state directory.
// On macOS: ~/Library/Logs/gltodo/gltodo.log
// On Linux: $XDG_STATE_HOME/gltodo/gltodo.log (defaults to ~/.local/state/gltodo/gltodo.log)
func DefaultLogFile() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome != "" {
		return filepath.Join(stateHome, "gltodo", "gltodo.log")
	}

	home, _ := os.UserHomeDir()

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Logs", "gltodo", "gltodo.log")
	}

	return filepath.Join(home, ".local", "state", "gltodo", "gltodo.log")
}

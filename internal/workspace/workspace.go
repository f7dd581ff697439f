// Package workspace manages named, persistent workspaces under
// ~/.semtools/workspaces/<name>/. A workspace's config.json records its
// name, root directory and three tuning parameters (doc_top_k,
// in_batch_size, oversample_factor), and is looked up by name via the
// SEMTOOLS_WORKSPACE environment variable. The tuning parameters are
// saved and loaded here; the store-backed search does not read them. This is distinct from internal/config, which
// carries process-wide CLI defaults whether or not a workspace is active.
package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"

	semerrors "github.com/run-llama/semtools/internal/errors"
)

const activeWorkspaceEnvVar = "SEMTOOLS_WORKSPACE"

// Config is the persisted shape of a workspace's config.json.
type Config struct {
	Name             string `json:"name"`
	RootDir          string `json:"root_dir"`
	DocTopK          int    `json:"doc_top_k"`
	InBatchSize      int    `json:"in_batch_size"`
	OversampleFactor int    `json:"oversample_factor"`
}

// DefaultConfig returns the config a freshly created workspace starts
// with, before RootDir/Name are backfilled by Open.
func DefaultConfig() Config {
	return Config{
		Name:             "default",
		DocTopK:          250,
		InBatchSize:      5000,
		OversampleFactor: 3,
	}
}

// Workspace is a named workspace and its tuning config.
type Workspace struct {
	Config Config
}

// Open loads the active workspace (per SEMTOOLS_WORKSPACE) from disk,
// falling back to defaults when no config.json exists yet or it fails
// to parse. It never writes; call Save to persist.
func Open() (*Workspace, error) {
	name, err := Active()
	if err != nil {
		return nil, err
	}

	cfgPath, err := ConfigPathFor(name)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if data, readErr := os.ReadFile(cfgPath); readErr == nil {
		var loaded Config
		if json.Unmarshal(data, &loaded) == nil {
			config = loaded
		}
	}

	if config.RootDir == "" {
		rootDir, rootErr := RootPath(name)
		if rootErr != nil {
			return nil, rootErr
		}
		config.RootDir = rootDir
	}
	if config.Name == "" || config.Name == "default" {
		config.Name = name
	}

	return &Workspace{Config: config}, nil
}

// Save writes the workspace's config as pretty-printed JSON to its
// config.json, creating parent directories as needed.
func (w *Workspace) Save() error {
	cfgPath, err := ConfigPathFor(w.Config.Name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return semerrors.IOError("failed to create workspace directory", err)
	}

	data, err := json.MarshalIndent(w.Config, "", "  ")
	if err != nil {
		return semerrors.Wrap(semerrors.ErrCodeInternal, err)
	}

	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		return semerrors.IOError("failed to write workspace config", err)
	}
	return nil
}

// Active returns the name of the currently active workspace, or an
// error if SEMTOOLS_WORKSPACE is unset or empty.
func Active() (string, error) {
	name := os.Getenv(activeWorkspaceEnvVar)
	if name == "" {
		return "", semerrors.WorkspaceMissingError("no active workspace: set "+activeWorkspaceEnvVar+" or run `semtools workspace use <name>`", nil)
	}
	return name, nil
}

// ActivePath returns the root directory of the currently active
// workspace, or an error if none is active.
func ActivePath() (string, error) {
	name, err := Active()
	if err != nil {
		return "", err
	}
	return RootPath(name)
}

// RootPath returns ~/.semtools/workspaces/<name>.
func RootPath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", semerrors.IOError("no home directory found", err)
	}
	return filepath.Join(home, ".semtools", "workspaces", name), nil
}

// ConfigPathFor returns ~/.semtools/workspaces/<name>/config.json.
func ConfigPathFor(name string) (string, error) {
	root, err := RootPath(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "config.json"), nil
}

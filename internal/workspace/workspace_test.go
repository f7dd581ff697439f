package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "default", cfg.Name)
	assert.Equal(t, "", cfg.RootDir)
	assert.Equal(t, 250, cfg.DocTopK)
	assert.Equal(t, 5000, cfg.InBatchSize)
	assert.Equal(t, 3, cfg.OversampleFactor)
}

func TestConfig_JSONRoundTrip(t *testing.T) {
	cfg := Config{
		Name:             "test-workspace",
		RootDir:          "/tmp/test",
		DocTopK:          100,
		InBatchSize:      1000,
		OversampleFactor: 2,
	}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "test-workspace")
	assert.Contains(t, string(data), "100")

	var decoded Config
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, cfg, decoded)
}

func TestActive_ReturnsEnvVar(t *testing.T) {
	t.Setenv(activeWorkspaceEnvVar, "test-workspace")

	name, err := Active()
	require.NoError(t, err)
	assert.Equal(t, "test-workspace", name)

	path, err := ActivePath()
	require.NoError(t, err)
	assert.Contains(t, path, "test-workspace")
}

func TestActive_ErrorsWhenUnset(t *testing.T) {
	t.Setenv(activeWorkspaceEnvVar, "")

	_, err := Active()
	assert.Error(t, err)

	_, err = ActivePath()
	assert.Error(t, err)
}

func TestRootPath_ContainsNameUnderSemtoolsWorkspaces(t *testing.T) {
	path, err := RootPath("my-workspace")
	require.NoError(t, err)

	assert.Contains(t, path, ".semtools")
	assert.Contains(t, path, "workspaces")
	assert.Contains(t, path, "my-workspace")
}

func TestConfigPathFor_EndsWithConfigJSON(t *testing.T) {
	path, err := ConfigPathFor("my-workspace")
	require.NoError(t, err)

	assert.Contains(t, path, ".semtools")
	assert.Contains(t, path, "workspaces")
	assert.Contains(t, path, "my-workspace")
	assert.True(t, filepath.Base(path) == "config.json")
}

func TestWorkspace_SaveThenOpen(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(activeWorkspaceEnvVar, "test-save-open")

	rootDir, err := RootPath("test-save-open")
	require.NoError(t, err)

	ws := &Workspace{Config: Config{
		Name:             "test-save-open",
		RootDir:          rootDir,
		DocTopK:          123,
		InBatchSize:      456,
		OversampleFactor: 7,
	}}
	require.NoError(t, ws.Save())

	cfgPath, err := ConfigPathFor("test-save-open")
	require.NoError(t, err)
	_, statErr := os.Stat(cfgPath)
	require.NoError(t, statErr)

	loaded, err := Open()
	require.NoError(t, err)
	assert.Equal(t, "test-save-open", loaded.Config.Name)
	assert.Equal(t, 123, loaded.Config.DocTopK)
	assert.Equal(t, 456, loaded.Config.InBatchSize)
	assert.Equal(t, 7, loaded.Config.OversampleFactor)
}

func TestWorkspace_OpenWithDefaultsWhenNoConfigExists(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(activeWorkspaceEnvVar, "test-defaults")

	ws, err := Open()
	require.NoError(t, err)

	assert.Equal(t, "test-defaults", ws.Config.Name)
	assert.NotEmpty(t, ws.Config.RootDir)
	assert.Equal(t, 250, ws.Config.DocTopK)
}

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceCmd_HasUseStatusPruneSubcommands(t *testing.T) {
	root := NewRootCmd()

	for _, args := range [][]string{{"workspace", "use"}, {"workspace", "status"}, {"workspace", "prune"}} {
		_, _, err := root.Find(args)
		require.NoError(t, err, "expected subcommand %v", args)
	}
}

func TestWorkspaceUse_CreatesConfigAndPrintsExportLine(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"workspace", "use", "myworkspace"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "export SEMTOOLS_WORKSPACE=myworkspace")

	cfgPath := filepath.Join(home, ".semtools", "workspaces", "myworkspace", "config.json")
	_, statErr := os.Stat(cfgPath)
	assert.NoError(t, statErr)
}

func TestWorkspaceStatus_ErrorsWithNoActiveWorkspace(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SEMTOOLS_WORKSPACE", "")

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"workspace", "status"})

	assert.Error(t, root.Execute())
}

func TestWorkspaceList_MarksActiveWorkspace(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	createRoot := NewRootCmd()
	createRoot.SetOut(new(bytes.Buffer))
	createRoot.SetErr(new(bytes.Buffer))
	createRoot.SetArgs([]string{"workspace", "use", "alpha"})
	require.NoError(t, createRoot.Execute())

	createRoot2 := NewRootCmd()
	createRoot2.SetOut(new(bytes.Buffer))
	createRoot2.SetErr(new(bytes.Buffer))
	createRoot2.SetArgs([]string{"workspace", "use", "beta"})
	require.NoError(t, createRoot2.Execute())

	t.Setenv("SEMTOOLS_WORKSPACE", "beta")

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"workspace", "list"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "alpha")
	assert.Contains(t, buf.String(), "* beta")
}

func TestWorkspacePrune_ReportsCleanWhenNothingStale(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SEMTOOLS_WORKSPACE", "pruneme")

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"workspace", "use", "pruneme"})
	require.NoError(t, root.Execute())

	root2 := NewRootCmd()
	buf2 := new(bytes.Buffer)
	root2.SetOut(buf2)
	root2.SetErr(buf2)
	root2.SetArgs([]string{"workspace", "prune"})
	require.NoError(t, root2.Execute())
	assert.Contains(t, buf2.String(), "clean")
}

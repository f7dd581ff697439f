package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	semerrors "github.com/run-llama/semtools/internal/errors"
	"github.com/run-llama/semtools/internal/store"
	"github.com/run-llama/semtools/internal/ui"
	"github.com/run-llama/semtools/internal/workspace"
)

type workspaceOutputJSON struct {
	Name           string `json:"name"`
	RootDir        string `json:"root_dir"`
	TotalDocuments int    `json:"total_documents"`
}

type pruneOutputJSON struct {
	FilesRemoved   int `json:"files_removed"`
	FilesRemaining int `json:"files_remaining"`
}

func newWorkspaceCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage named, persistent workspaces",
	}
	cmd.PersistentFlags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")

	cmd.AddCommand(newWorkspaceUseCmd(&asJSON))
	cmd.AddCommand(newWorkspaceStatusCmd(&asJSON))
	cmd.AddCommand(newWorkspacePruneCmd(&asJSON))
	cmd.AddCommand(newWorkspaceListCmd(&asJSON))

	return cmd
}

// workspaceListEntryJSON is one entry in `workspace list`'s JSON output.
type workspaceListEntryJSON struct {
	Name    string `json:"name"`
	RootDir string `json:"root_dir"`
	Active  bool   `json:"active"`
}

func newWorkspaceListCmd(asJSON *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known workspaces under ~/.semtools/workspaces/",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base, err := workspace.RootPath("")
			if err != nil {
				return err
			}

			entries, err := os.ReadDir(base)
			if err != nil {
				if os.IsNotExist(err) {
					entries = nil
				} else {
					return semerrors.IOError("failed to list workspaces directory", err)
				}
			}

			active, _ := workspace.Active()

			names := make([]string, 0, len(entries))
			for _, e := range entries {
				if e.IsDir() {
					names = append(names, e.Name())
				}
			}
			sort.Strings(names)

			if *asJSON {
				list := make([]workspaceListEntryJSON, 0, len(names))
				for _, name := range names {
					rootDir, _ := workspace.RootPath(name)
					list = append(list, workspaceListEntryJSON{Name: name, RootDir: rootDir, Active: name == active})
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}

			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, "No workspaces found.")
				return nil
			}
			for _, name := range names {
				marker := "  "
				if name == active {
					marker = "* "
				}
				fmt.Fprintf(out, "%s%s\n", marker, name)
			}
			return nil
		},
	}
}

func newWorkspaceUseCmd(asJSON *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Create or select a workspace by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			rootDir, err := workspace.RootPath(name)
			if err != nil {
				return err
			}
			ws := &workspace.Workspace{Config: workspace.DefaultConfig()}
			ws.Config.Name = name
			ws.Config.RootDir = rootDir
			if err := ws.Save(); err != nil {
				return err
			}

			totalDocuments := 0
			if s, err := store.Open(ws.Config.RootDir, 0); err == nil {
				if stats, err := s.GetStats(cmd.Context()); err == nil {
					totalDocuments = stats.DocumentCount
				}
				_ = s.Close()
			}

			if *asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(workspaceOutputJSON{
					Name:           ws.Config.Name,
					RootDir:        ws.Config.RootDir,
					TotalDocuments: totalDocuments,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Workspace '%s' configured.\n", name)
			fmt.Fprintln(out, "To activate it, run:")
			fmt.Fprintf(out, "  export SEMTOOLS_WORKSPACE=%s\n", name)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Or add this to your shell profile (.bashrc, .zshrc, etc.)")
			return nil
		},
	}
}

func newWorkspaceStatusCmd(asJSON *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active workspace's document and storage stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := workspace.Open()
			if err != nil {
				return err
			}
			s, err := store.Open(ws.Config.RootDir, 0)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			stats, err := s.GetStats(cmd.Context())
			if err != nil {
				return err
			}

			if *asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(workspaceOutputJSON{
					Name:           ws.Config.Name,
					RootDir:        ws.Config.RootDir,
					TotalDocuments: stats.DocumentCount,
				})
			}

			renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), false)
			return renderer.Render(ui.StatusInfo{
				WorkspaceName:    ws.Config.Name,
				RootPath:         ws.Config.RootDir,
				TotalDocuments:   stats.DocumentCount,
				TotalLines:       stats.LineVectorCount,
				DocumentsSize:    stats.DocumentsSizeBytes,
				LineVectorsSize:  stats.LineVectorsSizeBytes,
				TotalSize:        stats.DocumentsSizeBytes + stats.LineVectorsSizeBytes,
				EmbedderProvider: "static",
				EmbedderStatus:   "ready",
			})
		},
	}
}

func newWorkspacePruneCmd(asJSON *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove persisted documents whose files no longer exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := workspace.Open()
			if err != nil {
				return err
			}
			s, err := store.Open(ws.Config.RootDir, 0)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			ctx := cmd.Context()
			allPaths, err := s.GetAllDocumentPaths(ctx)
			if err != nil {
				return err
			}

			var missing []string
			for _, p := range allPaths {
				if _, statErr := os.Stat(p); statErr != nil {
					missing = append(missing, p)
				}
			}

			if len(missing) > 0 {
				if err := s.DeleteDocuments(ctx, missing); err != nil {
					return semerrors.StoreCorruptError("failed to prune stale documents", err)
				}
			}

			filesRemoved := len(missing)
			filesRemaining := len(allPaths) - filesRemoved

			if *asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(pruneOutputJSON{FilesRemoved: filesRemoved, FilesRemaining: filesRemaining})
			}

			out := cmd.OutOrStdout()
			if len(missing) == 0 {
				fmt.Fprintln(out, "No stale documents found. Workspace is clean.")
				return nil
			}
			fmt.Fprintf(out, "Found %d stale documents:\n", len(missing))
			for _, p := range missing {
				fmt.Fprintf(out, "  - %s\n", p)
			}
			fmt.Fprintf(out, "Removed %d stale documents from workspace.\n", len(missing))
			return nil
		},
	}
}

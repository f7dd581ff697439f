package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	semerrors "github.com/run-llama/semtools/internal/errors"
	"github.com/run-llama/semtools/internal/tools"
)

type searchOptions struct {
	nLines      int
	topK        int
	maxDistance float64
	hasMax      bool
	ignoreCase  bool
	asJSON      bool
}

// searchResultJSON is one chunk in the search command's JSON output.
type searchResultJSON struct {
	Filename        string  `json:"filename"`
	StartLineNumber int     `json:"start_line_number"`
	EndLineNumber   int     `json:"end_line_number"`
	MatchLineNumber int     `json:"match_line_number"`
	Distance        float64 `json:"distance"`
	Content         string  `json:"content"`
}

type searchOutputJSON struct {
	Results []searchResultJSON `json:"results"`
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query> [files...]",
		Short: "Rank lines across files by semantic similarity to a query",
		Long: `search ranks lines across a set of files by semantic similarity to a
natural-language query.

If no files are given and stdin is not a terminal, each line read from
stdin is treated as one line of a single virtual "<stdin>" document.

When SEMTOOLS_WORKSPACE is set, files are reconciled against the active
workspace's persisted store so unchanged files are not re-embedded.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0], args[1:], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.nLines, "n-lines", "n", 3, "Lines of context around each match")
	cmd.Flags().IntVar(&opts.nLines, "context", 3, "Alias for --n-lines")
	cmd.Flags().IntVar(&opts.topK, "top-k", 3, "Maximum number of results")
	cmd.Flags().Float64Var(&opts.maxDistance, "max-distance", 0, "Discard results farther than this distance")
	cmd.Flags().Float64Var(&opts.maxDistance, "threshold", 0, "Alias for --max-distance")
	cmd.Flags().BoolVarP(&opts.ignoreCase, "ignore-case", "i", false, "Fold case before embedding")
	cmd.Flags().BoolVarP(&opts.asJSON, "json", "j", false, "Output as JSON")

	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		opts.hasMax = cmd.Flags().Changed("max-distance") || cmd.Flags().Changed("threshold")
		return nil
	}

	return cmd
}

func runSearch(cmd *cobra.Command, query string, files []string, opts searchOptions) error {
	ctx := cmd.Context()

	if len(files) == 0 && !isatty.IsTerminal(os.Stdin.Fd()) {
		return runStdinSearch(cmd, query, opts)
	}

	if len(files) == 0 {
		return writeSearchError(cmd, opts.asJSON,
			"No input provided. Either specify files as arguments or pipe input to stdin.", "NoInput")
	}

	embedder, err := newConfiguredEmbedder(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	input := tools.SemanticSearchInput{
		Query:      query,
		Files:      files,
		NLines:     opts.nLines,
		TopK:       opts.topK,
		IgnoreCase: opts.ignoreCase,
	}
	if opts.hasMax {
		input.MaxDistance = &opts.maxDistance
	}

	output, err := tools.SemanticSearch(ctx, embedder, input)
	if err != nil {
		return writeSearchError(cmd, opts.asJSON, err.Error(), "SearchFailed")
	}

	return printChunks(cmd, output.Chunks, opts.asJSON)
}

func runStdinSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	ctx := cmd.Context()

	var lines []string
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return semerrors.IOError("failed to read stdin", err)
	}
	if len(lines) == 0 {
		return writeSearchError(cmd, opts.asJSON,
			"No input provided. Either specify files as arguments or pipe input to stdin.", "NoInput")
	}

	tmp, err := os.CreateTemp("", "semtools-stdin-*.txt")
	if err != nil {
		return semerrors.IOError("failed to buffer stdin", err)
	}
	defer os.Remove(tmp.Name())
	for _, l := range lines {
		if _, err := io.WriteString(tmp, l+"\n"); err != nil {
			_ = tmp.Close()
			return semerrors.IOError("failed to buffer stdin", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return semerrors.IOError("failed to buffer stdin", err)
	}

	embedder, err := newConfiguredEmbedder(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	input := tools.SemanticSearchInput{
		Query:      query,
		Files:      []string{tmp.Name()},
		NLines:     opts.nLines,
		TopK:       opts.topK,
		IgnoreCase: opts.ignoreCase,
	}
	if opts.hasMax {
		input.MaxDistance = &opts.maxDistance
	}

	result, err := tools.SemanticSearch(ctx, embedder, input)
	if err != nil {
		return writeSearchError(cmd, opts.asJSON, err.Error(), "SearchFailed")
	}
	for i := range result.Chunks {
		result.Chunks[i].File = "<stdin>"
	}

	return printChunks(cmd, result.Chunks, opts.asJSON)
}

func printChunks(cmd *cobra.Command, chunks []tools.Chunk, asJSON bool) error {
	if asJSON {
		results := make([]searchResultJSON, 0, len(chunks))
		for _, c := range chunks {
			results = append(results, searchResultJSON{
				Filename:        c.File,
				StartLineNumber: c.Start,
				EndLineNumber:   c.End,
				MatchLineNumber: c.MatchLine,
				Distance:        c.Distance,
				Content:         joinLines(c.Lines),
			})
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(searchOutputJSON{Results: results})
	}

	out := cmd.OutOrStdout()
	isTTY := isatty.IsTerminal(os.Stdout.Fd())
	for _, c := range chunks {
		fmt.Fprintf(out, "%s:%d::%d (%g)\n", c.File, c.Start, c.End, c.Distance)
		for i, line := range c.Lines {
			lineNumber := c.Start + i + 1
			if isTTY && c.Start+i == c.MatchLine {
				fmt.Fprintf(out, "\x1b[43m\x1b[30m%4d: %s\x1b[0m\n", lineNumber, line)
			} else {
				fmt.Fprintf(out, "%4d: %s\n", lineNumber, line)
			}
		}
		fmt.Fprintln(out)
	}
	return nil
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func writeSearchError(cmd *cobra.Command, asJSON bool, message, errType string) error {
	if asJSON {
		enc := json.NewEncoder(cmd.ErrOrStderr())
		enc.SetIndent("", "  ")
		_ = enc.Encode(struct {
			Error     string `json:"error"`
			ErrorType string `json:"error_type"`
		}{message, errType})
		return semerrors.ValidationError(message, nil)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", message)
	return semerrors.ValidationError(message, nil)
}

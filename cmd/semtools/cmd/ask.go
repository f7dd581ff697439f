package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/run-llama/semtools/internal/tools"
)

// askOutputJSON mirrors the shape of a single-shot question answered by
// one semantic search pass over the given files.
type askOutputJSON struct {
	Query         string             `json:"query"`
	FilesSearched []string           `json:"files_searched"`
	Results       []searchResultJSON `json:"results"`
}

func newAskCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "ask <query> <files...>",
		Short: "Answer a question by ranking the most relevant lines in files",
		Long: `ask runs one semantic search pass over the given files and prints the
most relevant chunks for the query.

This is the tool-calling surface without the multi-turn chat loop: it
answers by retrieval, not by sending results to a language model.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, args[0], args[1:], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.nLines, "n-lines", "n", 3, "Lines of context around each match")
	cmd.Flags().IntVar(&opts.topK, "top-k", 5, "Maximum number of results")
	cmd.Flags().BoolVarP(&opts.ignoreCase, "ignore-case", "i", false, "Fold case before embedding")
	cmd.Flags().BoolVarP(&opts.asJSON, "json", "j", false, "Output as JSON")

	return cmd
}

func runAsk(cmd *cobra.Command, query string, files []string, opts searchOptions) error {
	ctx := cmd.Context()

	embedder, err := newConfiguredEmbedder(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	output, err := tools.SemanticSearch(ctx, embedder, tools.SemanticSearchInput{
		Query:      query,
		Files:      files,
		NLines:     opts.nLines,
		TopK:       opts.topK,
		IgnoreCase: opts.ignoreCase,
	})
	if err != nil {
		return writeSearchError(cmd, opts.asJSON, err.Error(), "SearchFailed")
	}

	if opts.asJSON {
		results := make([]searchResultJSON, 0, len(output.Chunks))
		for _, c := range output.Chunks {
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
		return enc.Encode(askOutputJSON{Query: query, FilesSearched: files, Results: results})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Query: %s\n\n", query)
	return printChunks(cmd, output.Chunks, false)
}

package cmd

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/run-llama/semtools/internal/embed"
	"github.com/run-llama/semtools/internal/tools"
	"github.com/run-llama/semtools/pkg/version"
)

// mcpServer bridges an MCP client (Claude Code, Cursor, etc.) to the
// three tool operations.
type mcpServer struct {
	mcp      *mcpsdk.Server
	embedder embed.Embedder
	logger   *slog.Logger
}

func newMCPServer(embedder embed.Embedder) *mcpServer {
	s := &mcpServer{
		embedder: embedder,
		logger:   slog.Default(),
	}

	s.mcp = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "semtools",
			Version: version.Short(),
		},
		nil,
	)
	s.registerTools()

	return s
}

func (s *mcpServer) registerTools() {
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "semantic_search",
		Description: "Rank lines across a set of files by semantic similarity to a natural-language query. Prefer this over grep when you don't know the exact wording of what you're looking for.",
	}, s.semanticSearchHandler)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "grep",
		Description: "Scan a set of files line by line for a literal string or regular expression, with surrounding context lines. Use this when you know the exact text or pattern to find.",
	}, s.grepHandler)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "read_range",
		Description: "Read a specific range of lines from one file. Use this to pull up the full context around a match found by semantic_search or grep.",
	}, s.readRangeHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 3))
}

// semanticSearchInput is the MCP-visible input schema for semantic_search.
type semanticSearchInput struct {
	Query       string   `json:"query" jsonschema:"the natural-language query to rank lines against"`
	Files       []string `json:"files" jsonschema:"paths of the files to search"`
	NLines      int      `json:"n_lines,omitempty" jsonschema:"lines of context around each match, default 3"`
	TopK        int      `json:"top_k,omitempty" jsonschema:"maximum number of results, default 3"`
	MaxDistance *float64 `json:"max_distance,omitempty" jsonschema:"discard results farther than this cosine distance"`
	IgnoreCase  bool     `json:"ignore_case,omitempty" jsonschema:"fold case before embedding"`
}

// chunkOutput is the MCP-visible shape of one returned chunk.
type chunkOutput struct {
	File      string   `json:"file"`
	Start     int      `json:"start"`
	End       int      `json:"end"`
	MatchLine int      `json:"match_line"`
	Distance  float64  `json:"distance,omitempty"`
	Lines     []string `json:"lines"`
}

type chunksOutput struct {
	Chunks []chunkOutput `json:"chunks"`
}

func toChunkOutputs(chunks []tools.Chunk) []chunkOutput {
	out := make([]chunkOutput, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, chunkOutput{File: c.File, Start: c.Start, End: c.End, MatchLine: c.MatchLine, Distance: c.Distance, Lines: c.Lines})
	}
	return out
}

func (s *mcpServer) semanticSearchHandler(ctx context.Context, _ *mcpsdk.CallToolRequest, input semanticSearchInput) (*mcpsdk.CallToolResult, chunksOutput, error) {
	nLines := input.NLines
	if nLines == 0 {
		nLines = 3
	}
	topK := input.TopK
	if topK == 0 {
		topK = 3
	}

	output, err := tools.SemanticSearch(ctx, s.embedder, tools.SemanticSearchInput{
		Query:       input.Query,
		Files:       input.Files,
		NLines:      nLines,
		TopK:        topK,
		MaxDistance: input.MaxDistance,
		IgnoreCase:  input.IgnoreCase,
	})
	if err != nil {
		return nil, chunksOutput{}, err
	}
	return nil, chunksOutput{Chunks: toChunkOutputs(output.Chunks)}, nil
}

// grepInput is the MCP-visible input schema for grep.
type grepInput struct {
	Pattern       string   `json:"pattern" jsonschema:"the literal string or regular expression to search for"`
	Files         []string `json:"files" jsonschema:"paths of the files to search"`
	IsRegex       bool     `json:"is_regex,omitempty" jsonschema:"treat pattern as a regular expression"`
	CaseSensitive bool     `json:"case_sensitive,omitempty" jsonschema:"match case exactly, default false"`
	ContextLines  int      `json:"context_lines,omitempty" jsonschema:"lines of context around each match, default 2"`
}

func (s *mcpServer) grepHandler(_ context.Context, _ *mcpsdk.CallToolRequest, input grepInput) (*mcpsdk.CallToolResult, chunksOutput, error) {
	contextLines := input.ContextLines
	if contextLines == 0 {
		contextLines = 2
	}

	output, err := tools.Grep(context.Background(), tools.GrepInput{
		Pattern:       input.Pattern,
		Files:         input.Files,
		IsRegex:       input.IsRegex,
		CaseSensitive: input.CaseSensitive,
		ContextLines:  contextLines,
	})
	if err != nil {
		return nil, chunksOutput{}, err
	}
	return nil, chunksOutput{Chunks: toChunkOutputs(output.Chunks)}, nil
}

// readRangeInput is the MCP-visible input schema for read_range.
type readRangeInput struct {
	Path      string `json:"path" jsonschema:"path of the file to read"`
	StartLine int    `json:"start_line" jsonschema:"first line to read, 0-based, inclusive"`
	EndLine   int    `json:"end_line" jsonschema:"last line to read, 0-based, exclusive"`
}

func (s *mcpServer) readRangeHandler(ctx context.Context, _ *mcpsdk.CallToolRequest, input readRangeInput) (*mcpsdk.CallToolResult, chunkOutput, error) {
	chunk, err := tools.ReadRange(ctx, tools.ReadRangeInput{
		Path:      input.Path,
		StartLine: input.StartLine,
		EndLine:   input.EndLine,
	})
	if err != nil {
		return nil, chunkOutput{}, err
	}
	return nil, chunkOutput{File: chunk.File, Start: chunk.Start, End: chunk.End, MatchLine: chunk.MatchLine, Distance: chunk.Distance, Lines: chunk.Lines}, nil
}

// serve runs the server over stdio until the context is canceled.
func (s *mcpServer) serve(ctx context.Context) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcpsdk.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run an MCP server exposing semantic search, grep, and ranged reads over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			embedder, err := newConfiguredEmbedder(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = embedder.Close() }()

			server := newMCPServer(embedder)
			return server.serve(ctx)
		},
	}
}

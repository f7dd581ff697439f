// Package tools implements the operations an agent (or an MCP client)
// drives against a set of files: semantic search, regex grep, and a
// ranged file read. Each is a plain function independent of any agent
// loop or transport — cmd/semtools/cmd/mcp.go is what exposes them over
// MCP, and nothing here knows that caller exists.
package tools

import (
	"bufio"
	"context"
	"os"
	"regexp"
	"strings"

	semerrors "github.com/run-llama/semtools/internal/errors"
	"github.com/run-llama/semtools/internal/embed"
	"github.com/run-llama/semtools/internal/semsearch"
	"github.com/run-llama/semtools/internal/workspace"
)

// Chunk is one contiguous range of lines returned by any of the three
// tools, formatted the same way regardless of which tool produced it.
type Chunk struct {
	File      string   `json:"file"`
	Start     int      `json:"start"`
	End       int      `json:"end"`
	MatchLine int      `json:"match_line"`
	Distance  float64  `json:"distance,omitempty"`
	Lines     []string `json:"lines"`
}

// SemanticSearchInput is the input to SemanticSearch.
type SemanticSearchInput struct {
	Query       string
	Files       []string
	NLines      int
	TopK        int
	MaxDistance *float64
	IgnoreCase  bool
}

// SemanticSearchOutput is the output of SemanticSearch.
type SemanticSearchOutput struct {
	Chunks []Chunk
}

// SemanticSearch ranks lines across Files by semantic similarity to
// Query. When a workspace is active (SEMTOOLS_WORKSPACE is set), it
// reconciles and searches the persisted store; otherwise it embeds
// everything in memory for this call only.
func SemanticSearch(ctx context.Context, embedder embed.Embedder, input SemanticSearchInput) (SemanticSearchOutput, error) {
	if len(input.Files) == 0 {
		return SemanticSearchOutput{}, semerrors.ValidationError(
			"no input provided: specify files or pipe input to stdin", nil)
	}

	cfg := semsearch.Config{
		NLines:      input.NLines,
		TopK:        input.TopK,
		MaxDistance: input.MaxDistance,
		IgnoreCase:  input.IgnoreCase,
	}

	if _, err := workspace.Active(); err == nil {
		ws, wsErr := workspace.Open()
		if wsErr != nil {
			return SemanticSearchOutput{}, wsErr
		}

		rankedLines, searchErr := semsearch.SearchWithWorkspace(ctx, input.Files, input.Query, embedder, cfg, ws)
		if searchErr != nil {
			return SemanticSearchOutput{}, searchErr
		}

		chunks := make([]Chunk, 0, len(rankedLines))
		for _, rl := range rankedLines {
			lines, start, end, readErr := semsearch.ResolveContext(rl.Path, int(rl.LineNumber), input.NLines)
			if readErr != nil {
				chunks = append(chunks, Chunk{File: rl.Path, MatchLine: int(rl.LineNumber), Distance: float64(rl.Distance), Lines: []string{"[error: could not read file content]"}})
				continue
			}
			chunks = append(chunks, Chunk{File: rl.Path, Start: start, End: end, MatchLine: int(rl.LineNumber), Distance: float64(rl.Distance), Lines: lines})
		}
		return SemanticSearchOutput{Chunks: chunks}, nil
	}

	results, err := semsearch.SearchFiles(ctx, input.Files, input.Query, embedder, cfg)
	if err != nil {
		return SemanticSearchOutput{}, err
	}

	chunks := make([]Chunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, Chunk{File: r.Path, Start: r.Start, End: r.End, MatchLine: r.MatchLine, Distance: r.Distance, Lines: r.Lines})
	}
	return SemanticSearchOutput{Chunks: chunks}, nil
}

// GrepInput is the input to Grep.
type GrepInput struct {
	Pattern       string
	Files         []string
	IsRegex       bool
	CaseSensitive bool
	ContextLines  int
}

// GrepOutput is the output of Grep.
type GrepOutput struct {
	Chunks []Chunk
}

// Grep scans Files line by line for Pattern, literal or regex, and
// returns every match with ContextLines of surrounding context.
func Grep(_ context.Context, input GrepInput) (GrepOutput, error) {
	if len(input.Files) == 0 {
		return GrepOutput{}, semerrors.ValidationError(
			"no input provided: specify files or pipe input to stdin", nil)
	}

	matcher, err := buildMatcher(input.Pattern, input.IsRegex, input.CaseSensitive)
	if err != nil {
		return GrepOutput{}, semerrors.ValidationError("invalid grep pattern: "+input.Pattern, err)
	}

	var chunks []Chunk
	for _, path := range input.Files {
		lines, err := readLines(path)
		if err != nil {
			return GrepOutput{}, semerrors.IOError("failed to read "+path, err)
		}

		for idx, line := range lines {
			if !matcher(line) {
				continue
			}

			start := idx - input.ContextLines
			if start < 0 {
				start = 0
			}
			end := idx + input.ContextLines + 1
			if end > len(lines) {
				end = len(lines)
			}

			chunks = append(chunks, Chunk{
				File:      path,
				Start:     start,
				End:       end,
				MatchLine: idx,
				Lines:     lines[start:end],
			})
		}
	}

	return GrepOutput{Chunks: chunks}, nil
}

func buildMatcher(pattern string, isRegex, caseSensitive bool) (func(string) bool, error) {
	if isRegex {
		expr := pattern
		if !caseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		return re.MatchString, nil
	}

	needle := pattern
	if !caseSensitive {
		needle = strings.ToLower(needle)
	}
	return func(line string) bool {
		if !caseSensitive {
			line = strings.ToLower(line)
		}
		return strings.Contains(line, needle)
	}, nil
}

// ReadRangeInput is the input to ReadRange.
type ReadRangeInput struct {
	Path      string
	StartLine int
	EndLine   int // exclusive
}

// ReadRange reads Path and returns the lines in [StartLine, EndLine).
func ReadRange(_ context.Context, input ReadRangeInput) (Chunk, error) {
	lines, err := readLines(input.Path)
	if err != nil {
		return Chunk{}, semerrors.IOError("failed to read "+input.Path, err)
	}

	start := input.StartLine
	if start < 0 {
		start = 0
	}
	if start > len(lines) {
		start = len(lines)
	}
	end := input.EndLine
	if end > len(lines) {
		end = len(lines)
	}
	if end < start {
		end = start
	}

	return Chunk{File: input.Path, Start: start, End: end, Lines: lines[start:end]}, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents CLI-tunable defaults for semtools. It is distinct from
// a workspace's config.json (see internal/workspace): this file carries
// process-wide defaults that apply whether or not a workspace is active.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	LogLevel   string           `yaml:"log_level" json:"log_level"`
}

// PathsConfig holds glob patterns of paths to exclude. They are loaded
// and merged here; no command in this repository applies them.
type PathsConfig struct {
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// SearchConfig holds default ranking parameters loaded from the config
// files and SEMTOOLS_* variables. The search command does not read them;
// its flags carry their own defaults.
type SearchConfig struct {
	// NLines is the number of lines of context before and after each match.
	NLines int `yaml:"n_lines" json:"n_lines"`

	// TopK bounds the number of results when MaxDistance is zero; a
	// non-zero MaxDistance takes precedence and TopK is ignored.
	TopK int `yaml:"top_k" json:"top_k"`

	// MaxDistance keeps only matches with cosine distance strictly below
	// this value. Zero means no threshold.
	MaxDistance float64 `yaml:"max_distance" json:"max_distance"`

	// IgnoreCase is the default case-folding setting for search.
	IgnoreCase bool `yaml:"ignore_case" json:"ignore_case"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "static" (default) or "ollama".
	Provider string `yaml:"provider" json:"provider"`

	// Model overrides the provider's default model name.
	Model string `yaml:"model" json:"model"`

	// OllamaHost is the Ollama API endpoint. It is loaded and merged here;
	// embed.NewEmbedder does not read it (it reads SEMTOOLS_OLLAMA_HOST).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
}

// defaultExcludePatterns are always excluded from stateless directory search.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Exclude: defaultExcludePatterns,
		},
		Search: SearchConfig{
			NLines:      3,
			TopK:        10,
			MaxDistance: 0,
			IgnoreCase:  false,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "",
			Model:      "",
			OllamaHost: "",
		},
		LogLevel: "info",
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/semtools/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/semtools/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "semtools", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "semtools", "config.yaml")
	}
	return filepath.Join(home, ".config", "semtools", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration, applying in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/semtools/config.yaml)
//  3. Project config (.semtools.yaml in dir)
//  4. Environment variables (SEMTOOLS_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .semtools.yaml or .semtools.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".semtools.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".semtools.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.Search.NLines != 0 {
		c.Search.NLines = other.Search.NLines
	}
	if other.Search.TopK != 0 {
		c.Search.TopK = other.Search.TopK
	}
	if other.Search.MaxDistance != 0 {
		c.Search.MaxDistance = other.Search.MaxDistance
	}
	if other.Search.IgnoreCase {
		c.Search.IgnoreCase = other.Search.IgnoreCase
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}

	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// applyEnvOverrides applies SEMTOOLS_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SEMTOOLS_N_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Search.NLines = n
		}
	}
	if v := os.Getenv("SEMTOOLS_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Search.TopK = n
		}
	}
	if v := os.Getenv("SEMTOOLS_MAX_DISTANCE"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 {
			c.Search.MaxDistance = f
		}
	}
	if v := os.Getenv("SEMTOOLS_IGNORE_CASE"); v != "" {
		c.Search.IgnoreCase = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("SEMTOOLS_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("SEMTOOLS_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("SEMTOOLS_OLLAMA_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("SEMTOOLS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// parseFloat64 parses a string to float64.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.NLines < 0 {
		return fmt.Errorf("n_lines must be non-negative, got %d", c.Search.NLines)
	}
	if c.Search.TopK < 0 {
		return fmt.Errorf("top_k must be non-negative, got %d", c.Search.TopK)
	}
	if c.Search.MaxDistance < 0 || math.IsNaN(c.Search.MaxDistance) {
		return fmt.Errorf("max_distance must be non-negative, got %f", c.Search.MaxDistance)
	}

	if c.Embeddings.Provider != "" {
		validProviders := map[string]bool{"static": true, "ollama": true}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'static', 'ollama', or empty (default static), got %s", c.Embeddings.Provider)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.LogLevel != "" && !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// Package config loads and validates Quarry configuration.
//
// Precedence, lowest to highest: built-in defaults, project config file
// (.quarry.yaml), environment variables (QUARRY_*).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SourceID identifies a retrieval backend. The set is closed: adapters are
// constructed once at startup from config, never selected per request.
type SourceID string

const (
	SourceRelational SourceID = "relational"
	SourceSemantic   SourceID = "semantic"
	SourceGraph      SourceID = "graph"
)

// KnownSources lists every adapter variant Quarry can construct.
var KnownSources = []SourceID{SourceRelational, SourceSemantic, SourceGraph}

// Config represents the complete Quarry configuration.
type Config struct {
	Version   int             `yaml:"version"`
	DataDir   string          `yaml:"data_dir"`
	Search    SearchConfig    `yaml:"search"`
	Sources   SourcesConfig   `yaml:"sources"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Sync      SyncConfig      `yaml:"sync"`
}

// SearchConfig holds the retrieval tunables. The RRF constant and the
// per-source weights were chosen empirically; both stay configurable and
// are reloadable at runtime (see Watcher).
type SearchConfig struct {
	// RRFConstant is the RRF damping parameter k (default: 60).
	// Small values sharpen rank influence, large values flatten it.
	RRFConstant int `yaml:"rrf_constant"`

	// SourceWeights scales each backend's RRF contribution.
	SourceWeights map[SourceID]float64 `yaml:"source_weights"`

	// RerankTopN is how many fused candidates go to the reranking service.
	RerankTopN int `yaml:"rerank_top_n"`

	// DefaultLimit is the default result count (default: 10).
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit is the maximum allowed result count (default: 100).
	MaxLimit int `yaml:"max_limit"`

	// AdapterTimeout bounds each individual backend call.
	AdapterTimeout time.Duration `yaml:"adapter_timeout"`

	// FastTimeout, AdaptiveTimeout, DeepTimeout are master request budgets
	// per tier, covering fan-out, follow-ups, fusion and reranking.
	FastTimeout     time.Duration `yaml:"fast_timeout"`
	AdaptiveTimeout time.Duration `yaml:"adaptive_timeout"`
	DeepTimeout     time.Duration `yaml:"deep_timeout"`

	// KeywordBackend selects the keyword index implementation:
	// "sqlite" (FTS5, default) or "bleve".
	KeywordBackend string `yaml:"keyword_backend"`

	// HybridTextWeight and HybridVectorWeight are the server-side hybrid_rank
	// fusion weights inside the relational store.
	HybridTextWeight   float64 `yaml:"hybrid_text_weight"`
	HybridVectorWeight float64 `yaml:"hybrid_vector_weight"`
}

// SourcesConfig enables/disables backends and points at the managed service.
type SourcesConfig struct {
	// Enabled lists the adapters to construct at startup.
	Enabled []SourceID `yaml:"enabled"`

	// SemanticEndpoint is the managed semantic-memory service base URL.
	SemanticEndpoint string `yaml:"semantic_endpoint"`

	// SemanticAPIKey authenticates against the managed service, if required.
	SemanticAPIKey string `yaml:"semantic_api_key"`
}

// EmbeddingConfig configures the external embedding service.
type EmbeddingConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"`
}

// RerankConfig configures the external reranking service.
type RerankConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SyncConfig configures best-effort background sync of reinforced patterns
// to the semantic-memory service.
type SyncConfig struct {
	Enabled   bool `yaml:"enabled"`
	QueueSize int  `yaml:"queue_size"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		Search: SearchConfig{
			RRFConstant: 60,
			SourceWeights: map[SourceID]float64{
				SourceRelational: 1.0,
				SourceSemantic:   1.0,
				SourceGraph:      0.6,
			},
			RerankTopN:         30,
			DefaultLimit:       10,
			MaxLimit:           100,
			AdapterTimeout:     5 * time.Second,
			FastTimeout:        8 * time.Second,
			AdaptiveTimeout:    15 * time.Second,
			DeepTimeout:        25 * time.Second,
			KeywordBackend:     "sqlite",
			HybridTextWeight:   0.35,
			HybridVectorWeight: 0.65,
		},
		Sources: SourcesConfig{
			Enabled:          []SourceID{SourceRelational, SourceSemantic},
			SemanticEndpoint: "http://localhost:8230",
		},
		Embedding: EmbeddingConfig{
			Endpoint:   "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			Timeout:    30 * time.Second,
			CacheSize:  4096,
		},
		Rerank: RerankConfig{
			Enabled:  true,
			Endpoint: "http://localhost:9659",
			Model:    "reranker-small",
			Timeout:  10 * time.Second,
		},
		Sync: SyncConfig{
			Enabled:   true,
			QueueSize: 256,
		},
	}
}

// Load reads configuration for the given directory with env overrides applied.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ConfigPath returns the config file path for a directory, or empty if none
// exists. .yaml takes precedence over .yml.
func ConfigPath(dir string) string {
	for _, name := range []string{".quarry.yaml", ".quarry.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadFromFile merges .quarry.yaml or .quarry.yml if present.
// A missing config file is not an error.
func (c *Config) loadFromFile(dir string) error {
	path := ConfigPath(dir)
	if path == "" {
		return nil
	}
	return c.loadYAML(path)
}

// loadYAML parses the file and merges non-zero values over the defaults.
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

// mergeWith overlays non-zero fields from other.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}

	s := &other.Search
	if s.RRFConstant != 0 {
		c.Search.RRFConstant = s.RRFConstant
	}
	if len(s.SourceWeights) > 0 {
		for id, w := range s.SourceWeights {
			c.Search.SourceWeights[id] = w
		}
	}
	if s.RerankTopN != 0 {
		c.Search.RerankTopN = s.RerankTopN
	}
	if s.DefaultLimit != 0 {
		c.Search.DefaultLimit = s.DefaultLimit
	}
	if s.MaxLimit != 0 {
		c.Search.MaxLimit = s.MaxLimit
	}
	if s.AdapterTimeout != 0 {
		c.Search.AdapterTimeout = s.AdapterTimeout
	}
	if s.FastTimeout != 0 {
		c.Search.FastTimeout = s.FastTimeout
	}
	if s.AdaptiveTimeout != 0 {
		c.Search.AdaptiveTimeout = s.AdaptiveTimeout
	}
	if s.DeepTimeout != 0 {
		c.Search.DeepTimeout = s.DeepTimeout
	}
	if s.KeywordBackend != "" {
		c.Search.KeywordBackend = s.KeywordBackend
	}
	if s.HybridTextWeight != 0 {
		c.Search.HybridTextWeight = s.HybridTextWeight
	}
	if s.HybridVectorWeight != 0 {
		c.Search.HybridVectorWeight = s.HybridVectorWeight
	}

	if len(other.Sources.Enabled) > 0 {
		c.Sources.Enabled = other.Sources.Enabled
	}
	if other.Sources.SemanticEndpoint != "" {
		c.Sources.SemanticEndpoint = other.Sources.SemanticEndpoint
	}
	if other.Sources.SemanticAPIKey != "" {
		c.Sources.SemanticAPIKey = other.Sources.SemanticAPIKey
	}

	if other.Embedding.Endpoint != "" {
		c.Embedding.Endpoint = other.Embedding.Endpoint
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.Timeout != 0 {
		c.Embedding.Timeout = other.Embedding.Timeout
	}
	if other.Embedding.CacheSize != 0 {
		c.Embedding.CacheSize = other.Embedding.CacheSize
	}

	if other.Rerank.Endpoint != "" {
		c.Rerank.Endpoint = other.Rerank.Endpoint
		c.Rerank.Enabled = other.Rerank.Enabled
	}
	if other.Rerank.Model != "" {
		c.Rerank.Model = other.Rerank.Model
	}
	if other.Rerank.Timeout != 0 {
		c.Rerank.Timeout = other.Rerank.Timeout
	}

	if other.Sync.QueueSize != 0 {
		c.Sync = other.Sync
	}
}

// applyEnvOverrides applies QUARRY_* environment variables (highest precedence).
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("QUARRY_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("QUARRY_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("QUARRY_KEYWORD_BACKEND"); v != "" {
		c.Search.KeywordBackend = v
	}
	if v := os.Getenv("QUARRY_SEMANTIC_ENDPOINT"); v != "" {
		c.Sources.SemanticEndpoint = v
	}
	if v := os.Getenv("QUARRY_SEMANTIC_API_KEY"); v != "" {
		c.Sources.SemanticAPIKey = v
	}
	if v := os.Getenv("QUARRY_EMBED_ENDPOINT"); v != "" {
		c.Embedding.Endpoint = v
	}
	if v := os.Getenv("QUARRY_RERANK_ENDPOINT"); v != "" {
		c.Rerank.Endpoint = v
	}
	if v := os.Getenv("QUARRY_RERANK_ENABLED"); v != "" {
		c.Rerank.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	for _, id := range KnownSources {
		key := "QUARRY_WEIGHT_" + strings.ToUpper(string(id))
		if v := os.Getenv(key); v != "" {
			if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 {
				c.Search.SourceWeights[id] = w
			}
		}
	}
}

// Validate checks the final configuration for consistency.
func (c *Config) Validate() error {
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit must be in (0, %d], got %d",
			c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	switch c.Search.KeywordBackend {
	case "sqlite", "bleve":
	default:
		return fmt.Errorf("search.keyword_backend must be \"sqlite\" or \"bleve\", got %q",
			c.Search.KeywordBackend)
	}
	if len(c.Sources.Enabled) == 0 {
		return fmt.Errorf("sources.enabled must name at least one backend")
	}
	for _, id := range c.Sources.Enabled {
		if !isKnownSource(id) {
			return fmt.Errorf("unknown source %q (known: %v)", id, KnownSources)
		}
	}
	for id, w := range c.Search.SourceWeights {
		if !isKnownSource(id) {
			return fmt.Errorf("weight for unknown source %q", id)
		}
		if w < 0 {
			return fmt.Errorf("weight for source %q must be non-negative, got %f", id, w)
		}
	}
	if c.Search.AdapterTimeout <= 0 {
		return fmt.Errorf("search.adapter_timeout must be positive")
	}
	return nil
}

// WriteYAML persists the config to a file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func isKnownSource(id SourceID) bool {
	for _, known := range KnownSources {
		if id == known {
			return true
		}
	}
	return false
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".quarry")
	}
	return filepath.Join(home, ".quarry")
}

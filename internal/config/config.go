// Package config holds all memoryd configuration: token budgets, retrieval
// weights, ingestion caps, privacy policy, capsule and graph limits.
// Config files may be JSON or YAML; a handful of environment variables
// override file values for containerized deployments.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all memoryd configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name" json:"name"`
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Storage
	DatabasePath string `yaml:"database_path" json:"database_path"`

	// Concern sections
	Budget        BudgetConfig        `yaml:"budget" json:"budget"`
	Retrieval     RetrievalConfig     `yaml:"retrieval" json:"retrieval"`
	Ingestion     IngestionConfig     `yaml:"ingestion" json:"ingestion"`
	Privacy       PrivacyConfig       `yaml:"privacy" json:"privacy"`
	Capsules      CapsuleConfig       `yaml:"capsules" json:"capsules"`
	Graph         GraphConfig         `yaml:"graph" json:"graph"`
	Embedding     EmbeddingConfig     `yaml:"embedding" json:"embedding"`
	Consolidation ConsolidationConfig `yaml:"consolidation" json:"consolidation"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
}

// LoggingConfig mirrors internal/logging's expectations.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode"`
	Categories map[string]bool `yaml:"categories" json:"categories"`
	Level      string          `yaml:"level" json:"level"`
	JSONFormat bool            `yaml:"json_format" json:"json_format"`
}

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		Name:          "memoryd",
		DataDir:       ".memoryd",
		DatabasePath:  filepath.Join(".memoryd", "memory.db"),
		Budget:        DefaultBudgetConfig(),
		Retrieval:     DefaultRetrievalConfig(),
		Ingestion:     DefaultIngestionConfig(),
		Privacy:       DefaultPrivacyConfig(),
		Capsules:      DefaultCapsuleConfig(),
		Graph:         DefaultGraphConfig(),
		Embedding:     DefaultEmbeddingConfig(),
		Consolidation: DefaultConsolidationConfig(),
		Logging:       LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from path (JSON or YAML by extension), layered
// over defaults, then applies environment overrides. A missing file is not
// an error: defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else {
			switch strings.ToLower(filepath.Ext(path)) {
			case ".yaml", ".yml":
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return nil, fmt.Errorf("failed to parse YAML config: %w", err)
				}
			default:
				if err := json.Unmarshal(data, cfg); err != nil {
					return nil, fmt.Errorf("failed to parse JSON config: %w", err)
				}
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps MEMORYD_* environment variables onto the config.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEMORYD_DATA_DIR"); v != "" {
		c.DataDir = v
		if os.Getenv("MEMORYD_DB_PATH") == "" {
			c.DatabasePath = filepath.Join(v, "memory.db")
		}
	}
	if v := os.Getenv("MEMORYD_DB_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("MEMORYD_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Budget.MaxTokens = n
		}
	}
	if v := os.Getenv("MEMORYD_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.Embedding.GenAIAPIKey == "" {
		c.Embedding.GenAIAPIKey = v
		if c.Embedding.Provider == "" {
			c.Embedding.Provider = "genai"
		}
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.Embedding.OllamaEndpoint = v
	}
}

// Validate checks cross-field invariants that would otherwise surface as
// confusing runtime behavior.
func (c *Config) Validate() error {
	if c.Budget.MaxTokens <= 0 {
		return fmt.Errorf("budget.max_tokens must be positive, got %d", c.Budget.MaxTokens)
	}
	if c.Retrieval.CandidatePoolMax <= 0 {
		return fmt.Errorf("retrieval.candidate_pool_max must be positive, got %d", c.Retrieval.CandidatePoolMax)
	}
	if c.Retrieval.RetrievedChunksMax > c.Retrieval.CandidatePoolMax {
		return fmt.Errorf("retrieval.retrieved_chunks_max (%d) exceeds candidate_pool_max (%d)",
			c.Retrieval.RetrievedChunksMax, c.Retrieval.CandidatePoolMax)
	}
	if c.Graph.MaxTraversalDepth <= 0 {
		return fmt.Errorf("graph.max_traversal_depth must be positive, got %d", c.Graph.MaxTraversalDepth)
	}
	if c.Capsules.DefaultTTLDays <= 0 {
		return fmt.Errorf("capsules.default_ttl_days must be positive, got %d", c.Capsules.DefaultTTLDays)
	}
	return nil
}

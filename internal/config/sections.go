package config

// BudgetConfig configures ACB token budgets.
type BudgetConfig struct {
	// MaxTokens is the default hard budget for one ACB. Default: 65000.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`

	// StickyReserveFraction of the rules section held for sticky invariants.
	StickyReserveFraction float64 `yaml:"sticky_reserve_fraction" json:"sticky_reserve_fraction"`

	// RecentWindowEvents is how many trailing session events feed the
	// recent_window section before packing.
	RecentWindowEvents int `yaml:"recent_window_events" json:"recent_window_events"`
}

// DefaultBudgetConfig returns the budget defaults.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		MaxTokens:             65000,
		StickyReserveFraction: 0.5,
		RecentWindowEvents:    50,
	}
}

// RetrievalConfig configures candidate generation and score fusion.
type RetrievalConfig struct {
	CandidatePoolMax   int `yaml:"candidate_pool_max" json:"candidate_pool_max"`     // Default: 2000
	RetrievedChunksMax int `yaml:"retrieved_chunks_max" json:"retrieved_chunks_max"` // Default: 200

	// Score fusion weights: score = alpha*similarity + beta*recency + gamma*importance
	Alpha float64 `yaml:"alpha" json:"alpha"` // Default: 0.6
	Beta  float64 `yaml:"beta" json:"beta"`   // Default: 0.3
	Gamma float64 `yaml:"gamma" json:"gamma"` // Default: 0.1

	// Recency half-life hours per mode; recency decays exponentially.
	HalfLifeHours map[string]float64 `yaml:"half_life_hours" json:"half_life_hours"`

	// RRFConstant for reciprocal rank fusion in hybrid retrieval.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"` // Default: 60
}

// DefaultRetrievalConfig returns the retrieval defaults.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		CandidatePoolMax:   2000,
		RetrievedChunksMax: 200,
		Alpha:              0.6,
		Beta:               0.3,
		Gamma:              0.1,
		HalfLifeHours: map[string]float64{
			"TASK":        72,
			"EXPLORATION": 168,
			"DEBUGGING":   12,
			"LEARNING":    336,
			"GENERAL":     96,
		},
		RRFConstant: 60,
	}
}

// IngestionConfig configures the recorder's write path.
type IngestionConfig struct {
	// MaxBytesPerToolResult caps tool_result excerpts; larger payloads move
	// to an artifact row. Default: 64 KiB.
	MaxBytesPerToolResult int `yaml:"max_bytes_per_tool_result" json:"max_bytes_per_tool_result"`

	// DefaultScope when neither explicit fields nor tags supply one.
	DefaultScope string `yaml:"default_scope" json:"default_scope"` // Default: global
}

// DefaultIngestionConfig returns the ingestion defaults.
func DefaultIngestionConfig() IngestionConfig {
	return IngestionConfig{
		MaxBytesPerToolResult: 64 * 1024,
		DefaultScope:          "global",
	}
}

// PrivacyConfig configures redaction and sensitivity policy.
type PrivacyConfig struct {
	// NeverStoreSecrets rejects sensitivity=secret input and redacts
	// detected secret material before persistence. Default: true.
	NeverStoreSecrets bool `yaml:"never_store_secrets" json:"never_store_secrets"`

	// ChannelSensitivities maps channel -> allowed sensitivities for reads.
	ChannelSensitivities map[string][]string `yaml:"channel_sensitivities" json:"channel_sensitivities"`
}

// DefaultPrivacyConfig returns the privacy defaults.
func DefaultPrivacyConfig() PrivacyConfig {
	return PrivacyConfig{
		NeverStoreSecrets: true,
		ChannelSensitivities: map[string][]string{
			"private": {"none", "low", "high"},
			"team":    {"none", "low", "high"},
			"agent":   {"none", "low"},
			"public":  {"none"},
		},
	}
}

// CapsuleConfig configures agent-to-agent capsules.
type CapsuleConfig struct {
	DefaultTTLDays int `yaml:"default_ttl_days" json:"default_ttl_days"` // Default: 7
	MaxItems       int `yaml:"max_items" json:"max_items"`
}

// DefaultCapsuleConfig returns the capsule defaults.
func DefaultCapsuleConfig() CapsuleConfig {
	return CapsuleConfig{
		DefaultTTLDays: 7,
		MaxItems:       200,
	}
}

// GraphConfig configures the typed relationship graph.
type GraphConfig struct {
	MaxTraversalDepth int `yaml:"max_traversal_depth" json:"max_traversal_depth"` // Default: 5
}

// DefaultGraphConfig returns the graph defaults.
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{MaxTraversalDepth: 5}
}

// EmbeddingConfig configures the optional vector embedding engine.
// Supports Ollama (local) and GenAI (cloud) backends.
type EmbeddingConfig struct {
	// Provider: "" (disabled), "ollama" or "genai"
	Provider string `yaml:"provider" json:"provider"`

	// Ollama Configuration (local embedding server)
	OllamaEndpoint string `yaml:"ollama_endpoint" json:"ollama_endpoint"` // Default: "http://localhost:11434"
	OllamaModel    string `yaml:"ollama_model" json:"ollama_model"`       // Default: "embeddinggemma"

	// GenAI Configuration (Google cloud embedding)
	GenAIAPIKey string `yaml:"genai_api_key" json:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model" json:"genai_model"` // Default: "gemini-embedding-001"

	// TaskType for GenAI: SEMANTIC_SIMILARITY, RETRIEVAL_QUERY, RETRIEVAL_DOCUMENT
	TaskType string `yaml:"task_type" json:"task_type"`
}

// DefaultEmbeddingConfig returns the embedding defaults (disabled).
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:       "",
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "embeddinggemma",
		GenAIModel:     "gemini-embedding-001",
		TaskType:       "SEMANTIC_SIMILARITY",
	}
}

// ConsolidationConfig configures the background compaction worker.
type ConsolidationConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// IntervalMinutes between consolidation passes. Default: 60.
	IntervalMinutes int `yaml:"interval_minutes" json:"interval_minutes"`

	// MinChunksPerSummary before a layer summary is worth writing.
	MinChunksPerSummary int `yaml:"min_chunks_per_summary" json:"min_chunks_per_summary"`
}

// DefaultConsolidationConfig returns the consolidation defaults.
func DefaultConsolidationConfig() ConsolidationConfig {
	return ConsolidationConfig{
		Enabled:             false,
		IntervalMinutes:     60,
		MinChunksPerSummary: 20,
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	StoreChromem  = "chromem"
	StorePgvector = "pgvector"

	StrategyWindow    = "window"
	StrategyRecursive = "recursive"
)

const (
	defaultBaseURL        = "http://localhost:11434"
	defaultEmbeddingModel = "all-minilm"
	defaultInferenceModel = "llama3.2"
	defaultDimensions     = 384
	defaultBatchSize      = 100
	defaultTemperature    = 0.1
	defaultChunkSize      = 1000
	defaultChunkOverlap   = 200
	defaultTopK           = 6
	defaultMMRLambda      = 0.5
	defaultStorePath      = "./data/chroma_db"
	defaultCollection     = "sec_filings"
	defaultRawDir         = "./data/raw"
	defaultPrompt         = "analyst"
	defaultLogLevel       = "info"
)

// LLMConfig describes one model endpoint, either for embeddings or generation.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	Dimensions  int     `yaml:"dimensions"`
	BatchSize   int     `yaml:"batch_size"`
}

type RAGConfig struct {
	ChunkSize     int     `yaml:"chunk_size"`
	ChunkOverlap  int     `yaml:"chunk_overlap"`
	ChunkStrategy string  `yaml:"chunk_strategy"`
	TopK          int     `yaml:"top_k"`
	MMR           bool    `yaml:"mmr"`
	FetchK        int     `yaml:"fetch_k"`
	MMRLambda     float64 `yaml:"mmr_lambda"`
	Prompt        string  `yaml:"prompt"`
	EncryptionKey string  `yaml:"encryption_key"`
}

type VectorStoreConfig struct {
	Type       string `yaml:"type"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	InMemory   bool   `yaml:"in_memory"`
	Compress   bool   `yaml:"compress"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type DataConfig struct {
	RawDir string `yaml:"raw_dir"`
	// Items restricts indexing to these 10-K item numbers, e.g. ["1A", "7"].
	Items []string `yaml:"items"`
}

type Config struct {
	LogLevel    string            `yaml:"log_level"`
	EmbedLLM    LLMConfig         `yaml:"embed_llm"`
	GenLLM      LLMConfig         `yaml:"gen_llm"`
	RAG         RAGConfig         `yaml:"rag"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Database    DatabaseConfig    `yaml:"database"`
	Data        DataConfig        `yaml:"data"`
}

// LoadConfig reads .env, the yaml file at path and the environment, in that
// order of increasing precedence. A missing yaml file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := newConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file or environment is present.
func Default() *Config {
	cfg := newConfig()
	applyDefaults(cfg)
	return cfg
}

// newConfig presets the settings for which zero is a valid choice, so the
// yaml decoder only replaces them when the file sets them.
func newConfig() *Config {
	return &Config{
		GenLLM: LLMConfig{Temperature: defaultTemperature},
		RAG: RAGConfig{
			ChunkOverlap: defaultChunkOverlap,
			MMRLambda:    defaultMMRLambda,
		},
	}
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, v, err)
		}
		*dst = n
		return nil
	}

	str("LOG_LEVEL", &cfg.LogLevel)
	str("OLLAMA_MODEL", &cfg.GenLLM.Model)
	str("EMBEDDING_MODEL", &cfg.EmbedLLM.Model)
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		if cfg.GenLLM.Provider == "" || cfg.GenLLM.Provider == ProviderOllama {
			cfg.GenLLM.BaseURL = v
		}
		if cfg.EmbedLLM.Provider == "" || cfg.EmbedLLM.Provider == ProviderOllama {
			cfg.EmbedLLM.BaseURL = v
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.GenLLM.Provider == ProviderOpenAI && cfg.GenLLM.Key == "" {
			cfg.GenLLM.Key = v
		}
		if cfg.EmbedLLM.Provider == ProviderOpenAI && cfg.EmbedLLM.Key == "" {
			cfg.EmbedLLM.Key = v
		}
	}
	str("CHROMA_COLLECTION_NAME", &cfg.VectorStore.Collection)
	str("VECTOR_STORE_TYPE", &cfg.VectorStore.Type)
	str("DATABASE_DSN", &cfg.Database.DSN)
	str("RAG_ENCRYPTION_KEY", &cfg.RAG.EncryptionKey)

	for key, dst := range map[string]*int{
		"CHUNK_SIZE":    &cfg.RAG.ChunkSize,
		"CHUNK_OVERLAP": &cfg.RAG.ChunkOverlap,
		"RETRIEVAL_K":   &cfg.RAG.TopK,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	llmDefaults(&cfg.EmbedLLM, defaultEmbeddingModel)
	llmDefaults(&cfg.GenLLM, defaultInferenceModel)
	if cfg.EmbedLLM.Dimensions == 0 {
		cfg.EmbedLLM.Dimensions = defaultDimensions
	}
	if cfg.EmbedLLM.BatchSize == 0 {
		cfg.EmbedLLM.BatchSize = defaultBatchSize
	}

	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
	}
	if cfg.RAG.ChunkStrategy == "" {
		cfg.RAG.ChunkStrategy = StrategyWindow
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.RAG.FetchK == 0 {
		cfg.RAG.FetchK = cfg.RAG.TopK * 3
	}
	if cfg.RAG.Prompt == "" {
		cfg.RAG.Prompt = defaultPrompt
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = StoreChromem
	}
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = defaultStorePath
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = defaultCollection
	}
	if cfg.Data.RawDir == "" {
		cfg.Data.RawDir = defaultRawDir
	}
}

func llmDefaults(c *LLMConfig, model string) {
	if c.Provider == "" {
		c.Provider = ProviderOllama
	}
	if c.BaseURL == "" && c.Provider == ProviderOllama {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = model
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	for name, l := range map[string]LLMConfig{"embed_llm": c.EmbedLLM, "gen_llm": c.GenLLM} {
		if l.Provider != ProviderOllama && l.Provider != ProviderOpenAI {
			return fmt.Errorf("%s.provider: unknown provider %q", name, l.Provider)
		}
	}
	if c.EmbedLLM.Dimensions <= 0 {
		return fmt.Errorf("embed_llm.dimensions must be positive, got %d", c.EmbedLLM.Dimensions)
	}
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 {
		return fmt.Errorf("rag.chunk_overlap must not be negative, got %d", c.RAG.ChunkOverlap)
	}
	if c.RAG.ChunkStrategy != StrategyWindow && c.RAG.ChunkStrategy != StrategyRecursive {
		return fmt.Errorf("rag.chunk_strategy: unknown strategy %q", c.RAG.ChunkStrategy)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK)
	}
	if c.RAG.FetchK < c.RAG.TopK {
		return fmt.Errorf("rag.fetch_k (%d) must be >= rag.top_k (%d)", c.RAG.FetchK, c.RAG.TopK)
	}
	if c.RAG.MMRLambda < 0 || c.RAG.MMRLambda > 1 {
		return fmt.Errorf("rag.mmr_lambda must be within [0, 1], got %v", c.RAG.MMRLambda)
	}
	if k := len(c.RAG.EncryptionKey); k != 0 && k != 32 {
		return fmt.Errorf("rag.encryption_key must be 32 bytes, got %d", k)
	}
	switch c.VectorStore.Type {
	case StoreChromem:
	case StorePgvector:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the pgvector store")
		}
	default:
		return fmt.Errorf("vector_store.type: unknown store %q", c.VectorStore.Type)
	}
	return nil
}

package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"sec-rag/internal/config"
	"sec-rag/internal/models"
)

// NewEmbedder creates the embedder for the configured provider
func NewEmbedder(cfg *config.LLMConfig) (embeddings.Embedder, error) {
	var (
		embedder *embeddings.EmbedderImpl
		err      error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		embedder, err = NewOpenAIEmbedder(cfg)
	default:
		embedder, err = NewOllamaEmbedder(cfg)
	}
	if err != nil {
		return nil, err
	}
	return embedder, nil
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Str("base_url", cfg.BaseURL).Str("embedding_model", cfg.Model).Msg("Creating ollama embedder")

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(batchSize(cfg)))
}

// NewOpenAIEmbedder talks to any OpenAI compatible embeddings endpoint.
func NewOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Str("base_url", cfg.BaseURL).Str("embedding_model", cfg.Model).Msg("Creating openai embedder")

	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(batchSize(cfg)))
}

func batchSize(cfg *config.LLMConfig) int {
	if cfg.BatchSize > 0 {
		return cfg.BatchSize
	}
	return 100
}

// GenerateEmbeddings embeds chunk contents in batches of batchSize, returning
// one vector per chunk in order. Every vector must have dims entries.
func GenerateEmbeddings(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk, dims, batchSize int) ([][]float32, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = len(chunks)
	}

	vectors := make([][]float32, 0, len(chunks))
	batches := (len(chunks) + batchSize - 1) / batchSize
	for b := 0; b < batches; b++ {
		lo := b * batchSize
		hi := min(lo+batchSize, len(chunks))

		texts := make([]string, 0, hi-lo)
		for _, c := range chunks[lo:hi] {
			texts = append(texts, c.Content)
		}
		vecs, err := embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: embedding batch %d/%d: %v", models.ErrUnavailable, b+1, batches, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embedding batch %d/%d: got %d vectors for %d texts", b+1, batches, len(vecs), len(texts))
		}
		if err := CheckDimensions(vecs, dims); err != nil {
			return nil, err
		}
		vectors = append(vectors, vecs...)

		log.Debug().Int("batch", b+1).Int("batches", batches).Int("documents", len(texts)).Msg("Embedded batch")
	}
	return vectors, nil
}

// EmbedQuery embeds a search query and checks its dimension.
func EmbedQuery(ctx context.Context, embedder embeddings.Embedder, query string, dims int) ([]float32, error) {
	vec, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", models.ErrUnavailable, err)
	}
	if err := CheckDimensions([][]float32{vec}, dims); err != nil {
		return nil, err
	}
	return vec, nil
}

// CheckDimensions rejects vectors whose length differs from dims. dims <= 0 disables the check.
func CheckDimensions(vectors [][]float32, dims int) error {
	if dims <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != dims {
			return fmt.Errorf("%w: vector %d has %d dimensions, expected %d", models.ErrDimensionMismatch, i, len(v), dims)
		}
	}
	return nil
}

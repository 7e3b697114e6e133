package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"sec-rag/internal/config"
	"sec-rag/internal/embedding"
	"sec-rag/internal/models"
)

// VectorDBManager keeps filing chunks in a chromem-go collection, persisted
// under a directory or held in memory and exported to a single file.
type VectorDBManager struct {
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string
	embedder       embeddings.Embedder
	dims           int
	batchSize      int
	dbPath         string
	inMemory       bool
	compress       bool
	encryptionKey  string
	filePath       string
}

type Options struct {
	Store         config.VectorStoreConfig
	Dimensions    int
	BatchSize     int
	EncryptionKey string
}

// NewVectorDBManager opens (or creates) the database and its collection.
// In memory databases are seeded from the export file when one exists.
func NewVectorDBManager(opts Options, embedder embeddings.Embedder) (*VectorDBManager, error) {
	m := &VectorDBManager{
		collectionName: opts.Store.Collection,
		embedder:       embedder,
		dims:           opts.Dimensions,
		batchSize:      opts.BatchSize,
		dbPath:         opts.Store.Path,
		inMemory:       opts.Store.InMemory,
		compress:       opts.Store.Compress,
		encryptionKey:  opts.EncryptionKey,
		filePath:       filepath.Join(opts.Store.Path, opts.Store.Collection+".chromem"),
	}
	// chromem-go picks gzip on import by file suffix
	if m.compress {
		m.filePath += ".gz"
	}

	if m.inMemory {
		m.db = chromem.NewDB()
		if _, err := os.Stat(m.filePath); err == nil {
			if err := m.db.ImportFromFile(m.filePath, m.encryptionKey); err != nil {
				return nil, fmt.Errorf("failed to import %s: %w", m.filePath, err)
			}
			log.Info().Str("file", m.filePath).Msg("Imported vector database")
		}
	} else {
		db, err := chromem.NewPersistentDB(m.dbPath, m.compress)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open database at %s: %v", models.ErrUnavailable, m.dbPath, err)
		}
		m.db = db
	}

	if _, err := m.GetOrCreateCollection(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *VectorDBManager) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return embedding.EmbedQuery(ctx, m.embedder, text, m.dims)
	}
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection() (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(m.collectionName, nil, m.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

// Add embeds the chunks and stores them keyed by chunk id. Re-adding a chunk
// id replaces the previous record.
func (m *VectorDBManager) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	vectors, err := embedding.GenerateEmbeddings(ctx, m.embedder, chunks, m.dims, m.batchSize)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Content,
			Metadata:  c.Map(),
			Embedding: vectors[i],
		}
	}
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Int("documents", len(docs)).Str("collection", m.collectionName).Msg("Added documents")
	return nil
}

// Query returns up to k chunks most similar to text. chromem-go only filters
// on metadata equality, so a filter on several tickers runs one query per
// ticker and merges the results by score.
func (m *VectorDBManager) Query(ctx context.Context, text string, k int, filter models.Filter) ([]models.Result, error) {
	if k <= 0 || m.collection.Count() == 0 {
		return nil, nil
	}
	vec, err := embedding.EmbedQuery(ctx, m.embedder, text, m.dims)
	if err != nil {
		return nil, err
	}

	if filter.IsEmpty() {
		return m.queryEmbedding(ctx, vec, k, nil)
	}

	var merged []models.Result
	for _, ticker := range filter.Tickers {
		res, err := m.queryEmbedding(ctx, vec, k, map[string]string{models.MetaTicker: ticker})
		if err != nil {
			return nil, err
		}
		merged = append(merged, res...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Chunk.ID < merged[j].Chunk.ID
	})
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

func (m *VectorDBManager) queryEmbedding(ctx context.Context, vec []float32, k int, where map[string]string) ([]models.Result, error) {
	n := min(k, m.collection.Count())
	if n == 0 {
		return nil, nil
	}
	res, err := m.collection.QueryEmbedding(ctx, vec, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.Result, 0, len(res))
	for _, r := range res {
		out = append(out, models.Result{
			Chunk:     models.ChunkFromMap(r.ID, r.Content, r.Metadata),
			Score:     r.Similarity,
			Embedding: r.Embedding,
		})
	}
	return out, nil
}

func (m *VectorDBManager) Count(ctx context.Context) (int, error) {
	return m.collection.Count(), nil
}

func (m *VectorDBManager) DeleteFiling(ctx context.Context, ticker, filingDate string) error {
	where := map[string]string{
		models.MetaTicker:     ticker,
		models.MetaFilingDate: filingDate,
	}
	if err := m.collection.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", ticker, filingDate, err)
	}
	return nil
}

// Reset drops the collection and creates an empty one.
func (m *VectorDBManager) Reset(ctx context.Context) error {
	if err := m.db.DeleteCollection(m.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	_, err := m.GetOrCreateCollection()
	return err
}

// Export writes the collection to <path>/<collection>.chromem, encrypted when
// an encryption key is configured.
func (m *VectorDBManager) Export(ctx context.Context) error {
	if m.collection == nil {
		return errors.New("collection is required")
	}
	if m.dbPath == "" {
		return errors.New("db path is required")
	}
	if err := os.MkdirAll(m.dbPath, 0o755); err != nil {
		return err
	}

	log.Debug().
		Str("collection", m.collectionName).
		Str("file", m.filePath).
		Bool("compress", m.compress).
		Bool("encrypted", m.encryptionKey != "").
		Msg("Exporting collection")
	if err := m.db.ExportToFile(m.filePath, m.compress, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import replaces the collection with the one stored in the export file.
func (m *VectorDBManager) Import(ctx context.Context) error {
	if err := m.db.ImportFromFile(m.filePath, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	_, err := m.GetOrCreateCollection()
	return err
}

func (m *VectorDBManager) ExportPath() string { return m.filePath }

// Persistent reports whether writes reach disk without an explicit Export.
func (m *VectorDBManager) Persistent() bool { return !m.inMemory }

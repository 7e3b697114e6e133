package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"sec-rag/internal/config"
	"sec-rag/internal/embedding"
	"sec-rag/internal/models"
)

// Document is one embedded chunk. The embedding column is an unconstrained
// pgvector type; dimensions are checked before insert.
type Document struct {
	bun.BaseModel `bun:"table:filing_chunks,alias:fc"`
	ID            string          `bun:"id,pk"`
	Content       string          `bun:"content,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Ticker        string          `bun:"ticker,notnull"`
	CompanyName   string          `bun:"company_name"`
	FilingDate    string          `bun:"filing_date"`
	ItemNumber    string          `bun:"item_number"`
	ItemTitle     string          `bun:"item_title"`
	Source        string          `bun:"source"`
	ChunkIndex    int             `bun:"chunk_index"`
	TotalChunks   int             `bun:"total_chunks"`
	Score         float64         `bun:"score,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg *config.DatabaseConfig) *sql.DB {
	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...))
}

// Store is the pgvector backed alternative to the chromem collection.
type Store struct {
	db        *bun.DB
	embedder  embeddings.Embedder
	dims      int
	batchSize int
}

func NewStore(db *bun.DB, embedder embeddings.Embedder, dims, batchSize int) *Store {
	return &Store{db: db, embedder: embedder, dims: dims, batchSize: batchSize}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrUnavailable, op, err)
}

// InitDB creates the vector extension, the table and its ticker index.
func (s *Store) InitDB(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return unavailable("create extension", err)
	}
	if _, err := s.db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx); err != nil {
		return unavailable("create table", err)
	}
	_, err := s.db.NewCreateIndex().
		Model((*Document)(nil)).
		Index("filing_chunks_ticker_idx").
		IfNotExists().
		Column("ticker").
		Exec(ctx)
	if err != nil {
		return unavailable("create index", err)
	}
	return nil
}

func (s *Store) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	vectors, err := embedding.GenerateEmbeddings(ctx, s.embedder, chunks, s.dims, s.batchSize)
	if err != nil {
		return err
	}

	docs := make([]Document, len(chunks))
	for i, c := range chunks {
		docs[i] = Document{
			ID:          c.ID,
			Content:     c.Content,
			Embedding:   pgvector.NewVector(vectors[i]),
			Ticker:      c.Metadata.Ticker,
			CompanyName: c.Metadata.CompanyName,
			FilingDate:  c.Metadata.FilingDate,
			ItemNumber:  c.Metadata.ItemNumber,
			ItemTitle:   c.Metadata.ItemTitle,
			Source:      c.Metadata.Source,
			ChunkIndex:  c.Index,
			TotalChunks: c.Total,
		}
	}

	_, err = s.db.NewInsert().
		Model(&docs).
		On("CONFLICT (id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("embedding = EXCLUDED.embedding").
		Set("ticker = EXCLUDED.ticker").
		Set("company_name = EXCLUDED.company_name").
		Set("filing_date = EXCLUDED.filing_date").
		Set("item_number = EXCLUDED.item_number").
		Set("item_title = EXCLUDED.item_title").
		Set("source = EXCLUDED.source").
		Set("chunk_index = EXCLUDED.chunk_index").
		Set("total_chunks = EXCLUDED.total_chunks").
		Exec(ctx)
	if err != nil {
		return unavailable("insert chunks", err)
	}
	log.Debug().Int("documents", len(docs)).Msg("Stored documents")
	return nil
}

// Query orders by cosine distance; the score is 1 - distance.
func (s *Store) Query(ctx context.Context, text string, k int, filter models.Filter) ([]models.Result, error) {
	if k <= 0 {
		return nil, nil
	}
	n, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	vec, err := embedding.EmbedQuery(ctx, s.embedder, text, s.dims)
	if err != nil {
		return nil, err
	}
	qv := pgvector.NewVector(vec)

	var docs []Document
	q := s.db.NewSelect().
		Model(&docs).
		ColumnExpr("fc.*").
		ColumnExpr("1 - (fc.embedding <=> ?) AS score", qv).
		OrderExpr("fc.embedding <=> ?", qv).
		Limit(k)
	if !filter.IsEmpty() {
		q = q.Where("fc.ticker IN (?)", bun.In(filter.Tickers))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, unavailable("similarity search", err)
	}

	results := make([]models.Result, 0, len(docs))
	for _, d := range docs {
		results = append(results, models.Result{
			Chunk: models.Chunk{
				ID:      d.ID,
				Content: d.Content,
				Index:   d.ChunkIndex,
				Total:   d.TotalChunks,
				Metadata: models.ChunkMetadata{
					Ticker:      d.Ticker,
					CompanyName: d.CompanyName,
					FilingDate:  d.FilingDate,
					ItemNumber:  d.ItemNumber,
					ItemTitle:   d.ItemTitle,
					Source:      d.Source,
				},
			},
			Score:     float32(d.Score),
			Embedding: d.Embedding.Slice(),
		})
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*Document)(nil)).Count(ctx)
	if err != nil {
		return 0, unavailable("count chunks", err)
	}
	return n, nil
}

func (s *Store) DeleteFiling(ctx context.Context, ticker, filingDate string) error {
	_, err := s.db.NewDelete().
		Model((*Document)(nil)).
		Where("ticker = ?", ticker).
		Where("filing_date = ?", filingDate).
		Exec(ctx)
	if err != nil {
		return unavailable("delete filing", err)
	}
	return nil
}

// Reset drops the chunk table and recreates it empty.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx); err != nil {
		return unavailable("drop table", err)
	}
	return s.InitDB(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

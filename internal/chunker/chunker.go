// Package chunker splits filing sections into bounded, overlapping passages.
package chunker

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/textsplitter"

	"sec-rag/internal/config"
	"sec-rag/internal/helper"
	"sec-rag/internal/models"
)

type Chunker struct {
	size     int
	overlap  int
	strategy string
	splitter textsplitter.RecursiveCharacter
}

// New builds a chunker from the rag settings. An overlap that is not smaller
// than the chunk size is clamped to half the size.
func New(cfg config.RAGConfig) (*Chunker, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	overlap := max(cfg.ChunkOverlap, 0)
	if overlap >= cfg.ChunkSize {
		log.Warn().Int("chunk_size", cfg.ChunkSize).Int("chunk_overlap", overlap).Msg("Overlap too large, clamping to half the chunk size")
		overlap = cfg.ChunkSize / 2
	}
	strategy := cfg.ChunkStrategy
	if strategy == "" {
		strategy = config.StrategyWindow
	}

	return &Chunker{
		size:     cfg.ChunkSize,
		overlap:  overlap,
		strategy: strategy,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators(append(append([]string{}, models.ChunkSeparators...), "")),
		),
	}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into passages of at most Size runes.
func (c *Chunker) Split(text string) ([]string, error) {
	if c.strategy == config.StrategyRecursive {
		return c.splitter.SplitText(text)
	}
	return splitWindow(text, c.size, c.overlap), nil
}

// ChunkSection splits one section and stamps every passage with meta and the
// section's item number and title.
func (c *Chunker) ChunkSection(section models.Section, meta models.ChunkMetadata) ([]models.Chunk, error) {
	parts, err := c.Split(section.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to split item %s: %w", section.ItemNumber, err)
	}

	meta.ItemNumber = section.ItemNumber
	meta.ItemTitle = section.ItemTitle

	chunks := make([]models.Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, models.Chunk{
			ID:       helper.ChunkID(meta.Ticker, meta.FilingDate, meta.ItemNumber, i),
			Content:  part,
			Index:    i,
			Total:    len(parts),
			Metadata: meta,
		})
	}
	return chunks, nil
}

// ChunkFiling chunks every section of a filing, in section order.
func (c *Chunker) ChunkFiling(filing *models.Filing) ([]models.Chunk, error) {
	base := models.ChunkMetadata{
		Ticker:      filing.Ticker,
		CompanyName: filing.CompanyName,
		FilingDate:  filing.FilingDate,
		Source:      filing.SourceName(),
	}

	var all []models.Chunk
	for _, section := range filing.Sections {
		chunks, err := c.ChunkSection(section, base)
		if err != nil {
			return nil, err
		}
		log.Debug().
			Str("ticker", filing.Ticker).
			Str("item", section.ItemNumber).
			Int("chunks", len(chunks)).
			Msg("Chunked section")
		all = append(all, chunks...)
	}
	return all, nil
}

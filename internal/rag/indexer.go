package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"sec-rag/internal/chunker"
	"sec-rag/internal/helper"
	"sec-rag/internal/models"
	"sec-rag/internal/parser"
)

type IngestOptions struct {
	// Rebuild clears the store and the manifest before indexing.
	Rebuild bool
	// DryRun loads and chunks the filings without touching the store.
	DryRun bool
	// Items limits indexing to these item numbers; empty means every section.
	Items []string
}

// Indexer loads downloaded filings, chunks them and stores the chunks.
type Indexer struct {
	store      Store
	chunker    *chunker.Chunker
	indexDir   string
	collection string
}

func NewIndexer(store Store, c *chunker.Chunker, indexDir, collection string) *Indexer {
	return &Indexer{store: store, chunker: c, indexDir: indexDir, collection: collection}
}

func (ix *Indexer) ManifestPath() string {
	return filepath.Join(ix.indexDir, ManifestFile)
}

// Ingest indexes every filing under rawDir and returns the updated manifest.
// Chunk ids are stable, so ingesting the same filing twice overwrites it.
func (ix *Indexer) Ingest(ctx context.Context, rawDir string, opts IngestOptions) (*Manifest, error) {
	filings, err := parser.LoadFilings(rawDir)
	if err != nil {
		return nil, err
	}
	if len(filings) == 0 {
		return nil, fmt.Errorf("no filings found in %s", rawDir)
	}

	manifest := NewManifest(ix.collection)
	if !opts.Rebuild {
		if manifest, err = LoadManifest(ix.ManifestPath(), ix.collection); err != nil {
			return nil, err
		}
	}
	if opts.Rebuild && !opts.DryRun {
		log.Info().Msg("Clearing existing index")
		if err := ix.store.Reset(ctx); err != nil {
			return nil, fmt.Errorf("failed to reset store: %w", err)
		}
	}

	var all []models.Chunk
	for _, filing := range filings {
		if len(opts.Items) > 0 {
			filing.Sections = parser.SelectSections(filing.Sections, opts.Items...)
		}
		chunks, err := ix.chunker.ChunkFiling(filing)
		if err != nil {
			return nil, fmt.Errorf("failed to chunk %s: %w", filing.SourceName(), err)
		}
		// chunk ids only cover the new chunk count, so older records of this
		// filing would outlive a re-chunking
		if !opts.DryRun {
			if err := ix.store.DeleteFiling(ctx, filing.Ticker, filing.FilingDate); err != nil {
				return nil, fmt.Errorf("failed to clear %s: %w", filing.SourceName(), err)
			}
		}
		if len(chunks) == 0 {
			log.Warn().Str("filing", filing.SourceName()).Msg("No sections found, skipping")
			manifest.Remove(filing.Ticker, filing.FilingDate)
			continue
		}

		log.Info().
			Str("ticker", filing.Ticker).
			Str("filing_date", filing.FilingDate).
			Int("sections", len(filing.Sections)).
			Int("chunks", len(chunks)).
			Msg("Chunked filing")

		if !opts.DryRun {
			if err := ix.store.Add(ctx, chunks); err != nil {
				return nil, fmt.Errorf("failed to index %s: %w", filing.SourceName(), err)
			}
		}
		manifest.Record(filing.Ticker, filing.CompanyName, filing.FilingDate, len(chunks))
		all = append(all, chunks...)
	}

	manifest.LastIngest = chunker.ComputeStats(all)
	manifest.UpdatedAt = time.Now().UTC()
	if opts.DryRun {
		return manifest, nil
	}

	if err := helper.CreateFolder(ix.indexDir); err != nil {
		return nil, err
	}
	if err := manifest.Save(ix.ManifestPath()); err != nil {
		return nil, err
	}
	log.Info().Int("filings", len(filings)).Int("chunks", len(all)).Str("manifest", ix.ManifestPath()).Msg("Indexing complete")
	return manifest, nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sec-rag/internal/chromemdb"
	"sec-rag/internal/chunker"
	"sec-rag/internal/config"
	"sec-rag/internal/db"
	"sec-rag/internal/embedding"
	"sec-rag/internal/helper"
	"sec-rag/internal/llmservice"
	"sec-rag/internal/models"
	"sec-rag/internal/rag"
)

const (
	configFilePath = "./configs/config.yaml"

	formatText = "text"
	formatJSON = "json"
	formatHTML = "html"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	ingestDir := flag.String("ingest", "", "Index the downloaded filings under this directory")
	rebuild := flag.Bool("rebuild", false, "Clear the index before ingesting")
	dryRun := flag.Bool("dry-run", false, "Load and chunk filings without storing them")
	items := flag.String("items", "", "Only index these item numbers, e.g. 1A,7 (default from config)")
	query := flag.String("query", "", "Question to be answered")
	search := flag.String("search", "", "Show the passages retrieved for a query, without an answer")
	ticker := flag.String("ticker", "", "Restrict retrieval to these tickers, e.g. AAPL,TSLA")
	topK := flag.Int("k", 0, "Number of passages to retrieve (default from config)")
	companies := flag.Bool("companies", false, "List the indexed companies")
	stats := flag.Bool("stats", false, "Show index statistics")
	format := flag.String("format", formatText, "Output format: text, json or html")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setLogLevel(cfg.LogLevel)
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	switch *format {
	case formatText, formatJSON, formatHTML:
	default:
		log.Fatal().Str("format", *format).Msg("Unknown output format")
	}
	if *topK > 0 {
		cfg.RAG.TopK = *topK
		cfg.RAG.FetchK = max(cfg.RAG.FetchK, *topK*3)
	}

	ctx := context.Background()
	filter := models.NewFilter(*ticker)

	switch {
	case *ingestDir != "":
		opts := rag.IngestOptions{Rebuild: *rebuild, DryRun: *dryRun, Items: cfg.Data.Items}
		if *items != "" {
			opts.Items = strings.Split(*items, ",")
		}
		ingest(ctx, cfg, *ingestDir, opts, *format)
	case *query != "":
		ask(ctx, cfg, *query, filter, *format)
	case *search != "":
		searchPassages(ctx, cfg, *search, filter, *format)
	case *companies:
		listCompanies(cfg, *format)
	case *stats:
		showStats(ctx, cfg, *format)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		log.Warn().Str("log_level", level).Msg("Unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// backend is the configured embedding store plus what it needs at shutdown.
type backend struct {
	store   rag.Store
	chromem *chromemdb.VectorDBManager
	pg      *db.Store
}

func openBackend(ctx context.Context, cfg *config.Config) *backend {
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}

	if cfg.VectorStore.Type == config.StorePgvector {
		dbInstance := db.NewDB(db.ConnectDB(&cfg.Database), cfg.Database.Debug)
		store := db.NewStore(dbInstance, embedder, cfg.EmbedLLM.Dimensions, cfg.EmbedLLM.BatchSize)
		if err := store.InitDB(ctx); err != nil {
			log.Fatal().Err(err).Msg("Error initializing database")
		}
		return &backend{store: store, pg: store}
	}

	if err := helper.CreateFolder(cfg.VectorStore.Path); err != nil {
		log.Fatal().Err(err).Msg("Error creating folder")
	}
	manager, err := chromemdb.NewVectorDBManager(chromemdb.Options{
		Store:         cfg.VectorStore,
		Dimensions:    cfg.EmbedLLM.Dimensions,
		BatchSize:     cfg.EmbedLLM.BatchSize,
		EncryptionKey: cfg.RAG.EncryptionKey,
	}, embedder)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating vector database manager")
	}
	return &backend{store: manager, chromem: manager}
}

// flush exports an in-memory chromem collection after it was written to.
func (b *backend) flush(ctx context.Context) error {
	if b.chromem == nil || b.chromem.Persistent() {
		return nil
	}
	if err := b.chromem.Export(ctx); err != nil {
		return err
	}
	log.Info().Str("file", b.chromem.ExportPath()).Msg("Exported collection")
	return nil
}

func (b *backend) close() {
	if b.pg != nil {
		if err := b.pg.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing database")
		}
	}
}

func newPipeline(cfg *config.Config, store rag.Store) *rag.Pipeline {
	model, err := llmservice.NewModel(&cfg.GenLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing generation model")
	}
	composer, err := rag.NewComposer(model, cfg.RAG.Prompt, cfg.GenLLM.Temperature)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing answer composer")
	}
	return rag.NewPipeline(rag.NewRetriever(store, cfg.RAG), composer)
}

func ingest(ctx context.Context, cfg *config.Config, rawDir string, opts rag.IngestOptions, format string) {
	c, err := chunker.New(cfg.RAG)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating chunker")
	}

	// a dry run never reaches the store
	var b *backend
	var store rag.Store
	if !opts.DryRun {
		b = openBackend(ctx, cfg)
		defer b.close()
		store = b.store
	}

	indexer := rag.NewIndexer(store, c, cfg.VectorStore.Path, cfg.VectorStore.Collection)
	manifest, err := indexer.Ingest(ctx, rawDir, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Error ingesting filings")
	}
	if b != nil {
		if err := b.flush(ctx); err != nil {
			log.Fatal().Err(err).Msg("Error exporting collection")
		}
	}

	if format == formatJSON {
		helper.PrettyPrint(manifest.LastIngest)
		return
	}
	printStats(manifest.LastIngest)
}

func ask(ctx context.Context, cfg *config.Config, question string, filter models.Filter, format string) {
	b := openBackend(ctx, cfg)
	defer b.close()

	answer := newPipeline(cfg, b.store).Ask(ctx, question, filter)

	switch format {
	case formatJSON:
		helper.PrettyPrint(answer)
	case formatHTML:
		out, err := rag.RenderHTML(answer)
		if err != nil {
			log.Fatal().Err(err).Msg("Error rendering answer")
		}
		fmt.Print(out)
	default:
		log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", question)

		log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", answer.Text)

		if len(answer.Citations) > 0 {
			log.Info().Msg("Sources: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
			for _, c := range answer.Citations {
				fmt.Printf("[%d] %s (%s), filed %s, %s\n    %s\n", c.SourceIndex, c.Company, c.Ticker, c.FilingDate, c.Section, c.Excerpt)
			}
			fmt.Println()
		}
	}

	if answer.Status == models.StatusBackendUnavailable || answer.Status == models.StatusError {
		b.close()
		os.Exit(1)
	}
}

func searchPassages(ctx context.Context, cfg *config.Config, query string, filter models.Filter, format string) {
	b := openBackend(ctx, cfg)
	defer b.close()

	results, err := rag.NewRetriever(b.store, cfg.RAG).Retrieve(ctx, query, filter)
	if err != nil {
		log.Fatal().Err(err).Msg("Error searching")
	}
	if format == formatJSON {
		helper.PrettyPrint(results)
		return
	}

	if len(results) == 0 {
		fmt.Println("No matching passages found.")
		return
	}
	for i, r := range results {
		m := r.Chunk.Metadata
		fmt.Printf("[%d] score %.3f  %s  %s  Item %s %s\n%s\n\n",
			i+1, r.Score, m.Ticker, m.FilingDate, m.ItemNumber, m.ItemTitle,
			helper.Truncate(r.Chunk.Content, 2*models.ExcerptLength))
	}
}

func loadManifest(cfg *config.Config) *rag.Manifest {
	path := filepath.Join(cfg.VectorStore.Path, rag.ManifestFile)
	manifest, err := rag.LoadManifest(path, cfg.VectorStore.Collection)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading manifest")
	}
	return manifest
}

func listCompanies(cfg *config.Config, format string) {
	manifest := loadManifest(cfg)
	if format == formatJSON {
		helper.PrettyPrint(manifest.Companies)
		return
	}
	if len(manifest.Companies) == 0 {
		fmt.Println("No companies indexed. Run with -ingest first.")
		return
	}
	for _, t := range manifest.Tickers() {
		c := manifest.Companies[t]
		fmt.Printf("%-6s %-40s %d filings, %d chunks\n", t, c.CompanyName, len(c.Filings), c.Chunks())
	}
}

func showStats(ctx context.Context, cfg *config.Config, format string) {
	manifest := loadManifest(cfg)

	b := openBackend(ctx, cfg)
	defer b.close()
	count, err := b.store.Count(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error counting chunks")
	}

	if format == formatJSON {
		helper.PrettyPrint(map[string]any{
			"collection":      cfg.VectorStore.Collection,
			"store":           cfg.VectorStore.Type,
			"stored_chunks":   count,
			"manifest_chunks": manifest.TotalChunks(),
			"companies":       manifest.Tickers(),
			"updated_at":      manifest.UpdatedAt,
			"last_ingest":     manifest.LastIngest,
		})
		return
	}

	fmt.Printf("Collection:   %s (%s)\n", cfg.VectorStore.Collection, cfg.VectorStore.Type)
	fmt.Printf("Stored:       %d chunks\n", count)
	fmt.Printf("Companies:    %s\n", strings.Join(manifest.Tickers(), ", "))
	if !manifest.UpdatedAt.IsZero() {
		fmt.Printf("Last ingest:  %s\n", manifest.UpdatedAt.Format(time.RFC3339))
	}
	if count != manifest.TotalChunks() {
		log.Warn().Int("stored", count).Int("manifest", manifest.TotalChunks()).Msg("Manifest is out of date with the store")
	}
	printStats(manifest.LastIngest)
}

func printStats(s chunker.Stats) {
	fmt.Printf("Total chunks: %d\n", s.TotalChunks)
	if s.TotalChunks == 0 {
		return
	}
	fmt.Printf("Chunk size:   avg %.0f, min %d, max %d\n", s.AvgChunkSize, s.MinChunkSize, s.MaxChunkSize)
	fmt.Println("By company:")
	for _, t := range slices.Sorted(maps.Keys(s.ChunksByCompany)) {
		fmt.Printf("  %-6s %d\n", t, s.ChunksByCompany[t])
	}
	fmt.Println("By section:")
	for _, sec := range slices.Sorted(maps.Keys(s.ChunksBySection)) {
		fmt.Printf("  %-50s %d\n", sec, s.ChunksBySection[sec])
	}
}

package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"

	"sec-rag/internal/chromemdb"
	"sec-rag/internal/chunker"
	"sec-rag/internal/config"
	"sec-rag/internal/embedding/embeddingtest"
	"sec-rag/internal/models"
)

const dims = 256

type fakeModel struct {
	reply   string
	err     error
	calls   int
	prompts []string
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	for _, p := range messages[0].Parts {
		if tc, ok := p.(llms.TextContent); ok {
			f.prompts = append(f.prompts, tc.Text)
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func repeat(sentence string, n int) string {
	return strings.TrimSpace(strings.Repeat(sentence+" ", n))
}

func filingText(company, risks, mdna string) string {
	return strings.Join([]string{
		company,
		"Item 1A. Risk Factors",
		repeat(risks, 20),
		"Item 7. Management's Discussion and Analysis",
		repeat(mdna, 20),
	}, "\n")
}

// writeCorpus lays out a raw directory with one TSLA and one AAPL filing.
func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "TSLA", "TSLA_10K_2024-01-29.txt"), filingText("TESLA, INC.",
		"Our key risk factors include battery cell supply constraints and regulatory scrutiny of autopilot.",
		"Automotive revenue grew as vehicle deliveries increased."))
	writeFile(t, filepath.Join(dir, "TSLA", "TSLA_10K_2024-01-29_meta.json"),
		`{"ticker":"TSLA","company_name":"Tesla, Inc.","filing_date":"2024-01-29"}`)
	writeFile(t, filepath.Join(dir, "AAPL", "AAPL_10K_2023-11-03.txt"), filingText("APPLE INC.",
		"Our key risk factors include iPhone demand and supply chain concentration in Asia.",
		"Services revenue grew as the installed base of devices expanded."))
	writeFile(t, filepath.Join(dir, "AAPL", "AAPL_10K_2023-11-03_meta.json"),
		`{"ticker":"AAPL","company_name":"Apple Inc.","filing_date":"2023-11-03"}`)
	return dir
}

type fixture struct {
	store    *chromemdb.VectorDBManager
	embedder *embeddingtest.HashEmbedder
	indexer  *Indexer
	indexDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	indexDir := t.TempDir()
	emb := embeddingtest.New(dims)
	store, err := chromemdb.NewVectorDBManager(chromemdb.Options{
		Store:      config.VectorStoreConfig{Path: indexDir, Collection: "sec_filings", InMemory: true},
		Dimensions: dims,
		BatchSize:  8,
	}, emb)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	c, err := chunker.New(config.RAGConfig{ChunkSize: 400, ChunkOverlap: 50})
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}
	return &fixture{
		store:    store,
		embedder: emb,
		indexer:  NewIndexer(store, c, indexDir, "sec_filings"),
		indexDir: indexDir,
	}
}

// reindexer returns an indexer over the fixture's store with other chunk settings.
func (f *fixture) reindexer(t *testing.T, size, overlap int) *Indexer {
	t.Helper()
	c, err := chunker.New(config.RAGConfig{ChunkSize: size, ChunkOverlap: overlap})
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}
	return NewIndexer(f.store, c, f.indexDir, "sec_filings")
}

func newPipeline(t *testing.T, store Store, model llms.Model) *Pipeline {
	t.Helper()
	composer, err := NewComposer(model, models.PromptAnalyst, 0.1)
	if err != nil {
		t.Fatalf("new composer: %v", err)
	}
	return NewPipeline(NewRetriever(store, config.RAGConfig{TopK: 6}), composer)
}

func result(ticker, date, item, content string) models.Result {
	return models.Result{
		Chunk: models.Chunk{
			ID:      ticker + date + item + content[:3],
			Content: content,
			Metadata: models.ChunkMetadata{
				Ticker: ticker, CompanyName: ticker + " Corp", FilingDate: date,
				ItemNumber: item, ItemTitle: "Section " + item,
			},
		},
	}
}

func TestIngestAndAsk_CompanyFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	manifest, err := f.indexer.Ingest(ctx, writeCorpus(t), IngestOptions{})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if got := strings.Join(manifest.Tickers(), ","); got != "AAPL,TSLA" {
		t.Errorf("manifest tickers = %s", got)
	}
	count, _ := f.store.Count(ctx)
	if count == 0 || count != manifest.TotalChunks() {
		t.Errorf("store has %d chunks, manifest %d", count, manifest.TotalChunks())
	}
	if _, err := os.Stat(f.indexer.ManifestPath()); err != nil {
		t.Errorf("manifest not written: %v", err)
	}

	model := &fakeModel{reply: "Tesla's key risks are battery supply and autopilot regulation."}
	p := newPipeline(t, f.store, model)

	answer := p.Ask(ctx, "What are Tesla's key risk factors?", models.NewFilter("tsla"))
	if answer.Status != models.StatusOK {
		t.Fatalf("status = %s (%s)", answer.Status, answer.Text)
	}
	if len(answer.Citations) == 0 {
		t.Fatal("expected citations")
	}
	for _, c := range answer.Citations {
		if c.Ticker != "TSLA" {
			t.Errorf("citation from %s in a TSLA-only answer", c.Ticker)
		}
	}
	if model.calls != 1 {
		t.Errorf("model called %d times", model.calls)
	}
	prompt := model.prompts[0]
	if !strings.Contains(prompt, "[Source 1: Tesla, Inc. (TSLA), Filed: 2024-01-29, Section: ") {
		t.Errorf("prompt lacks a TSLA source header:\n%s", prompt)
	}
	if strings.Contains(prompt, "(AAPL)") {
		t.Error("prompt contains AAPL context")
	}
	if !strings.Contains(prompt, "Question: What are Tesla's key risk factors?") {
		t.Error("prompt lacks the question")
	}
}

func TestIngest_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	raw := writeCorpus(t)

	if _, err := f.indexer.Ingest(ctx, raw, IngestOptions{}); err != nil {
		t.Fatal(err)
	}
	first, _ := f.store.Count(ctx)
	m, err := f.indexer.Ingest(ctx, raw, IngestOptions{})
	if err != nil {
		t.Fatal(err)
	}
	second, _ := f.store.Count(ctx)
	if first != second {
		t.Errorf("re-ingest changed count from %d to %d", first, second)
	}
	if m.TotalChunks() != second {
		t.Errorf("manifest counts %d chunks, store %d", m.TotalChunks(), second)
	}

	loaded, err := LoadManifest(f.indexer.ManifestPath(), "sec_filings")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Companies["TSLA"].CompanyName != "Tesla, Inc." {
		t.Errorf("unexpected manifest entry %+v", loaded.Companies["TSLA"])
	}
	if _, ok := loaded.Companies["AAPL"].Filings["2023-11-03"]; !ok {
		t.Error("AAPL filing missing from manifest")
	}
}

func TestIngest_Rebuild(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	raw := writeCorpus(t)

	stale := models.Chunk{ID: "stale", Content: "old content", Metadata: models.ChunkMetadata{Ticker: "OLD"}}
	if err := f.store.Add(ctx, []models.Chunk{stale}); err != nil {
		t.Fatal(err)
	}
	m, err := f.indexer.Ingest(ctx, raw, IngestOptions{Rebuild: true})
	if err != nil {
		t.Fatal(err)
	}
	count, _ := f.store.Count(ctx)
	if count != m.TotalChunks() {
		t.Errorf("rebuild left %d chunks, expected %d", count, m.TotalChunks())
	}
}

func TestIngest_DryRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m, err := f.indexer.Ingest(ctx, writeCorpus(t), IngestOptions{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if m.LastIngest.TotalChunks == 0 {
		t.Error("dry run reported no chunks")
	}
	if count, _ := f.store.Count(ctx); count != 0 {
		t.Errorf("dry run stored %d chunks", count)
	}
	if _, err := os.Stat(f.indexer.ManifestPath()); !os.IsNotExist(err) {
		t.Error("dry run wrote a manifest")
	}
}

func TestIngest_EmptyRawDir(t *testing.T) {
	f := newFixture(t)
	if _, err := f.indexer.Ingest(context.Background(), t.TempDir(), IngestOptions{}); err == nil {
		t.Fatal("expected error for a directory without filings")
	}
}

func TestAsk_EmptyStore(t *testing.T) {
	f := newFixture(t)
	model := &fakeModel{reply: "unused"}
	answer := newPipeline(t, f.store, model).Ask(context.Background(), "What are Tesla's risks?", models.Filter{})

	if answer.Status != models.StatusNoData {
		t.Errorf("status = %s", answer.Status)
	}
	if answer.Text != models.InsufficientInfoAnswer {
		t.Errorf("text = %q", answer.Text)
	}
	if model.calls != 0 {
		t.Error("model must not be called without context")
	}
}

func TestAsk_UnknownCompany(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.indexer.Ingest(ctx, writeCorpus(t), IngestOptions{}); err != nil {
		t.Fatal(err)
	}
	answer := newPipeline(t, f.store, &fakeModel{}).Ask(ctx, "What are the risks?", models.NewFilter("ZZZZ"))
	if answer.Status != models.StatusNoData {
		t.Errorf("status = %s", answer.Status)
	}
}

func TestAsk_EmbedderUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.indexer.Ingest(ctx, writeCorpus(t), IngestOptions{}); err != nil {
		t.Fatal(err)
	}
	f.embedder.Fail = true

	model := &fakeModel{reply: "unused"}
	answer := newPipeline(t, f.store, model).Ask(ctx, "What are Tesla's risks?", models.Filter{})
	if answer.Status != models.StatusBackendUnavailable {
		t.Errorf("status = %s", answer.Status)
	}
	if answer.Text != models.BackendUnavailableText {
		t.Errorf("text = %q", answer.Text)
	}
	if model.calls != 0 {
		t.Error("model called after retrieval failed")
	}
}

func TestCompose_ModelUnavailable(t *testing.T) {
	composer, err := NewComposer(&fakeModel{err: errors.New("connection refused")}, "", 0.1)
	if err != nil {
		t.Fatal(err)
	}
	results := []models.Result{result("TSLA", "2024-01-29", "1A", "Battery supply risk.")}

	answer := composer.Compose(context.Background(), "q", results)
	if answer.Status != models.StatusBackendUnavailable {
		t.Errorf("status = %s", answer.Status)
	}
	if len(answer.Citations) != 0 {
		t.Error("failed answer should carry no citations")
	}
}

func TestCompose_StripsThinking(t *testing.T) {
	model := &fakeModel{reply: "<think>scratch</think>\nSupply is the main risk (Source 1)."}
	composer, err := NewComposer(model, models.PromptBasic, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	answer := composer.Compose(context.Background(), "q", []models.Result{result("TSLA", "2024-01-29", "1A", "Battery supply risk.")})
	if answer.Text != "Supply is the main risk (Source 1)." {
		t.Errorf("text = %q", answer.Text)
	}
	if answer.NumSources != 1 {
		t.Errorf("num sources = %d", answer.NumSources)
	}
}

func TestNewComposer_Templates(t *testing.T) {
	results := []models.Result{result("AAPL", "2023-11-03", "7", "Services revenue grew.")}
	for _, name := range []string{models.PromptAnalyst, models.PromptBasic, models.PromptComparison, models.PromptSummary} {
		c, err := NewComposer(&fakeModel{}, name, 0.1)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		prompt, err := c.Prompt("How did services do?", results)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !strings.Contains(prompt, "Services revenue grew.") || !strings.Contains(prompt, "How did services do?") {
			t.Errorf("%s: prompt missing context or question", name)
		}
	}
	if _, err := NewComposer(&fakeModel{}, "poetry", 0.1); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestFormatContext(t *testing.T) {
	results := []models.Result{
		result("TSLA", "2024-01-29", "1A", "Battery supply risk."),
		result("AAPL", "2023-11-03", "7", "Services revenue grew."),
	}
	want := "[Source 1: TSLA Corp (TSLA), Filed: 2024-01-29, Section: Section 1A]\nBattery supply risk." +
		"\n\n---\n\n" +
		"[Source 2: AAPL Corp (AAPL), Filed: 2023-11-03, Section: Section 7]\nServices revenue grew."
	if got := FormatContext(results); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestCitations_Referenced(t *testing.T) {
	results := []models.Result{
		result("TSLA", "2024-01-29", "1A", "Battery supply risk."),
		result("TSLA", "2024-01-29", "1A", "Autopilot regulation risk."),
		result("TSLA", "2024-01-29", "7", "Revenue grew."),
	}
	got := Citations("Risks include autopilot (Source 2) and batteries (source #1). See also Source 9.", results)
	if len(got) != 1 {
		t.Fatalf("expected 1 citation, got %+v", got)
	}
	if got[0].SourceIndex != 2 || got[0].ItemNumber != "1A" || got[0].Excerpt != "Autopilot regulation risk." {
		t.Errorf("unexpected citation %+v", got[0])
	}
}

func TestCitations_FallbackToAllSources(t *testing.T) {
	results := []models.Result{
		result("TSLA", "2024-01-29", "1A", "Battery supply risk."),
		result("TSLA", "2024-01-29", "1A", "Autopilot regulation risk."),
		result("AAPL", "2023-11-03", "1A", "iPhone demand risk."),
	}
	got := Citations("No explicit references here.", results)
	if len(got) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(got))
	}
	if got[0].Ticker != "TSLA" || got[1].Ticker != "AAPL" || got[1].SourceIndex != 3 {
		t.Errorf("unexpected citations %+v", got)
	}
}

func TestCitations_Excerpt(t *testing.T) {
	long := strings.Repeat("a", 300)
	got := Citations("", []models.Result{result("TSLA", "2024-01-29", "1A", long)})
	if want := strings.Repeat("a", 200) + "..."; got[0].Excerpt != want {
		t.Errorf("excerpt has %d chars", len(got[0].Excerpt))
	}
}

func TestRenderHTML(t *testing.T) {
	answer := &models.Answer{
		Question: "Risks <TSLA>?",
		Text:     "**Supply** is the main risk.\n\n- batteries\n- chips",
		Status:   models.StatusOK,
		Citations: []models.Citation{{
			SourceIndex: 1, Ticker: "TSLA", Company: "Tesla, Inc.", FilingDate: "2024-01-29",
			Section: "Risk Factors", Excerpt: "Battery & cell supply",
		}},
	}
	out, err := RenderHTML(answer)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"<h2>Risks &lt;TSLA&gt;?</h2>",
		"<strong>Supply</strong>",
		"<li>batteries</li>",
		`<li value="1"><strong>Tesla, Inc. (TSLA)</strong>`,
		"Battery &amp; cell supply",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestIngest_SelectedItems(t *testing.T) {
	f := newFixture(t)
	m, err := f.indexer.Ingest(context.Background(), writeCorpus(t), IngestOptions{DryRun: true, Items: []string{"1a"}})
	if err != nil {
		t.Fatal(err)
	}
	sections := m.LastIngest.ChunksBySection
	if len(sections) != 1 || sections["Risk Factors"] == 0 {
		t.Errorf("expected only Risk Factors chunks, got %v", sections)
	}
}

func TestIngest_RechunkingReplacesOldRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	raw := writeCorpus(t)

	small, err := f.reindexer(t, 150, 30).Ingest(ctx, raw, IngestOptions{})
	if err != nil {
		t.Fatal(err)
	}
	m, err := f.reindexer(t, 400, 50).Ingest(ctx, raw, IngestOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if m.TotalChunks() >= small.TotalChunks() {
		t.Fatalf("larger chunks should give fewer records: %d vs %d", m.TotalChunks(), small.TotalChunks())
	}
	count, _ := f.store.Count(ctx)
	if count != m.TotalChunks() {
		t.Errorf("store holds %d chunks, manifest %d", count, m.TotalChunks())
	}

	m, err = f.reindexer(t, 400, 50).Ingest(ctx, raw, IngestOptions{Items: []string{"1A"}})
	if err != nil {
		t.Fatal(err)
	}
	count, _ = f.store.Count(ctx)
	if count != m.TotalChunks() {
		t.Errorf("store holds %d chunks after item selection, manifest %d", count, m.TotalChunks())
	}
	results, err := newPipeline(t, f.store, &fakeModel{}).Search(ctx, "Automotive revenue grew as vehicle deliveries increased.", models.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Chunk.Metadata.ItemNumber != "1A" {
			t.Errorf("item %s chunk survived an ingest limited to 1A", r.Chunk.Metadata.ItemNumber)
		}
	}
}

func TestManifest_Remove(t *testing.T) {
	m := NewManifest("sec_filings")
	m.Record("TSLA", "Tesla, Inc.", "2024-01-29", 4)
	m.Record("TSLA", "Tesla, Inc.", "2023-01-31", 3)

	m.Remove("TSLA", "2024-01-29")
	if m.TotalChunks() != 3 {
		t.Errorf("total = %d, want 3", m.TotalChunks())
	}
	m.Remove("TSLA", "2023-01-31")
	if len(m.Tickers()) != 0 {
		t.Errorf("company kept without filings: %v", m.Tickers())
	}
	m.Remove("AAPL", "2023-11-03")
}

func TestCitations_PluralAndLists(t *testing.T) {
	results := []models.Result{
		result("TSLA", "2024-01-29", "1A", "Battery supply risk."),
		result("TSLA", "2024-01-29", "7", "Revenue grew."),
		result("AAPL", "2023-11-03", "1A", "iPhone demand risk."),
		result("MSFT", "2023-07-27", "1A", "Azure competition."),
	}
	cases := []struct {
		answer string
		want   []int
	}{
		{"Both companies face supply risk (Sources 1 and 3).", []int{1, 3}},
		{"See Sources 1, 3.", []int{1, 3}},
		{"As Sources #4, 2, and 1 show, margins vary.", []int{4, 2, 1}},
		{"Their resources 2 through 4 are unrelated (Source 3).", []int{3}},
	}
	for _, tc := range cases {
		got := Citations(tc.answer, results)
		if len(got) != len(tc.want) {
			t.Errorf("%q: got %d citations, want %v", tc.answer, len(got), tc.want)
			continue
		}
		for i, c := range got {
			if c.SourceIndex != tc.want[i] {
				t.Errorf("%q: citation %d is source %d, want %d", tc.answer, i, c.SourceIndex, tc.want[i])
			}
		}
	}
}

func TestCompose_PromptFailureIsNotAnOutage(t *testing.T) {
	model := &fakeModel{reply: "unused"}
	composer := &Composer{
		model:       model,
		template:    prompts.NewPromptTemplate("{{.context}} {{.missing}}", []string{"context", "question"}),
		temperature: 0.1,
	}
	answer := composer.Compose(context.Background(), "q", []models.Result{result("TSLA", "2024-01-29", "1A", "Battery supply risk.")})
	if answer.Status != models.StatusError {
		t.Errorf("status = %s, want %s", answer.Status, models.StatusError)
	}
	if answer.Text == models.BackendUnavailableText {
		t.Error("a template failure must not be reported as an unavailable backend")
	}
	if model.calls != 0 {
		t.Error("model called with an unrendered prompt")
	}
}

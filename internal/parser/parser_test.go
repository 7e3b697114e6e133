package parser

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFilings(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "TSLA", "TSLA_10K_2024-01-29.txt"), sampleFiling())
	writeFile(t, filepath.Join(dir, "TSLA", "TSLA_10K_2024-01-29_meta.json"),
		`{"ticker":"tsla","company_name":"Tesla, Inc.","filing_date":"2024-01-29","form_type":"10-K","cik":"1318605"}`)

	// sidecar without a body
	writeFile(t, filepath.Join(dir, "AAPL", "AAPL_10K_2023-11-03_meta.json"),
		`{"ticker":"AAPL","company_name":"Apple Inc.","filing_date":"2023-11-03"}`)

	// body with an invalid sidecar
	writeFile(t, filepath.Join(dir, "MSFT", "MSFT_10K_2023-07-27.txt"), sampleFiling())
	writeFile(t, filepath.Join(dir, "MSFT", "MSFT_10K_2023-07-27_meta.json"),
		`{"ticker":"MSFT","company_name":"Microsoft","filing_date":"July 2023"}`)

	filings, err := LoadFilings(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(filings) != 1 {
		t.Fatalf("expected 1 filing, got %d", len(filings))
	}
	f := filings[0]
	if f.Ticker != "TSLA" || f.CompanyName != "Tesla, Inc." || f.FilingDate != "2024-01-29" {
		t.Errorf("unexpected metadata: %+v", f.FilingMeta)
	}
	if f.SourceName() != "TSLA_10K_2024-01-29" {
		t.Errorf("unexpected source name %q", f.SourceName())
	}
	if len(f.Sections) != 3 {
		t.Errorf("expected 3 sections, got %d", len(f.Sections))
	}
}

func TestLoadFiling_InvalidMetadata(t *testing.T) {
	dir := t.TempDir()
	meta := filepath.Join(dir, "X", "X_10K_2024-01-01_meta.json")
	writeFile(t, meta, `{"ticker":"X","filing_date":"2024-01-01"}`)
	writeFile(t, filepath.Join(dir, "X", "X_10K_2024-01-01.txt"), "body")

	_, err := LoadFiling(meta)
	if !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("expected ErrInvalidMetadata, got %v", err)
	}
}

func TestLoadFilings_MissingDir(t *testing.T) {
	if _, err := LoadFilings(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing raw dir")
	}
}

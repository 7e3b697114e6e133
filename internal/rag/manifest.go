package rag

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"sec-rag/internal/chunker"
)

const ManifestFile = "manifest.yaml"

// CompanyEntry records what was indexed for one ticker.
type CompanyEntry struct {
	CompanyName string `yaml:"company_name"`
	// Filings maps filing date to the number of chunks stored for it.
	Filings map[string]int `yaml:"filings"`
}

func (c *CompanyEntry) Chunks() int {
	n := 0
	for _, v := range c.Filings {
		n += v
	}
	return n
}

// Manifest lists the contents of an index. The vector stores cannot enumerate
// their metadata, so the indexer keeps this file next to the index.
type Manifest struct {
	Collection string                   `yaml:"collection"`
	UpdatedAt  time.Time                `yaml:"updated_at"`
	Companies  map[string]*CompanyEntry `yaml:"companies"`
	LastIngest chunker.Stats            `yaml:"last_ingest"`
}

func NewManifest(collection string) *Manifest {
	return &Manifest{
		Collection: collection,
		Companies:  make(map[string]*CompanyEntry),
	}
}

// LoadManifest reads a manifest. A missing file yields an empty manifest.
func LoadManifest(path, collection string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewManifest(collection), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m := NewManifest(collection)
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if m.Companies == nil {
		m.Companies = make(map[string]*CompanyEntry)
	}
	return m, nil
}

func (m *Manifest) Save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// Record sets the chunk count of one filing, replacing any earlier count.
func (m *Manifest) Record(ticker, company, filingDate string, chunks int) {
	entry, ok := m.Companies[ticker]
	if !ok {
		entry = &CompanyEntry{Filings: make(map[string]int)}
		m.Companies[ticker] = entry
	}
	if company != "" {
		entry.CompanyName = company
	}
	entry.Filings[filingDate] = chunks
}

// Remove drops one filing, and its company once no filing is left.
func (m *Manifest) Remove(ticker, filingDate string) {
	entry, ok := m.Companies[ticker]
	if !ok {
		return
	}
	delete(entry.Filings, filingDate)
	if len(entry.Filings) == 0 {
		delete(m.Companies, ticker)
	}
}

// Tickers returns the indexed tickers in sorted order.
func (m *Manifest) Tickers() []string {
	out := make([]string, 0, len(m.Companies))
	for t := range m.Companies {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (m *Manifest) TotalChunks() int {
	n := 0
	for _, c := range m.Companies {
		n += c.Chunks()
	}
	return n
}

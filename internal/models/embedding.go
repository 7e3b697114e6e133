package models

import (
	"sort"
	"strconv"
	"strings"
)

// metadata keys stored alongside every embedding record
const (
	MetaTicker      = "ticker"
	MetaCompanyName = "company_name"
	MetaFilingDate  = "filing_date"
	MetaItemNumber  = "item_number"
	MetaItemTitle   = "item_title"
	MetaSource      = "source"
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
)

// ChunkMetadata is copied unchanged from the filing onto each chunk and from
// each chunk onto its embedding record.
type ChunkMetadata struct {
	Ticker      string `json:"ticker" yaml:"ticker"`
	CompanyName string `json:"company_name" yaml:"company_name"`
	FilingDate  string `json:"filing_date" yaml:"filing_date"`
	ItemNumber  string `json:"item_number" yaml:"item_number"`
	ItemTitle   string `json:"item_title" yaml:"item_title"`
	Source      string `json:"source" yaml:"source"`
}

// Chunk represents a bounded passage of a filing section
type Chunk struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Index    int           `json:"chunk_index"`
	Total    int           `json:"total_chunks"`
	Metadata ChunkMetadata `json:"metadata"`
}

// Result is a chunk returned by a similarity query.
type Result struct {
	Chunk     Chunk     `json:"chunk"`
	Score     float32   `json:"score"`
	Embedding []float32 `json:"-"`
}

// Filter restricts a query to a set of tickers. The zero value matches everything.
type Filter struct {
	Tickers []string
}

// NewFilter builds a filter from raw ticker strings, e.g. the comma separated
// -ticker flag.
func NewFilter(tickers ...string) Filter {
	seen := make(map[string]bool)
	var out []string
	for _, raw := range tickers {
		for _, t := range strings.Split(raw, ",") {
			t = strings.ToUpper(strings.TrimSpace(t))
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return Filter{Tickers: out}
}

func (f Filter) IsEmpty() bool {
	return len(f.Tickers) == 0
}

// Matches reports whether a ticker passes the filter
func (f Filter) Matches(ticker string) bool {
	if f.IsEmpty() {
		return true
	}
	for _, t := range f.Tickers {
		if strings.EqualFold(t, ticker) {
			return true
		}
	}
	return false
}

// Map flattens chunk metadata for vector stores that only keep string maps.
func (c Chunk) Map() map[string]string {
	return map[string]string{
		MetaTicker:      c.Metadata.Ticker,
		MetaCompanyName: c.Metadata.CompanyName,
		MetaFilingDate:  c.Metadata.FilingDate,
		MetaItemNumber:  c.Metadata.ItemNumber,
		MetaItemTitle:   c.Metadata.ItemTitle,
		MetaSource:      c.Metadata.Source,
		MetaChunkIndex:  strconv.Itoa(c.Index),
		MetaTotalChunks: strconv.Itoa(c.Total),
	}
}

// ChunkFromMap is the inverse of Chunk.Map.
func ChunkFromMap(id, content string, m map[string]string) Chunk {
	index, _ := strconv.Atoi(m[MetaChunkIndex])
	total, _ := strconv.Atoi(m[MetaTotalChunks])
	return Chunk{
		ID:      id,
		Content: content,
		Index:   index,
		Total:   total,
		Metadata: ChunkMetadata{
			Ticker:      m[MetaTicker],
			CompanyName: m[MetaCompanyName],
			FilingDate:  m[MetaFilingDate],
			ItemNumber:  m[MetaItemNumber],
			ItemTitle:   m[MetaItemTitle],
			Source:      m[MetaSource],
		},
	}
}

// answer statuses
const (
	StatusOK                 = "ok"
	StatusNoData             = "no_data"
	StatusBackendUnavailable = "backend_unavailable"
	// StatusError is a local failure, e.g. a prompt that cannot be rendered.
	StatusError              = "error"
)

// Citation points an answer back at the filing section it drew from
type Citation struct {
	SourceIndex int    `json:"source_index"`
	Ticker      string `json:"ticker"`
	Company     string `json:"company"`
	FilingDate  string `json:"filing_date"`
	ItemNumber  string `json:"item_number"`
	Section     string `json:"section"`
	Excerpt     string `json:"excerpt"`
}

type Answer struct {
	Question   string     `json:"question"`
	Text       string     `json:"answer"`
	Status     string     `json:"status"`
	Citations  []Citation `json:"citations"`
	NumSources int        `json:"num_sources"`
}

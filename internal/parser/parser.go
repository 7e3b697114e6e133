package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"sec-rag/internal/models"
)

// ErrInvalidMetadata is returned when a filing sidecar fails schema validation.
var ErrInvalidMetadata = errors.New("invalid filing metadata")

const (
	metaSuffix   = "_meta.json"
	metaSchemaID = "filing_meta.schema.json"
)

const metaSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["ticker", "company_name", "filing_date"],
  "properties": {
    "ticker": {"type": "string", "pattern": "^[A-Za-z][A-Za-z0-9.\\-]{0,9}$"},
    "company_name": {"type": "string", "minLength": 1},
    "filing_date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "accession_number": {"type": "string"},
    "form_type": {"type": "string", "enum": ["10-K", "10-K/A", "10-K405"]},
    "cik": {"type": "string"},
    "file_path": {"type": "string"}
  }
}`

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(metaSchema))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(metaSchemaID, doc); err != nil {
		return nil, err
	}
	return c.Compile(metaSchemaID)
})

// LoadFilings reads every filing under rawDir laid out as
// <rawDir>/<TICKER>/<TICKER>_10K_<date>{.txt,.pdf,_meta.json}.
// Filings with a missing body or invalid sidecar are logged and skipped.
func LoadFilings(rawDir string) ([]*models.Filing, error) {
	if _, err := os.Stat(rawDir); err != nil {
		return nil, fmt.Errorf("failed to read raw filings dir: %w", err)
	}
	metas, err := filepath.Glob(filepath.Join(rawDir, "*", "*_10K_*"+metaSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(metas)

	var filings []*models.Filing
	for _, metaPath := range metas {
		filing, err := LoadFiling(metaPath)
		if err != nil {
			log.Warn().Err(err).Str("meta", metaPath).Msg("Skipping filing")
			continue
		}
		filings = append(filings, filing)
	}
	return filings, nil
}

// LoadFiling reads one sidecar and its filing body, and parses the sections.
func LoadFiling(metaPath string) (*models.Filing, error) {
	meta, err := readMeta(metaPath)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(metaPath, metaSuffix)
	text, err := readBody(base)
	if err != nil {
		return nil, err
	}

	cleaned := CleanText(text)
	filing := &models.Filing{
		FilingMeta: *meta,
		Text:       cleaned,
		Sections:   ParseSections(cleaned),
	}
	log.Debug().
		Str("ticker", filing.Ticker).
		Str("filing_date", filing.FilingDate).
		Int("chars", len(cleaned)).
		Interface("sections", SectionSummary(filing.Sections)).
		Msg("Loaded filing")
	return filing, nil
}

func readMeta(path string) (*models.FilingMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	schema, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile metadata schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMetadata, path, err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMetadata, path, err)
	}

	var meta models.FilingMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMetadata, path, err)
	}
	meta.Ticker = strings.ToUpper(meta.Ticker)
	if meta.FormType == "" {
		meta.FormType = "10-K"
	}
	return &meta, nil
}

// readBody prefers the plain text export and falls back to a PDF copy.
func readBody(base string) (string, error) {
	if data, err := os.ReadFile(base + ".txt"); err == nil {
		return string(data), nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	if _, err := os.Stat(base + ".pdf"); err == nil {
		return parsePDF(base + ".pdf")
	}
	return "", fmt.Errorf("no filing body for %s (.txt or .pdf)", base)
}

func parsePDF(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", fmt.Errorf("failed to open pdf %s: %w", filePath, err)
	}

	var text strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d of %s: %w", i, filePath, err)
		}
		text.WriteString(pageText)
		text.WriteString("\n\n")
	}
	return text.String(), nil
}

package models

// FilingMeta is the sidecar written next to every downloaded filing.
type FilingMeta struct {
	Ticker          string `json:"ticker"`
	CompanyName     string `json:"company_name"`
	FilingDate      string `json:"filing_date"`
	AccessionNumber string `json:"accession_number,omitempty"`
	FormType        string `json:"form_type,omitempty"`
	CIK             string `json:"cik,omitempty"`
	FilePath        string `json:"file_path,omitempty"`
}

// Section is one "Item" of a 10-K, e.g. 1A Risk Factors.
type Section struct {
	ItemNumber string `json:"item_number"`
	ItemTitle  string `json:"item_title"`
	Content    string `json:"content"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// Filing is a loaded 10-K with its text and parsed sections
type Filing struct {
	FilingMeta
	Text     string    `json:"-"`
	Sections []Section `json:"sections"`
}

// SourceName identifies the filing in chunk metadata, e.g. AAPL_10K_2024-11-01.
func (f *Filing) SourceName() string {
	return f.Ticker + "_10K_" + f.FilingDate
}

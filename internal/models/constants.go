package models

const (
	// ItemHeaderRegex matches "Item 1A", "ITEM 1A.", "Item 1A -", "Item 1A: Risk Factors"
	// at the start of a line. The item number and title are substituted.
	ItemHeaderRegex  = `(?im)^[ \t]*item\s*%s[\.\s\-:]*(?:%s)?`
	SpacesRegex      = `[ \t]+`
	BlankLinesRegex  = `\n{3,}`
	PageNumberRegex  = `\n\s*\d+\s*\n`
	TableOfContents  = `(?i)table of contents`
	ContextSeparator = "\n\n---\n\n"
	ThinkTag         = `(?s)<think>.*?</think>`
	// SourceRefRegex matches "Source 2", "source #3" and lists such as
	// "Sources 1, 3 and 4"; group 1 holds the numbers.
	SourceRefRegex   = `(?i)\bsources?\s*#?\s*(\d+(?:(?:\s*(?:,|&|\band\b|\bor\b))+\s*#?\s*\d+)*)`

	// MinSectionLength drops headers that only appear in the table of contents.
	MinSectionLength = 500
	ExcerptLength    = 200

	InsufficientInfoAnswer = "Based on the available SEC filings, there is insufficient information to answer this question."
	AnswerErrorText        = "The answer could not be prepared because of an internal error. Please report this problem."
	BackendUnavailableText = "The answer service is currently unavailable. Please make sure the model server and vector index are running, then try again."
)

// TenKItem is a 10-K item number with its canonical title.
type TenKItem struct {
	Number string
	Title  string
}

// TenKItems lists the sections extracted from a 10-K, in filing order.
var TenKItems = []TenKItem{
	// Part I
	{"1", "Business"},
	{"1A", "Risk Factors"},
	{"1B", "Unresolved Staff Comments"},
	{"1C", "Cybersecurity"},
	{"2", "Properties"},
	{"3", "Legal Proceedings"},
	{"4", "Mine Safety Disclosures"},
	// Part II
	{"5", "Market for Registrant's Common Equity"},
	{"6", "Selected Financial Data"},
	{"7", "Management's Discussion and Analysis"},
	{"7A", "Quantitative and Qualitative Disclosures About Market Risk"},
	{"8", "Financial Statements and Supplementary Data"},
	{"9", "Changes in and Disagreements With Accountants"},
	{"9A", "Controls and Procedures"},
	{"9B", "Other Information"},
	{"9C", "Disclosure Regarding Foreign Jurisdictions"},
}

// ChunkSeparators are tried in order, most preferred split point first.
var ChunkSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " "}

// prompt template names
const (
	PromptAnalyst    = "analyst"
	PromptBasic      = "basic"
	PromptComparison = "comparison"
	PromptSummary    = "summary"
)

var (
	BasicPromptTemplate = `You are a financial analyst assistant specializing in SEC filings analysis.
Use the following pieces of context from SEC 10-K filings to answer the question.

Important guidelines:
1. Only use information from the provided context
2. If you cannot find the answer in the context, say so clearly
3. Cite the source (company name, filing date, section) when making claims
4. Be specific and provide quantitative data when available
5. If comparing companies, structure your response clearly

Context from SEC 10-K Filings:
{{.context}}

Question: {{.question}}

Helpful Answer:`

	AnalystPromptTemplate = `You are an expert SEC filings analyst with deep knowledge of 10-K annual reports.
Use the provided context to answer questions with the precision expected in financial analysis.

## Financial Analysis Guidelines:
1. **Cite precisely**: Always mention company name, fiscal year, and specific section, and refer to the context block as "Source N"
2. **Quantify when possible**: Include specific numbers, percentages, dollar amounts when available
3. **Distinguish facts from forward-looking statements**: Note if information is management's projection vs. historical fact
4. **Highlight material risks**: When discussing risks, note their potential financial impact if mentioned
5. **Compare year-over-year**: If data spans multiple years, note trends and changes

## SEC 10-K Section Reference:
- Item 1 (Business): Company operations, products, competition
- Item 1A (Risk Factors): Material risks to the business
- Item 2 (Properties): Physical assets and locations
- Item 3 (Legal Proceedings): Ongoing litigation
- Item 7 (MD&A): Management's analysis of financial condition
- Item 8 (Financial Statements): Audited financial data

## Response Format:
- Start with a direct answer to the question
- Support with specific evidence from the filings
- Use bullet points for multiple items
- End with relevant caveats if information is limited

If the context doesn't contain enough information, say: "Based on the available SEC filings, I cannot fully answer this question because [specific reason]."

Context from SEC 10-K Filings:
{{.context}}

Question: {{.question}}

Analysis:`

	ComparisonPromptTemplate = `You are a senior equity research analyst comparing companies based on their SEC 10-K filings.
Create a structured, institutional-quality comparison.

## Comparison Framework:
1. **Business Model Comparison**: How each company generates revenue
2. **Financial Metrics**: Key performance indicators (revenue, margins, growth rates)
3. **Risk Profile**: Material risks specific to each company
4. **Competitive Position**: Market share, competitive advantages
5. **Strategic Outlook**: Management's stated priorities and investments

## Important:
- Always cite the specific company and filing year for each data point, as "Source N"
- Note if companies operate in different fiscal years
- Be objective - present facts, not recommendations

Context from SEC 10-K Filings:
{{.context}}

Question: {{.question}}

## Comparative Analysis:`

	SummaryPromptTemplate = `You are a financial analyst summarizing SEC 10-K filing content.
Create a concise summary of the following information.

Context:
{{.context}}

Topic: {{.question}}

Provide a clear, structured summary with key points:`
)

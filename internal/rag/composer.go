package rag

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"

	"sec-rag/internal/helper"
	"sec-rag/internal/llmservice"
	"sec-rag/internal/models"
)

var (
	sourceRefRe = regexp.MustCompile(models.SourceRefRegex)
	numberRe    = regexp.MustCompile(`\d+`)
)

var promptTemplates = map[string]string{
	models.PromptAnalyst:    models.AnalystPromptTemplate,
	models.PromptBasic:      models.BasicPromptTemplate,
	models.PromptComparison: models.ComparisonPromptTemplate,
	models.PromptSummary:    models.SummaryPromptTemplate,
}

// Composer turns retrieved passages into a grounded answer with citations.
type Composer struct {
	model       llms.Model
	template    prompts.PromptTemplate
	temperature float64
}

// NewComposer selects the named prompt template; an empty name means analyst.
func NewComposer(model llms.Model, promptName string, temperature float64) (*Composer, error) {
	if promptName == "" {
		promptName = models.PromptAnalyst
	}
	text, ok := promptTemplates[promptName]
	if !ok {
		return nil, fmt.Errorf("unknown prompt template %q", promptName)
	}
	return &Composer{
		model:       model,
		template:    prompts.NewPromptTemplate(text, []string{"context", "question"}),
		temperature: temperature,
	}, nil
}

// FormatContext renders the passages as numbered source blocks. Block i
// (1-based) is what an answer means by "Source i".
func FormatContext(results []models.Result) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		m := r.Chunk.Metadata
		blocks[i] = fmt.Sprintf("[Source %d: %s (%s), Filed: %s, Section: %s]\n%s",
			i+1, m.CompanyName, m.Ticker, m.FilingDate, m.ItemTitle, r.Chunk.Content)
	}
	return strings.Join(blocks, models.ContextSeparator)
}

func (c *Composer) Prompt(question string, results []models.Result) (string, error) {
	return c.template.Format(map[string]any{
		"context":  FormatContext(results),
		"question": question,
	})
}

// Compose calls the model once with the filled template. Without passages no
// model call is made and the answer reports no_data.
func (c *Composer) Compose(ctx context.Context, question string, results []models.Result) *models.Answer {
	if len(results) == 0 {
		log.Info().Str("question", question).Msg("No passages retrieved")
		return &models.Answer{
			Question: question,
			Text:     models.InsufficientInfoAnswer,
			Status:   models.StatusNoData,
		}
	}

	prompt, err := c.Prompt(question, results)
	if err != nil {
		log.Error().Err(err).Msg("Error formatting prompt")
		return &models.Answer{
			Question: question,
			Text:     models.AnswerErrorText,
			Status:   models.StatusError,
		}
	}

	text, err := llmservice.GenerateContent(ctx, c.model, prompt, c.temperature)
	if err != nil {
		log.Error().Err(err).Msg("Error generating answer")
		return unavailableAnswer(question, err)
	}

	return &models.Answer{
		Question:   question,
		Text:       text,
		Status:     models.StatusOK,
		Citations:  Citations(text, results),
		NumSources: len(results),
	}
}

// Citations resolves "Source N" references in the answer against the context
// blocks. When the answer names no valid block every block is cited.
// Citations for the same filing section are merged.
func Citations(answer string, results []models.Result) []models.Citation {
	var refs []int
	seen := make(map[int]bool)
	for _, m := range sourceRefRe.FindAllStringSubmatch(answer, -1) {
		for _, num := range numberRe.FindAllString(m[1], -1) {
			n, err := strconv.Atoi(num)
			if err != nil || n < 1 || n > len(results) || seen[n] {
				continue
			}
			seen[n] = true
			refs = append(refs, n)
		}
	}
	if len(refs) == 0 {
		for i := range results {
			refs = append(refs, i+1)
		}
	}

	type key struct{ ticker, date, item string }
	cited := make(map[key]bool)
	var out []models.Citation
	for _, n := range refs {
		r := results[n-1]
		m := r.Chunk.Metadata
		k := key{m.Ticker, m.FilingDate, m.ItemNumber}
		if cited[k] {
			continue
		}
		cited[k] = true
		out = append(out, models.Citation{
			SourceIndex: n,
			Ticker:      m.Ticker,
			Company:     m.CompanyName,
			FilingDate:  m.FilingDate,
			ItemNumber:  m.ItemNumber,
			Section:     m.ItemTitle,
			Excerpt:     helper.Truncate(r.Chunk.Content, models.ExcerptLength),
		})
	}
	return out
}

// Package rag wires retrieval and answer generation over the filing index.
package rag

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"sec-rag/internal/models"
)

// Store is the embedding store the pipeline reads from and the indexer writes to.
type Store interface {
	Add(ctx context.Context, chunks []models.Chunk) error
	Query(ctx context.Context, text string, k int, filter models.Filter) ([]models.Result, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	// DeleteFiling removes every chunk stored for one filing.
	DeleteFiling(ctx context.Context, ticker, filingDate string) error
}

// Pipeline answers questions over the index: Retrieve, then Compose.
type Pipeline struct {
	retriever *Retriever
	composer  *Composer
}

func NewPipeline(retriever *Retriever, composer *Composer) *Pipeline {
	return &Pipeline{retriever: retriever, composer: composer}
}

// Ask answers a question from the passages retrieved under filter. It never
// returns an error: unreachable backends and empty results are reported
// through the answer status and a user-facing text.
func (r *Pipeline) Ask(ctx context.Context, question string, filter models.Filter) *models.Answer {
	results, err := r.retriever.Retrieve(ctx, question, filter)
	if err != nil {
		log.Error().Err(err).Str("question", question).Msg("Retrieval failed")
		return unavailableAnswer(question, err)
	}
	return r.composer.Compose(ctx, question, results)
}

// Search returns the ranked passages without generating an answer.
func (r *Pipeline) Search(ctx context.Context, query string, filter models.Filter) ([]models.Result, error) {
	return r.retriever.Retrieve(ctx, query, filter)
}

func unavailableAnswer(question string, err error) *models.Answer {
	if !errors.Is(err, models.ErrUnavailable) {
		log.Warn().Err(err).Msg("Unclassified backend error")
	}
	return &models.Answer{
		Question: question,
		Text:     models.BackendUnavailableText,
		Status:   models.StatusBackendUnavailable,
	}
}

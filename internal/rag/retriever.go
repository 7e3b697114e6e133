package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"sec-rag/internal/config"
	"sec-rag/internal/models"
)

// Retriever applies the default K, the company filter and, optionally, MMR
// re-ranking on top of a store query. It keeps no state between calls.
type Retriever struct {
	store  Store
	k      int
	mmr    bool
	fetchK int
	lambda float64
}

func NewRetriever(store Store, cfg config.RAGConfig) *Retriever {
	k := cfg.TopK
	if k <= 0 {
		k = 6
	}
	return &Retriever{
		store:  store,
		k:      k,
		mmr:    cfg.MMR,
		fetchK: max(cfg.FetchK, k),
		lambda: cfg.MMRLambda,
	}
}

func (r *Retriever) K() int { return r.k }

func (r *Retriever) Retrieve(ctx context.Context, query string, filter models.Filter) ([]models.Result, error) {
	return r.RetrieveK(ctx, query, filter, r.k)
}

// RetrieveK returns at most k passages ranked by similarity to query.
func (r *Retriever) RetrieveK(ctx context.Context, query string, filter models.Filter, k int) ([]models.Result, error) {
	fetch := k
	if r.mmr {
		fetch = max(r.fetchK, k)
	}

	results, err := r.store.Query(ctx, query, fetch, filter)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	if r.mmr {
		results = MMR(results, k, r.lambda)
	} else if len(results) > k {
		results = results[:k]
	}

	log.Debug().
		Str("query", query).
		Strs("tickers", filter.Tickers).
		Int("k", k).
		Int("results", len(results)).
		Bool("mmr", r.mmr).
		Msg("Retrieved passages")
	return results, nil
}

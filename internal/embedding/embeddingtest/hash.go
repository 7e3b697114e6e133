// Package embeddingtest provides a deterministic offline embedder for tests.
package embeddingtest

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEmbedder maps each lower-cased word to a hashed bucket, giving a
// bag-of-words vector. Texts sharing words get high cosine similarity.
type HashEmbedder struct {
	Dims int
	// Fail makes every call return an error, to simulate an unreachable server.
	Fail bool
}

func New(dims int) *HashEmbedder {
	return &HashEmbedder{Dims: dims}
}

func (h *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if h.Fail {
		return nil, errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")
	}
	v := make([]float32, h.Dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		f.Write([]byte(w))
		v[f.Sum32()%uint32(h.Dims)]++
	}
	if len(words) == 0 {
		v[0] = 1
	}
	return v, nil
}

package models

import "errors"

var (
	// ErrUnavailable marks failures to reach the embedding server, the
	// generation model or the vector database.
	ErrUnavailable = errors.New("backend unavailable")

	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

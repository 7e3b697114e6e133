package chunker

import (
	"unicode/utf8"

	"sec-rag/internal/models"
)

// Stats summarizes a chunked corpus.
type Stats struct {
	TotalChunks     int            `json:"total_chunks" yaml:"total_chunks"`
	AvgChunkSize    float64        `json:"avg_chunk_size" yaml:"avg_chunk_size"`
	MinChunkSize    int            `json:"min_chunk_size" yaml:"min_chunk_size"`
	MaxChunkSize    int            `json:"max_chunk_size" yaml:"max_chunk_size"`
	ChunksByCompany map[string]int `json:"chunks_by_company" yaml:"chunks_by_company"`
	ChunksBySection map[string]int `json:"chunks_by_section" yaml:"chunks_by_section"`
}

func ComputeStats(chunks []models.Chunk) Stats {
	stats := Stats{
		TotalChunks:     len(chunks),
		ChunksByCompany: make(map[string]int),
		ChunksBySection: make(map[string]int),
	}
	if len(chunks) == 0 {
		return stats
	}

	total := 0
	stats.MinChunkSize = -1
	for _, c := range chunks {
		n := utf8.RuneCountInString(c.Content)
		total += n
		if stats.MinChunkSize < 0 || n < stats.MinChunkSize {
			stats.MinChunkSize = n
		}
		stats.MaxChunkSize = max(stats.MaxChunkSize, n)
		stats.ChunksByCompany[c.Metadata.Ticker]++
		stats.ChunksBySection[c.Metadata.ItemTitle]++
	}
	stats.AvgChunkSize = float64(total) / float64(len(chunks))
	return stats
}

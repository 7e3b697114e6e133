package chunker

import "sec-rag/internal/models"

var separatorRunes = func() [][]rune {
	out := make([][]rune, len(models.ChunkSeparators))
	for i, s := range models.ChunkSeparators {
		out[i] = []rune(s)
	}
	return out
}()

// splitWindow slides a window of size runes over text. Each cut is placed
// after the most preferred separator found in the back half of the window
// (a hard cut if there is none) and the next window starts exactly overlap
// runes before the cut.
func splitWindow(text string, size, overlap int) []string {
	r := []rune(text)
	if len(r) == 0 {
		return nil
	}
	if len(r) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for {
		end := start + size
		if end >= len(r) {
			chunks = append(chunks, string(r[start:]))
			break
		}
		end = cutPoint(r, start+max(overlap+1, size/2), end)
		chunks = append(chunks, string(r[start:end]))
		start = end - overlap
	}
	return chunks
}

// cutPoint returns the position just after the last occurrence of the most
// preferred separator ending within [lo, hi], or hi.
func cutPoint(r []rune, lo, hi int) int {
	if lo >= hi {
		return hi
	}
	for _, sep := range separatorRunes {
		for i := hi - len(sep); i+len(sep) >= lo && i >= 0; i-- {
			if hasRunes(r[i:], sep) {
				return i + len(sep)
			}
		}
	}
	return hi
}

func hasRunes(r, prefix []rune) bool {
	if len(r) < len(prefix) {
		return false
	}
	for i := range prefix {
		if r[i] != prefix[i] {
			return false
		}
	}
	return true
}

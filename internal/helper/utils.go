package helper

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// chunkNamespace scopes chunk ids so they never collide with other name-based UUIDs.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("sec-rag/chunk"))

// ChunkID derives a stable id for a chunk, so re-ingesting a filing
// overwrites its previous records instead of duplicating them.
func ChunkID(ticker, filingDate, itemNumber string, index int) string {
	name := fmt.Sprintf("%s|%s|%s|%d", strings.ToUpper(ticker), filingDate, itemNumber, index)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

// CreateFolder creates the folder and its parents if it does not exist
func CreateFolder(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", path, err)
	}
	return nil
}

// pretty print
func PrettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Error pretty printing")
		return
	}
	fmt.Println(string(b))
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

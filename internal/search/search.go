package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"lifeblocks/api/internal/blocks"
)

// Result is a single search hit returned to the caller.
type Result struct {
	BoardID string      `json:"boardId"`
	BlockID string      `json:"blockId"`
	Type    blocks.Type `json:"type"`
	Title   string      `json:"title"`
	Snippet string      `json:"snippet"`
}

// Query describes a search request. BoardIDs restricts hits to the boards the
// caller can read; an empty list matches nothing.
type Query struct {
	Text     string
	BoardIDs []string
	Limit    int
	Offset   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push blocks into a search index.
type Indexer interface {
	IndexBlocks(records []BlockRecord) error
	DeleteBlock(id string) error
}

// BlockRecord is the data we index for a block.
type BlockRecord struct {
	ID      string `json:"id"`
	BoardID string `json:"boardId"`
	BlockID string `json:"blockId"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Text    string `json:"text"`
}

// NewBlockRecord flattens a block for indexing.
func NewBlockRecord(boardID string, b blocks.Block) BlockRecord {
	return BlockRecord{
		ID:      RecordID(boardID, b.ID),
		BoardID: boardID,
		BlockID: b.ID,
		Type:    string(b.Type),
		Title:   blocks.Title(b.Content),
		Text:    blocks.PlainText(b.Content),
	}
}

// RecordID derives an index key from the board and block ids. Block ids are
// client chosen and may hold characters Meilisearch rejects in primary keys.
func RecordID(boardID, blockID string) string {
	sum := sha256.Sum256([]byte(boardID + "\x00" + blockID))
	return hex.EncodeToString(sum[:16])
}

func normalize(q Query) Query {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

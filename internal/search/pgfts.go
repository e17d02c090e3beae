package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"lifeblocks/api/internal/blocks"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks blocks.fts against plainto_tsquery with ts_headline snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || len(q.BoardIDs) == 0 {
		return nil, 0, nil
	}
	q = normalize(q)

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	placeholders := make([]string, len(q.BoardIDs))
	for i, id := range q.BoardIDs {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", i+2)
	}
	where := fmt.Sprintf("b.fts @@ %s AND b.board_id IN (%s)", tsQuery, strings.Join(placeholders, ", "))

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM blocks b WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT b.board_id, b.id, b.type, coalesce(b.doc->>'title', ''),
			ts_headline('english', coalesce(b.search_text, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet
		FROM blocks b
		WHERE %s
		ORDER BY ts_rank(b.fts, %s) DESC, b.board_id, b.id
		LIMIT %d OFFSET %d`, tsQuery, where, tsQuery, q.Limit, q.Offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&r.BoardID, &r.BlockID, &typ, &r.Title, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = blocks.Type(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every block as an index record for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]BlockRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT board_id, doc FROM blocks ORDER BY board_id, position`)
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	defer rows.Close()

	records := make([]BlockRecord, 0)
	for rows.Next() {
		var boardID string
		var doc []byte
		if err := rows.Scan(&boardID, &doc); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		var b blocks.Block
		if err := json.Unmarshal(doc, &b); err != nil {
			// Unreadable documents are skipped rather than failing the reindex.
			continue
		}
		records = append(records, NewBlockRecord(boardID, b))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	return records, nil
}

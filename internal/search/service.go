package search

import (
	"context"

	log "github.com/sirupsen/logrus"

	"lifeblocks/api/internal/blocks"
)

type indexBackend interface {
	Searcher
	Indexer
	Close()
}

type recordLoader interface {
	Searcher
	LoadAllRecords(ctx context.Context) ([]BlockRecord, error)
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili  indexBackend
	pgfts  recordLoader
	logger log.FieldLogger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS, logger log.FieldLogger) *Service {
	s := &Service{logger: logger}
	if s.logger == nil {
		s.logger = log.StandardLogger()
	}
	if meili != nil {
		s.meili = meili
	}
	if pgfts != nil {
		s.pgfts = pgfts
	}
	return s
}

func (s *Service) indexing() bool {
	return s.meili != nil && s.meili.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexing() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.WithError(err).Warn("meilisearch error, falling back to pgfts")
	}
	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		s.logger.WithError(err).Error("pgfts search")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexBlock indexes a block (fire-and-forget to Meilisearch).
func (s *Service) IndexBlock(boardID string, b blocks.Block) {
	if !s.indexing() {
		return
	}
	record := NewBlockRecord(boardID, b)
	go func() {
		if err := s.meili.IndexBlocks([]BlockRecord{record}); err != nil {
			s.logger.WithError(err).WithField("block", b.ID).Warn("index block")
		}
	}()
}

// IndexBoard indexes every block of a board (fire-and-forget).
func (s *Service) IndexBoard(board blocks.Board) {
	if !s.indexing() || len(board.Blocks) == 0 {
		return
	}
	records := make([]BlockRecord, len(board.Blocks))
	for i, b := range board.Blocks {
		records[i] = NewBlockRecord(board.ID, b)
	}
	go func() {
		if err := s.meili.IndexBlocks(records); err != nil {
			s.logger.WithError(err).WithField("board", board.ID).Warn("index board")
		}
	}()
}

// DeleteBlock removes a block from the search index (fire-and-forget).
func (s *Service) DeleteBlock(boardID, blockID string) {
	if !s.indexing() {
		return
	}
	id := RecordID(boardID, blockID)
	go func() {
		if err := s.meili.DeleteBlock(id); err != nil {
			s.logger.WithError(err).WithField("block", blockID).Warn("delete block from index")
		}
	}()
}

// DeleteBoard removes the given blocks of a deleted board (fire-and-forget).
func (s *Service) DeleteBoard(board blocks.Board) {
	for _, b := range board.Blocks {
		s.DeleteBlock(board.ID, b.ID)
	}
}

// ReindexAllFromPG pushes every stored block into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.indexing() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		s.logger.WithError(err).Error("reindex load failed")
		return
	}
	if err := s.meili.IndexBlocks(records); err != nil {
		s.logger.WithError(err).Error("reindex blocks")
		return
	}
	s.logger.WithField("blocks", len(records)).Info("search index rebuilt")
}

// Close stops the Meilisearch health loop.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

package mobileorder

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"lifeblocks/api/internal/blocks"
)

// Store is the persistence the synchronizer writes through.
type Store interface {
	GetBoard(ctx context.Context, boardID string) (blocks.Board, error)
	SaveMobileOrder(ctx context.Context, boardID string, order []string) error
	SetBlockHidden(ctx context.Context, boardID, blockID string, hidden bool) error
}

type Synchronizer struct {
	store  Store
	logger log.FieldLogger
	// OnReconcile, when set, observes every Load.
	OnReconcile func(changed bool)
}

func NewSynchronizer(store Store, logger log.FieldLogger) *Synchronizer {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Synchronizer{store: store, logger: logger}
}

// Load returns the board with a reconciled order. A corrected order is
// written back, and a failed write is logged rather than returned since the
// next load derives the same order again.
func (s *Synchronizer) Load(ctx context.Context, boardID string) (blocks.Board, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return blocks.Board{}, err
	}
	order, changed := Reconcile(board.Blocks, board.MobileOrder)
	board.MobileOrder = order
	if s.OnReconcile != nil {
		s.OnReconcile(changed)
	}
	if changed {
		if err := s.store.SaveMobileOrder(ctx, boardID, order); err != nil {
			s.logger.WithError(err).WithField("board", boardID).Warn("mobile order save failed")
		}
	}
	return board, nil
}

// SetHidden flips a block's mobile visibility on board and persists it. On a
// failed write the previous value is restored.
func (s *Synchronizer) SetHidden(ctx context.Context, board *blocks.Board, blockID string, hidden bool) error {
	block, ok := board.Block(blockID)
	if !ok {
		return ErrUnknownBlock
	}
	previous := block.MobileHidden
	block.MobileHidden = hidden
	if err := s.store.SetBlockHidden(ctx, board.ID, blockID, hidden); err != nil {
		block.MobileHidden = previous
		s.logger.WithError(err).WithField("board", board.ID).WithField("block", blockID).Warn("visibility toggle rolled back")
		return fmt.Errorf("persist visibility: %w", err)
	}
	return nil
}

// Reorder moves blockID to index in the reconciled order and persists it,
// restoring the previous order on failure.
func (s *Synchronizer) Reorder(ctx context.Context, board *blocks.Board, blockID string, index int) error {
	current, _ := Reconcile(board.Blocks, board.MobileOrder)
	next, err := Move(current, blockID, index)
	if err != nil {
		return err
	}
	previous := board.MobileOrder
	board.MobileOrder = next
	if err := s.store.SaveMobileOrder(ctx, board.ID, next); err != nil {
		board.MobileOrder = previous
		s.logger.WithError(err).WithField("board", board.ID).Warn("reorder rolled back")
		return fmt.Errorf("persist mobile order: %w", err)
	}
	return nil
}

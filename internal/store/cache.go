package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"lifeblocks/api/internal/blocks"
)

type boardBackend interface {
	GetBoard(ctx context.Context, boardID string) (blocks.Board, error)
	DeleteBoard(ctx context.Context, boardID string) error
	UpsertBlock(ctx context.Context, boardID string, block blocks.Block) error
	DeleteBlock(ctx context.Context, boardID, blockID string) error
	SaveMobileOrder(ctx context.Context, boardID string, order []string) error
	SetBlockHidden(ctx context.Context, boardID, blockID string, hidden bool) error
}

// Cache wraps a PostgresStore with a Redis read-through cache of board
// documents. Every write to a board evicts its entry.
type Cache struct {
	*PostgresStore
	base  boardBackend
	redis *redis.Client
	ttl   time.Duration
}

func NewCache(base *PostgresStore, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("store.NewCache: base store is nil")
	}
	c := newBoardCache(base, client, ttl)
	c.PostgresStore = base
	return c
}

// newBoardCache caches board reads over any backend. Only the board
// methods of the result are usable.
func newBoardCache(base boardBackend, client *redis.Client, ttl time.Duration) *Cache {
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) GetBoard(ctx context.Context, boardID string) (blocks.Board, error) {
	if board, ok := c.load(ctx, boardID); ok {
		return board, nil
	}
	board, err := c.base.GetBoard(ctx, boardID)
	if err != nil {
		return blocks.Board{}, err
	}
	c.store(ctx, board)
	return board, nil
}

func (c *Cache) DeleteBoard(ctx context.Context, boardID string) error {
	if err := c.base.DeleteBoard(ctx, boardID); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

func (c *Cache) UpsertBlock(ctx context.Context, boardID string, block blocks.Block) error {
	if err := c.base.UpsertBlock(ctx, boardID, block); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

func (c *Cache) DeleteBlock(ctx context.Context, boardID, blockID string) error {
	if err := c.base.DeleteBlock(ctx, boardID, blockID); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

func (c *Cache) SaveMobileOrder(ctx context.Context, boardID string, order []string) error {
	if err := c.base.SaveMobileOrder(ctx, boardID, order); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

func (c *Cache) SetBlockHidden(ctx context.Context, boardID, blockID string, hidden bool) error {
	if err := c.base.SetBlockHidden(ctx, boardID, blockID, hidden); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

func (c *Cache) load(ctx context.Context, boardID string) (blocks.Board, bool) {
	if c.redis == nil {
		return blocks.Board{}, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(boardID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the database without failing.
			_ = c.redis.Del(ctx, boardCacheKey(boardID)).Err()
		}
		return blocks.Board{}, false
	}
	var board blocks.Board
	if err := json.Unmarshal(data, &board); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(boardID)).Err()
		return blocks.Board{}, false
	}
	return board, true
}

func (c *Cache) store(ctx context.Context, board blocks.Board) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(board)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey(board.ID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, boardID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, boardCacheKey(boardID)).Result()
}

func boardCacheKey(boardID string) string {
	return "board:" + boardID
}

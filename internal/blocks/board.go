package blocks

import (
	"time"
)

// Board is a user's canvas. MobileOrder lists block ids top to bottom for
// the single-column layout; it may be stale until reconciled.
type Board struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Title       string    `json:"title"`
	Blocks      []Block   `json:"blocks"`
	MobileOrder []string  `json:"mobileOrder"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Block returns a pointer into the board's slice.
func (b *Board) Block(id string) (*Block, bool) {
	for i := range b.Blocks {
		if b.Blocks[i].ID == id {
			return &b.Blocks[i], true
		}
	}
	return nil, false
}

// Add validates and appends block.
func (b *Board) Add(block Block) error {
	if _, ok := b.Block(block.ID); ok {
		return ErrDuplicateBlock
	}
	if err := Validate(block); err != nil {
		return err
	}
	b.Blocks = append(b.Blocks, block)
	return nil
}

// Update merges patch into the block with id.
func (b *Board) Update(id string, patch []byte) (Block, error) {
	current, ok := b.Block(id)
	if !ok {
		return Block{}, ErrUnknownBlock
	}
	next, err := Merge(*current, patch)
	if err != nil {
		return Block{}, err
	}
	*current = next
	return next, nil
}

// Remove deletes the block and drops it from the mobile order.
func (b *Board) Remove(id string) (Block, error) {
	for i := range b.Blocks {
		if b.Blocks[i].ID != id {
			continue
		}
		removed := b.Blocks[i]
		b.Blocks = append(b.Blocks[:i], b.Blocks[i+1:]...)
		order := b.MobileOrder[:0]
		for _, entry := range b.MobileOrder {
			if entry != id {
				order = append(order, entry)
			}
		}
		b.MobileOrder = order
		return removed, nil
	}
	return Block{}, ErrUnknownBlock
}

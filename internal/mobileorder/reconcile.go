// Package mobileorder keeps a board's single-column order in step with its
// blocks.
package mobileorder

import (
	"errors"
	"sort"

	"lifeblocks/api/internal/blocks"
)

// RowThreshold is the vertical distance within which blocks share a row.
const RowThreshold = 50.0

var ErrUnknownBlock = errors.New("block is not on this board")

// Reconcile drops ids that no longer exist, removes duplicates keeping the
// first occurrence, and appends missing blocks in reading order. changed
// reports whether the result differs from order.
func Reconcile(bs []blocks.Block, order []string) ([]string, bool) {
	present := make(map[string]struct{}, len(bs))
	for _, b := range bs {
		present[b.ID] = struct{}{}
	}

	result := make([]string, 0, len(bs))
	seen := make(map[string]struct{}, len(bs))
	for _, id := range order {
		if _, ok := present[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}

	var missing []blocks.Block
	for _, b := range bs {
		if _, ok := seen[b.ID]; ok {
			continue
		}
		seen[b.ID] = struct{}{}
		missing = append(missing, b)
	}
	for _, b := range readingOrder(missing) {
		result = append(result, b.ID)
	}
	return result, !equal(result, order)
}

// readingOrder sorts top to bottom in rows, then left to right.
func readingOrder(bs []blocks.Block) []blocks.Block {
	if len(bs) == 0 {
		return nil
	}
	sorted := append([]blocks.Block(nil), bs...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i].Geometry, sorted[j].Geometry
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return sorted[i].ID < sorted[j].ID
	})

	rows := make(map[string]int, len(sorted))
	row := 0
	rowStart := sorted[0].Geometry.Y
	for _, b := range sorted {
		if b.Geometry.Y-rowStart >= RowThreshold {
			row++
			rowStart = b.Geometry.Y
		}
		rows[b.ID] = row
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := rows[sorted[i].ID], rows[sorted[j].ID]
		if ri != rj {
			return ri < rj
		}
		if sorted[i].Geometry.X != sorted[j].Geometry.X {
			return sorted[i].Geometry.X < sorted[j].Geometry.X
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// Move returns a copy of order with id placed at index. index is clamped.
func Move(order []string, id string, index int) ([]string, error) {
	from := -1
	for i, entry := range order {
		if entry == id {
			from = i
			break
		}
	}
	if from < 0 {
		return nil, ErrUnknownBlock
	}
	rest := make([]string, 0, len(order))
	rest = append(rest, order[:from]...)
	rest = append(rest, order[from+1:]...)
	if index < 0 {
		index = 0
	}
	if index > len(rest) {
		index = len(rest)
	}
	out := make([]string, 0, len(order))
	out = append(out, rest[:index]...)
	out = append(out, id)
	out = append(out, rest[index:]...)
	return out, nil
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package blocks

import (
	"fmt"
)

// Check records a completion. For habit and gratitude blocks it sets the
// item's mark for date; for affirmations it sets repetition index; for todo
// lists it sets done and ignores date and index.
func Check(b *Block, date, itemID string, index int, value bool) error {
	if _, isTodo := b.Content.(*TodoList); !isTodo {
		if _, err := ParseDate(date); err != nil {
			return invalid("date", "must be YYYY-MM-DD")
		}
	}
	switch v := b.Content.(type) {
	case *HabitTracker:
		if !hasItem(ItemIDs(v), itemID) {
			return fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
		}
		v.History.set(date, itemID, NewMark(value))
	case *GratitudeJournal:
		if !hasItem(ItemIDs(v), itemID) {
			return fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
		}
		v.History.set(date, itemID, NewMark(value))
	case *Affirmations:
		var target *Affirmation
		for i := range v.Affirmations {
			if v.Affirmations[i].ID == itemID {
				target = &v.Affirmations[i]
				break
			}
		}
		if target == nil {
			return fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
		}
		n := target.Repetitions()
		if index < 0 || index >= n {
			return ErrIndexOutOfRange
		}
		values := make([]bool, n)
		if mark, ok := v.History.Day(date)[itemID]; ok {
			copy(values, mark.Values())
		}
		values[index] = value
		v.History.set(date, itemID, NewListMark(values))
	case *TodoList:
		for i := range v.Items {
			if v.Items[i].ID == itemID {
				v.Items[i].Done = value
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	default:
		return ErrNotCheckable
	}
	return nil
}

func hasItem(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

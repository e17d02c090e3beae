package blocks

import (
	"bytes"
	"encoding/json"
	"time"
)

// DateLayout is the history key format.
const DateLayout = "2006-01-02"

// DateKey formats t as a history key in t's own location.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a history key.
func ParseDate(value string) (time.Time, error) {
	return time.Parse(DateLayout, value)
}

// History maps a date key to that day's marks.
type History map[string]DayEntry

// DayEntry maps an item id to its mark for one day.
type DayEntry map[string]Mark

// Mark is a single boolean (habits, gratitude) or one boolean per repetition
// (affirmations).
type Mark struct {
	values []bool
	list   bool
}

func NewMark(checked bool) Mark {
	return Mark{values: []bool{checked}}
}

func NewListMark(values []bool) Mark {
	cp := make([]bool, len(values))
	copy(cp, values)
	return Mark{values: cp, list: true}
}

// IsList reports whether the mark holds per-repetition values.
func (m Mark) IsList() bool { return m.list }

// Values returns a copy of the raw values.
func (m Mark) Values() []bool {
	cp := make([]bool, len(m.values))
	copy(cp, m.values)
	return cp
}

// Checked reports a single-valued mark as done. List marks are done when
// every slot is set.
func (m Mark) Checked() bool {
	if len(m.values) == 0 {
		return false
	}
	if !m.list {
		return m.values[0]
	}
	for _, v := range m.values {
		if !v {
			return false
		}
	}
	return true
}

// Count returns how many of the first limit slots are set. A single true
// mark counts as one repetition.
func (m Mark) Count(limit int) int {
	n := 0
	for i, v := range m.values {
		if i >= limit {
			break
		}
		if v {
			n++
		}
	}
	return n
}

func (m Mark) MarshalJSON() ([]byte, error) {
	if m.list {
		if m.values == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(m.values)
	}
	return json.Marshal(len(m.values) > 0 && m.values[0])
}

// UnmarshalJSON never fails: anything that is not a boolean decodes as
// "not completed".
func (m *Mark) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	*m = Mark{}
	if len(trimmed) == 0 {
		return nil
	}
	switch trimmed[0] {
	case 't', 'f':
		m.values = []bool{bytes.Equal(trimmed, []byte("true"))}
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			m.values = []bool{false}
			return nil
		}
		m.list = true
		m.values = make([]bool, len(raw))
		for i, r := range raw {
			m.values[i] = bytes.Equal(bytes.TrimSpace(r), []byte("true"))
		}
	default:
		m.values = []bool{false}
	}
	return nil
}

// UnmarshalJSON drops days whose key is not a date or whose value is not an
// object instead of failing the whole block.
func (h *History) UnmarshalJSON(data []byte) error {
	out := History{}
	var days map[string]json.RawMessage
	if err := json.Unmarshal(data, &days); err != nil {
		*h = out
		return nil
	}
	for key, raw := range days {
		if _, err := ParseDate(key); err != nil {
			continue
		}
		var entry DayEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if entry == nil {
			entry = DayEntry{}
		}
		out[key] = entry
	}
	*h = out
	return nil
}

// Day returns the entry for date, or nil.
func (h History) Day(date string) DayEntry {
	if h == nil {
		return nil
	}
	return h[date]
}

func (h History) set(date, itemID string, mark Mark) {
	entry, ok := h[date]
	if !ok || entry == nil {
		entry = DayEntry{}
		h[date] = entry
	}
	entry[itemID] = mark
}

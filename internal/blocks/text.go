package blocks

import "strings"

// Title returns the block's display title, if its variant has one.
func Title(c Content) string {
	switch v := c.(type) {
	case *HabitTracker:
		return v.Title
	case *GratitudeJournal:
		return v.Title
	case *Affirmations:
		return v.Title
	case *TodoList:
		return v.Title
	case *Embed:
		return v.Title
	case *Panel:
		return v.Title
	}
	return ""
}

// PlainText flattens the user-written text of a block for indexing.
func PlainText(c Content) string {
	var parts []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	add(Title(c))
	switch v := c.(type) {
	case *Text:
		add(v.Text)
	case *HabitTracker:
		for _, it := range v.Habits {
			add(it.Text)
		}
	case *GratitudeJournal:
		for _, it := range v.Items {
			add(it.Text)
		}
	case *Affirmations:
		for _, it := range v.Affirmations {
			add(it.Text)
		}
	case *TodoList:
		for _, it := range v.Items {
			add(it.Text)
		}
	case *Embed:
		add(v.URL)
	}
	return strings.Join(parts, "\n")
}

// Package blocks holds the canvas block model: a common header plus one
// content variant per block type, and the board that owns them.
package blocks

// Type is the block discriminant stored in the "type" field.
type Type string

const (
	TypeText         Type = "text"
	TypeHabitTracker Type = "daily-habit-tracker"
	TypeGratitude    Type = "gratitude-journal"
	TypeAffirmations Type = "affirmations"
	TypeTodoList     Type = "todo-list"
	TypeEmbed        Type = "embed"
	TypeImage        Type = "image"
	TypeAnalytics    Type = "analytics"
	TypeBilling      Type = "billing"
	TypeTeam         Type = "team"
)

// Geometry is the block's canvas rectangle.
type Geometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Block is one canvas item. Content is never nil for a decoded block.
type Block struct {
	ID           string
	Type         Type
	Geometry     Geometry
	MobileHidden bool
	Content      Content
}

// Content is implemented by every block variant.
type Content interface {
	Kind() Type
}

type Item struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Affirmation is repeated Count times per day. Count <= 0 means once.
type Affirmation struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Count int    `json:"count,omitempty"`
}

// Repetitions returns the effective repeat count.
func (a Affirmation) Repetitions() int {
	if a.Count <= 0 {
		return 1
	}
	return a.Count
}

type TodoItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

type Image struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
}

type Text struct {
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
}

type HabitTracker struct {
	Title   string  `json:"title,omitempty"`
	Habits  []Item  `json:"habits"`
	History History `json:"history"`
}

type GratitudeJournal struct {
	Title   string  `json:"title,omitempty"`
	Items   []Item  `json:"items"`
	History History `json:"history"`
}

type Affirmations struct {
	Title        string        `json:"title,omitempty"`
	Affirmations []Affirmation `json:"affirmations"`
	History      History       `json:"history"`
}

type TodoList struct {
	Title string     `json:"title,omitempty"`
	Items []TodoItem `json:"items"`
}

type Embed struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

type ImageGallery struct {
	Images        []Image `json:"images"`
	RotateSeconds int     `json:"rotateSeconds,omitempty"`
}

// Panel backs blocks whose data is looked up at render time (analytics,
// billing, team). Only the title is stored.
type Panel struct {
	kind  Type
	Title string `json:"title,omitempty"`
}

func (*Text) Kind() Type             { return TypeText }
func (*HabitTracker) Kind() Type     { return TypeHabitTracker }
func (*GratitudeJournal) Kind() Type { return TypeGratitude }
func (*Affirmations) Kind() Type     { return TypeAffirmations }
func (*TodoList) Kind() Type         { return TypeTodoList }
func (*Embed) Kind() Type            { return TypeEmbed }
func (*ImageGallery) Kind() Type     { return TypeImage }
func (p *Panel) Kind() Type          { return p.kind }

// NewContent returns an empty variant for t.
func NewContent(t Type) (Content, error) {
	switch t {
	case TypeText:
		return &Text{}, nil
	case TypeHabitTracker:
		return &HabitTracker{History: History{}}, nil
	case TypeGratitude:
		return &GratitudeJournal{History: History{}}, nil
	case TypeAffirmations:
		return &Affirmations{History: History{}}, nil
	case TypeTodoList:
		return &TodoList{}, nil
	case TypeEmbed:
		return &Embed{}, nil
	case TypeImage:
		return &ImageGallery{}, nil
	case TypeAnalytics, TypeBilling, TypeTeam:
		return &Panel{kind: t}, nil
	default:
		return nil, ErrUnknownType
	}
}

// ItemIDs lists a block's item ids in display order.
func ItemIDs(c Content) []string {
	var ids []string
	switch v := c.(type) {
	case *HabitTracker:
		for _, it := range v.Habits {
			ids = append(ids, it.ID)
		}
	case *GratitudeJournal:
		for _, it := range v.Items {
			ids = append(ids, it.ID)
		}
	case *Affirmations:
		for _, it := range v.Affirmations {
			ids = append(ids, it.ID)
		}
	case *TodoList:
		for _, it := range v.Items {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

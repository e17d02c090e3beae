package blocks

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// header is the part of the wire document shared by every variant.
type header struct {
	ID           string  `json:"id"`
	Type         Type    `json:"type"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	MobileHidden bool    `json:"mobileHidden"`
}

// Decode parses a flat block document. It does not validate.
func Decode(data []byte) (Block, error) {
	var b Block
	if err := b.UnmarshalJSON(data); err != nil {
		return Block{}, err
	}
	return b, nil
}

// UnmarshalJSON reads the header, then decodes the same document into the
// variant named by "type".
func (b *Block) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return ErrInvalidDocument
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return ErrInvalidDocument
	}
	content, err := NewContent(Type(doc.Get("type").String()))
	if err != nil {
		return err
	}
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := json.Unmarshal(data, content); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	fillHistory(content)
	*b = Block{
		ID:           h.ID,
		Type:         h.Type,
		Geometry:     Geometry{X: h.X, Y: h.Y, Width: h.Width, Height: h.Height},
		MobileHidden: h.MobileHidden,
		Content:      content,
	}
	return nil
}

// MarshalJSON writes the header and the variant fields into one object.
func (b Block) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if b.Content != nil {
		raw, err := json.Marshal(b.Content)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
	}
	h := header{
		ID:           b.ID,
		Type:         b.Type,
		X:            b.Geometry.X,
		Y:            b.Geometry.Y,
		Width:        b.Geometry.Width,
		Height:       b.Geometry.Height,
		MobileHidden: b.MobileHidden,
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	var headerFields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &headerFields); err != nil {
		return nil, err
	}
	for k, v := range headerFields {
		fields[k] = v
	}
	return json.Marshal(fields)
}

// fillHistory replaces a missing history with an empty one so writers never
// hit a nil map.
func fillHistory(c Content) {
	switch v := c.(type) {
	case *HabitTracker:
		if v.History == nil {
			v.History = History{}
		}
	case *GratitudeJournal:
		if v.History == nil {
			v.History = History{}
		}
	case *Affirmations:
		if v.History == nil {
			v.History = History{}
		}
	}
}

// Clone deep-copies a block through its wire form.
func Clone(b Block) (Block, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return Block{}, err
	}
	return Decode(raw)
}

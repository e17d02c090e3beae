package blocks

import (
	"math"
	"net/url"
	"strings"
)

// Validate checks the header and the variant's item lists.
func Validate(b Block) error {
	if strings.TrimSpace(b.ID) == "" {
		return invalid("id", "is required")
	}
	if b.Content == nil {
		return ErrUnknownType
	}
	if b.Content.Kind() != b.Type {
		return invalid("type", "does not match content")
	}
	g := b.Geometry
	for name, v := range map[string]float64{"x": g.X, "y": g.Y, "width": g.Width, "height": g.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid(name, "must be a finite number")
		}
	}
	if g.Width < 0 || g.Height < 0 {
		return invalid("size", "must not be negative")
	}

	switch v := b.Content.(type) {
	case *Embed:
		if v.URL == "" {
			return nil
		}
		u, err := url.Parse(v.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("url", "must be an http(s) url")
		}
	case *ImageGallery:
		if v.RotateSeconds < 0 {
			return invalid("rotateSeconds", "must not be negative")
		}
		for _, img := range v.Images {
			if img.Key == "" {
				return invalid("images", "key is required")
			}
		}
	case *Affirmations:
		for _, a := range v.Affirmations {
			if a.Count > 100 {
				return invalid("affirmations", "count must be at most 100")
			}
		}
	}
	return uniqueIDs(ItemIDs(b.Content))
}

func uniqueIDs(ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return invalid("items", "id is required")
		}
		if _, ok := seen[id]; ok {
			return invalid("items", "duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

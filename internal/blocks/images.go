package blocks

// Images returns the gallery of an image block, or nil for other types.
func Images(b Block) []Image {
	gallery, ok := b.Content.(*ImageGallery)
	if !ok {
		return nil
	}
	return gallery.Images
}

// ClearImages empties the gallery of a client supplied block. Images are
// attached only through uploads, so a document never brings its own keys.
func ClearImages(b *Block) {
	if gallery, ok := b.Content.(*ImageGallery); ok {
		gallery.Images = []Image{}
	}
}

// RemovedImages lists the images of before that after no longer holds.
func RemovedImages(before, after Block) []Image {
	kept := map[string]struct{}{}
	for _, img := range Images(after) {
		kept[img.Key] = struct{}{}
	}
	var removed []Image
	for _, img := range Images(before) {
		if _, ok := kept[img.Key]; !ok {
			removed = append(removed, img)
		}
	}
	return removed
}

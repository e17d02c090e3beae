package blocks

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/tidwall/gjson"
)

// Merge applies an RFC 7396 merge patch to b and returns the validated
// result. b is left untouched. Arrays in the patch replace the stored array;
// objects such as history merge key by key. Gallery images are managed by
// uploads and cannot be patched.
func Merge(b Block, patch []byte) (Block, error) {
	if !gjson.ValidBytes(patch) || !gjson.ParseBytes(patch).IsObject() {
		return Block{}, ErrInvalidPatch
	}
	if id := gjson.GetBytes(patch, "id"); id.Exists() && id.String() != b.ID {
		return Block{}, fmt.Errorf("%w: id", ErrImmutableField)
	}
	if typ := gjson.GetBytes(patch, "type"); typ.Exists() && Type(typ.String()) != b.Type {
		return Block{}, fmt.Errorf("%w: type", ErrImmutableField)
	}
	if gjson.GetBytes(patch, "images").Exists() {
		return Block{}, fmt.Errorf("%w: images", ErrImmutableField)
	}
	doc, err := json.Marshal(b)
	if err != nil {
		return Block{}, err
	}
	merged, err := jsonpatch.MergePatch(doc, patch)
	if err != nil {
		return Block{}, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	out, err := Decode(merged)
	if err != nil {
		return Block{}, err
	}
	if err := Validate(out); err != nil {
		return Block{}, err
	}
	return out, nil
}

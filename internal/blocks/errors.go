package blocks

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownType     = errors.New("unknown block type")
	ErrUnknownBlock    = errors.New("unknown block")
	ErrDuplicateBlock  = errors.New("duplicate block id")
	ErrUnknownItem     = errors.New("unknown item")
	ErrNotCheckable    = errors.New("block type has no checkable items")
	ErrIndexOutOfRange = errors.New("repetition index out of range")
	ErrInvalidDocument = errors.New("invalid block document")
	ErrInvalidPatch    = errors.New("invalid block patch")
	ErrImmutableField  = errors.New("field cannot be changed")
)

// ValidationError reports one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

package shape

import "github.com/pkg/errors"

var (
	// ErrShapeMismatch is returned when two shapes cannot be broadcast.
	ErrShapeMismatch = errors.New("shape: shapes not compatible for broadcasting")

	// ErrInvalidShape is returned for negative sizes, ranks above MaxRank or
	// element counts that overflow int.
	ErrInvalidShape = errors.New("shape: invalid shape")
)

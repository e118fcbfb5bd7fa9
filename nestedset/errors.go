package nestedset

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a node, parent or anchor id does not
	// resolve to a row. Nothing has been written when it is returned.
	ErrNotFound = errors.New("node not found")

	// ErrInvalidMove is returned when the move destination lies inside the
	// moving node's own subtree. Nothing has been written when it is returned.
	ErrInvalidMove = errors.New("cannot move a node into its own subtree")

	// ErrTransaction wraps any storage failure during a mutation. The
	// mutation's transaction has been rolled back.
	ErrTransaction = errors.New("tree transaction failed")

	ErrInvalidConfig   = errors.New("invalid nested set config")
	ErrInvalidPosition = errors.New("invalid position")

	// ErrCorrupt is returned by Verify when the stored intervals break the
	// nested set invariants.
	ErrCorrupt = errors.New("nested set is corrupt")
)

func notFound(id int64) error {
	return fmt.Errorf("%w: id %d", ErrNotFound, id)
}

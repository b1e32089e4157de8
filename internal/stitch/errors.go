package stitch

import (
	"errors"
	"fmt"

	"github.com/weft-db/weft/internal/schema"
)

// ErrQueryFailed tags every batch-query failure surfaced by the stitcher
var ErrQueryFailed = errors.New("include query failed")

// QueryError wraps an underlying data-store failure with the plan position it
// occurred at. The stitcher never retries; the error aborts the invocation.
type QueryError struct {
	Entity   string
	Relation string
	Depth    int
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("relation %q of %q at depth %d: %v", e.Relation, e.Entity, e.Depth, e.Err)
}

func (e *QueryError) Unwrap() []error {
	return []error{ErrQueryFailed, e.Err}
}

func errInvalidKind(kind schema.RelationKind) error {
	return fmt.Errorf("invalid relation kind %d", int(kind))
}

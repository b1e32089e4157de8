package include

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownRelation is returned when a spec references a relation that
	// is not declared on the entity at that level
	ErrUnknownRelation = errors.New("unknown relation")

	// ErrInvalidOption is returned when an include option fails validation
	ErrInvalidOption = errors.New("invalid include option")

	// ErrInvalidSpec is returned when a spec value has an unexpected shape
	ErrInvalidSpec = errors.New("invalid include spec")
)

// UnknownRelationError identifies the entity and key that failed resolution.
// The whole compile fails; no partial plan is produced.
type UnknownRelationError struct {
	Entity string
	Key    string
}

func (e *UnknownRelationError) Error() string {
	return fmt.Sprintf("unknown relation %q on entity %q", e.Key, e.Entity)
}

func (e *UnknownRelationError) Unwrap() error { return ErrUnknownRelation }

// InvalidOptionError identifies a malformed option on a relation node
type InvalidOptionError struct {
	Entity   string
	Relation string
	Option   string
	Reason   string
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("invalid option %q on relation %q of %q: %s", e.Option, e.Relation, e.Entity, e.Reason)
}

func (e *InvalidOptionError) Unwrap() error { return ErrInvalidOption }

// Package include compiles caller-supplied nested include requests into
// validated, depth-bounded execution plans. Compilation is pure: it resolves
// every key against the relation graph and performs no I/O.
package include

import "github.com/weft-db/weft/internal/schema"

// Order is the sort direction of a relation's ordering option
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Options are the normalized per-relation options of a plan node. Nil
// pointers mean the caller did not set the option.
type Options struct {
	Limit   *int
	Offset  *int
	OrderBy string
	Order   Order
	Select  []string
	Exclude []string
}

// Node is one resolved relation in a plan tree. Entity is the source entity
// the relation was resolved on, kept for error reporting.
type Node struct {
	Entity   string
	Relation *schema.Relation
	Options  Options
	Depth    int
	Children []*Node
}

// Plan is the compiled form of an include spec: a tree isomorphic to the
// validated request where every key is resolved to a relation descriptor.
// Plans are immutable after compilation.
type Plan struct {
	Entity string
	Nodes  []*Node
}

// IsEmpty returns true when the plan requests no relations
func (p *Plan) IsEmpty() bool {
	return p == nil || len(p.Nodes) == 0
}

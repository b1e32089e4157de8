// Package schema defines the entity and relation metadata that the include
// engine resolves requests against. A Graph is built once at process start
// from declarative definitions and is read-only afterwards.
package schema

import "fmt"

// RelationKind represents the cardinality of a relation
type RelationKind int

const (
	// KindOne means the source row holds a foreign key referencing exactly
	// one target row
	KindOne RelationKind = iota
	// KindMany means target rows hold a foreign key referencing the source row
	KindMany
	// KindManyViaJoin means source and target are connected through a join
	// entity holding one foreign key to each side
	KindManyViaJoin
)

// String returns the string representation of the relation kind
func (k RelationKind) String() string {
	switch k {
	case KindOne:
		return "one"
	case KindMany:
		return "many"
	case KindManyViaJoin:
		return "many_via_join"
	default:
		return "unknown"
	}
}

// ParseRelationKind converts a string to a RelationKind
func ParseRelationKind(s string) (RelationKind, error) {
	switch s {
	case "one":
		return KindOne, nil
	case "many":
		return KindMany, nil
	case "many_via_join":
		return KindManyViaJoin, nil
	default:
		return 0, fmt.Errorf("unknown relation kind: %s", s)
	}
}

// Relation is a directed named edge from a source entity to a target entity.
//
// Key semantics per kind:
//   - one: SourceKey is the foreign-key column on the source rows, TargetKey
//     is the referenced column on the target (usually its primary key).
//   - many: SourceKey is the column on the source rows the children point at
//     (usually the primary key), TargetKey is the foreign-key column on the
//     target rows.
//   - many_via_join: SourceKey/TargetKey as for many, plus the join entity's
//     two foreign-key columns.
type Relation struct {
	Name   string
	Kind   RelationKind
	Target string

	SourceKey string
	TargetKey string

	// many_via_join only
	JoinEntity    string
	JoinSourceKey string
	JoinTargetKey string

	// JoinUnique collapses duplicate join rows pointing at the same target
	// under the same parent. Off by default: duplicates are preserved.
	JoinUnique bool
}

// Entity represents a named row collection backed by a table
type Entity struct {
	Name       string
	Table      string
	PrimaryKey string
	Columns    []string
	Relations  map[string]*Relation

	columnSet map[string]bool
}

// NewEntity creates an entity with the id primary-key default
func NewEntity(name, table string, columns ...string) *Entity {
	return &Entity{
		Name:       name,
		Table:      table,
		PrimaryKey: "id",
		Columns:    columns,
		Relations:  make(map[string]*Relation),
	}
}

// WithPrimaryKey overrides the primary-key column
func (e *Entity) WithPrimaryKey(column string) *Entity {
	e.PrimaryKey = column
	return e
}

// AddRelation declares a named relation on the entity
func (e *Entity) AddRelation(rel *Relation) *Entity {
	e.Relations[rel.Name] = rel
	return e
}

// HasColumn returns true if the entity declares the given column
func (e *Entity) HasColumn(name string) bool {
	if e.columnSet == nil {
		e.columnSet = make(map[string]bool, len(e.Columns))
		for _, c := range e.Columns {
			e.columnSet[c] = true
		}
	}
	return e.columnSet[name]
}

package schema

import (
	"fmt"
	"sort"
)

// Graph is the immutable relation registry the compiler and stitcher resolve
// against. Build validates the declarations once; afterwards the graph only
// answers lookups.
type Graph struct {
	entities map[string]*Entity
}

// Build constructs a Graph from entity declarations, validating that every
// relation references a known entity and that all key columns are declared
func Build(entities []*Entity) (*Graph, error) {
	g := &Graph{entities: make(map[string]*Entity, len(entities))}

	for _, entity := range entities {
		if entity.Name == "" {
			return nil, fmt.Errorf("entity with empty name")
		}
		if _, exists := g.entities[entity.Name]; exists {
			return nil, fmt.Errorf("entity %s declared twice", entity.Name)
		}
		if entity.Table == "" {
			entity.Table = entity.Name
		}
		if entity.PrimaryKey == "" {
			entity.PrimaryKey = "id"
		}
		if !entity.HasColumn(entity.PrimaryKey) {
			return nil, fmt.Errorf("entity %s: primary key column %s not declared", entity.Name, entity.PrimaryKey)
		}
		g.entities[entity.Name] = entity
	}

	// Relations can reference entities declared later, so validate after all
	// entities are registered
	for _, entity := range g.entities {
		for name, rel := range entity.Relations {
			if rel.Name == "" {
				rel.Name = name
			}
			if err := g.validateRelation(entity, rel); err != nil {
				return nil, fmt.Errorf("entity %s, relation %s: %w", entity.Name, name, err)
			}
		}
	}

	return g, nil
}

func (g *Graph) validateRelation(source *Entity, rel *Relation) error {
	target, ok := g.entities[rel.Target]
	if !ok {
		return fmt.Errorf("target entity %s not declared", rel.Target)
	}

	switch rel.Kind {
	case KindOne:
		if rel.SourceKey == "" {
			return fmt.Errorf("one relation requires a source key column")
		}
		if rel.TargetKey == "" {
			rel.TargetKey = target.PrimaryKey
		}
	case KindMany:
		if rel.SourceKey == "" {
			rel.SourceKey = source.PrimaryKey
		}
		if rel.TargetKey == "" {
			return fmt.Errorf("many relation requires a target foreign-key column")
		}
	case KindManyViaJoin:
		if rel.JoinEntity == "" {
			return fmt.Errorf("many_via_join relation requires a join entity")
		}
		join, ok := g.entities[rel.JoinEntity]
		if !ok {
			return fmt.Errorf("join entity %s not declared", rel.JoinEntity)
		}
		if rel.SourceKey == "" {
			rel.SourceKey = source.PrimaryKey
		}
		if rel.TargetKey == "" {
			rel.TargetKey = target.PrimaryKey
		}
		if rel.JoinSourceKey == "" || rel.JoinTargetKey == "" {
			return fmt.Errorf("many_via_join relation requires both join key columns")
		}
		if !join.HasColumn(rel.JoinSourceKey) {
			return fmt.Errorf("join column %s not declared on %s", rel.JoinSourceKey, join.Name)
		}
		if !join.HasColumn(rel.JoinTargetKey) {
			return fmt.Errorf("join column %s not declared on %s", rel.JoinTargetKey, join.Name)
		}
	default:
		return fmt.Errorf("unknown relation kind: %d", rel.Kind)
	}

	if !source.HasColumn(rel.SourceKey) {
		return fmt.Errorf("source key column %s not declared on %s", rel.SourceKey, source.Name)
	}
	if !target.HasColumn(rel.TargetKey) {
		return fmt.Errorf("target key column %s not declared on %s", rel.TargetKey, target.Name)
	}

	return nil
}

// Entity retrieves an entity by name
func (g *Graph) Entity(name string) (*Entity, bool) {
	entity, ok := g.entities[name]
	return entity, ok
}

// Lookup resolves a named relation of an entity. The second return is false
// when either the entity or the relation is unknown.
func (g *Graph) Lookup(entity, relationName string) (*Relation, bool) {
	e, ok := g.entities[entity]
	if !ok {
		return nil, false
	}
	rel, ok := e.Relations[relationName]
	return rel, ok
}

// Entities returns the declared entity names in sorted order
func (g *Graph) Entities() []string {
	names := make([]string, 0, len(g.entities))
	for name := range g.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

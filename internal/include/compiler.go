package include

import (
	"fmt"
	"math"
	"sort"

	"github.com/weft-db/weft/internal/schema"
)

// DefaultMaxDepth bounds include nesting when the deployment does not
// configure its own limit
const DefaultMaxDepth = 5

// Compile validates a raw include spec against the relation graph and
// produces a Plan rooted at the given entity.
//
// An unknown relation key anywhere in the spec fails the entire compile.
// Nesting past maxDepth is pruned silently: deep client requests stay
// forward-compatible with shallower server configuration.
func Compile(graph *schema.Graph, rootEntity string, raw map[string]any, maxDepth int) (*Plan, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if _, ok := graph.Entity(rootEntity); !ok {
		return nil, fmt.Errorf("%w: unknown entity %q", ErrInvalidSpec, rootEntity)
	}

	nodes, err := compileLevel(graph, rootEntity, raw, 0, maxDepth)
	if err != nil {
		return nil, err
	}
	return &Plan{Entity: rootEntity, Nodes: nodes}, nil
}

func compileLevel(graph *schema.Graph, entity string, raw map[string]any, depth, maxDepth int) ([]*Node, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	// Sorted keys keep compilation deterministic for identical inputs
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	nodes := make([]*Node, 0, len(keys))
	for _, key := range keys {
		rel, ok := graph.Lookup(entity, key)
		if !ok {
			return nil, &UnknownRelationError{Entity: entity, Key: key}
		}

		node := &Node{Entity: entity, Relation: rel, Depth: depth}

		switch value := raw[key].(type) {
		case bool:
			if !value {
				continue
			}
		case map[string]any:
			opts, nested, err := parseOptions(graph, entity, rel, value)
			if err != nil {
				return nil, err
			}
			node.Options = opts
			// Depth exceeded is policy, not an error: the nested include
			// is dropped without comment
			if nested != nil && depth+1 < maxDepth {
				children, err := compileLevel(graph, rel.Target, nested, depth+1, maxDepth)
				if err != nil {
					return nil, err
				}
				node.Children = children
			}
		default:
			return nil, fmt.Errorf("%w: relation %q of %q must be true or an options object", ErrInvalidSpec, key, entity)
		}

		nodes = append(nodes, node)
	}

	return nodes, nil
}

// parseOptions normalizes an options object, returning the nested raw include
// map when present
func parseOptions(graph *schema.Graph, entity string, rel *schema.Relation, raw map[string]any) (Options, map[string]any, error) {
	var opts Options
	var nested map[string]any

	target, _ := graph.Entity(rel.Target)

	fail := func(option, reason string) (Options, map[string]any, error) {
		return Options{}, nil, &InvalidOptionError{Entity: entity, Relation: rel.Name, Option: option, Reason: reason}
	}

	for key, value := range raw {
		switch key {
		case "include":
			nestedMap, ok := value.(map[string]any)
			if !ok {
				return fail(key, "must be an object")
			}
			nested = nestedMap
		case "limit":
			n, ok := toInt(value)
			if !ok || n <= 0 {
				return fail(key, "must be a positive integer")
			}
			opts.Limit = &n
		case "offset":
			n, ok := toInt(value)
			if !ok || n < 0 {
				return fail(key, "must be a nonnegative integer")
			}
			opts.Offset = &n
		case "orderBy":
			column, ok := value.(string)
			if !ok {
				return fail(key, "must be a column name")
			}
			if !target.HasColumn(column) {
				return fail(key, fmt.Sprintf("column %q not declared on %q", column, target.Name))
			}
			opts.OrderBy = column
		case "order":
			direction, ok := value.(string)
			if !ok || (direction != string(OrderAsc) && direction != string(OrderDesc)) {
				return fail(key, `must be "asc" or "desc"`)
			}
			opts.Order = Order(direction)
		case "select":
			columns, err := toColumnList(target, value)
			if err != nil {
				return fail(key, err.Error())
			}
			opts.Select = columns
		case "exclude":
			columns, err := toColumnList(target, value)
			if err != nil {
				return fail(key, err.Error())
			}
			opts.Exclude = columns
		default:
			return fail(key, "unrecognized option")
		}
	}

	if opts.Order != "" && opts.OrderBy == "" {
		return fail("order", "requires orderBy")
	}
	if opts.OrderBy != "" && opts.Order == "" {
		opts.Order = OrderAsc
	}

	return opts, nested, nil
}

// toInt accepts the integer shapes a decoded JSON value can carry
func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}

func toColumnList(target *schema.Entity, value any) ([]string, error) {
	items, ok := value.([]any)
	if !ok {
		if strs, ok := value.([]string); ok {
			items = make([]any, len(strs))
			for i, s := range strs {
				items[i] = s
			}
		} else {
			return nil, fmt.Errorf("must be an array of column names")
		}
	}

	columns := make([]string, 0, len(items))
	for _, item := range items {
		column, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("must be an array of column names")
		}
		if !target.HasColumn(column) {
			return nil, fmt.Errorf("column %q not declared on %q", column, target.Name)
		}
		columns = append(columns, column)
	}
	return columns, nil
}

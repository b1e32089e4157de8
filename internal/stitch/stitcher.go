// Package stitch executes compiled include plans as batched queries,
// attaching related rows onto the parent rows that reference them. Every
// relation of a plan level resolves in one or two queries regardless of how
// many parent rows there are.
package stitch

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/weft-db/weft/internal/db"
	"github.com/weft-db/weft/internal/include"
	"github.com/weft-db/weft/internal/schema"
)

// DefaultFanout bounds concurrent sibling fetches when the caller does not
// configure a cap
const DefaultFanout = 4

// Stitcher resolves include plans against the query backend
type Stitcher struct {
	db     db.Querier
	graph  *schema.Graph
	logger *zap.Logger
	fanout int
}

// Option configures a Stitcher
type Option func(*Stitcher)

// WithLogger injects the logger used for batch-query diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(s *Stitcher) { s.logger = logger }
}

// WithFanout caps how many sibling relation fetches run concurrently. The
// engine never assumes unbounded database connections.
func WithFanout(n int) Option {
	return func(s *Stitcher) {
		if n > 0 {
			s.fanout = n
		}
	}
}

// NewStitcher creates a stitcher over the given query backend and graph
func NewStitcher(querier db.Querier, graph *schema.Graph, opts ...Option) *Stitcher {
	s := &Stitcher{
		db:     querier,
		graph:  graph,
		logger: zap.NewNop(),
		fanout: DefaultFanout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stitch resolves the plan against the input rows, mutating each row with one
// additional key per resolved relation. It proceeds breadth-first: all
// sibling relations of a level are attached before any nested plan descends.
func (s *Stitcher) Stitch(ctx context.Context, rows []map[string]interface{}, plan *include.Plan) error {
	if plan.IsEmpty() || len(rows) == 0 {
		return nil
	}
	return s.stitchLevel(ctx, rows, plan.Nodes)
}

func (s *Stitcher) stitchLevel(ctx context.Context, rows []map[string]interface{}, nodes []*include.Node) error {
	// Sibling fetches fan out, but each goroutine only reads the parent rows
	// and computes its attachments into a private slice. Map writes happen
	// sequentially after Wait: concurrent map access is unsafe even at
	// disjoint keys. A zero-value errgroup lets in-flight siblings finish
	// before the first failure surfaces.
	var group errgroup.Group
	group.SetLimit(s.fanout)

	attachments := make([][]interface{}, len(nodes))
	for i, node := range nodes {
		i, node := i, node
		group.Go(func() error {
			values, err := s.loadRelation(ctx, rows, node)
			if err != nil {
				return err
			}
			attachments[i] = values
			return nil
		})
	}
	err := group.Wait()

	// Siblings that completed stay attached even when another one failed,
	// so degrade mode returns everything that did resolve
	for i, node := range nodes {
		if attachments[i] == nil {
			continue
		}
		for j, row := range rows {
			row[node.Relation.Name] = attachments[i][j]
		}
	}
	if err != nil {
		return err
	}

	// Child keys are only known once this level's batches completed, so
	// descent is sequential across levels
	for _, node := range nodes {
		if len(node.Children) == 0 {
			continue
		}
		childRows := collectChildRows(rows, node)
		if len(childRows) == 0 {
			continue
		}
		if err := s.stitchLevel(ctx, childRows, node.Children); err != nil {
			return err
		}
	}

	return nil
}

// loadRelation computes the per-row attachment values for one relation
// without touching the rows themselves
func (s *Stitcher) loadRelation(ctx context.Context, rows []map[string]interface{}, node *include.Node) ([]interface{}, error) {
	switch node.Relation.Kind {
	case schema.KindOne:
		return s.loadOne(ctx, rows, node)
	case schema.KindMany:
		return s.loadMany(ctx, rows, node)
	case schema.KindManyViaJoin:
		return s.loadManyViaJoin(ctx, rows, node)
	default:
		return nil, &QueryError{
			Entity:   node.Entity,
			Relation: node.Relation.Name,
			Depth:    node.Depth,
			Err:      errInvalidKind(node.Relation.Kind),
		}
	}
}

// collectChildRows flattens the rows attached under a node across all
// parents, so the nested plan level stitches into them in one pass
func collectChildRows(rows []map[string]interface{}, node *include.Node) []map[string]interface{} {
	var children []map[string]interface{}

	for _, row := range rows {
		attached, ok := row[node.Relation.Name]
		if !ok || attached == nil {
			continue
		}
		switch value := attached.(type) {
		case map[string]interface{}:
			children = append(children, value)
		case []map[string]interface{}:
			children = append(children, value...)
		}
	}

	return children
}

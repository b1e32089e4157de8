package stitch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/weft-db/weft/internal/db"
	"github.com/weft-db/weft/internal/include"
	"github.com/weft-db/weft/internal/schema"
)

// loadOne resolves a one relation with a single batched query.
// Example: books -> author
//   - Collect the distinct author_id values across all book rows
//   - Single query: SELECT * FROM authors WHERE id = ANY($1)
//   - Every book's attachment is the matching author or nil
func (s *Stitcher) loadOne(ctx context.Context, rows []map[string]interface{}, node *include.Node) ([]interface{}, error) {
	rel := node.Relation
	target, err := s.targetEntity(node)
	if err != nil {
		return nil, err
	}

	// Every parent receives a value: the matching row or nil, never absent
	attachments := make([]interface{}, len(rows))

	keys := distinctKeys(rows, rel.SourceKey)
	if len(keys) == 0 {
		return attachments, nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY($1)",
		projectionColumns(target, node.Options, rel.TargetKey),
		pq.QuoteIdentifier(target.Table),
		pq.QuoteIdentifier(rel.TargetKey))

	results, err := s.queryRows(ctx, node, query, pq.Array(keys))
	if err != nil {
		return nil, err
	}

	index := make(map[string]map[string]interface{}, len(results))
	for _, record := range results {
		if key, ok := keyString(record[rel.TargetKey]); ok {
			index[key] = record
		}
	}

	for i, row := range rows {
		key, ok := keyString(row[rel.SourceKey])
		if !ok {
			continue
		}
		if match, found := index[key]; found {
			attachments[i] = match
		}
	}

	return attachments, nil
}

// loadMany resolves a many relation with a single batched query.
// Example: authors -> books
//   - Collect the distinct author ids
//   - Single query: SELECT * FROM books WHERE author_id = ANY($1)
//     ordered by (author_id, orderBy)
//   - Group by author_id, then window each group with offset/limit:
//     pagination means "first N children per parent", never a global cut
func (s *Stitcher) loadMany(ctx context.Context, rows []map[string]interface{}, node *include.Node) ([]interface{}, error) {
	rel := node.Relation
	target, err := s.targetEntity(node)
	if err != nil {
		return nil, err
	}

	keys := distinctKeys(rows, rel.SourceKey)
	if len(keys) == 0 {
		return emptyAttachments(len(rows)), nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY($1)",
		projectionColumns(target, node.Options, rel.TargetKey),
		pq.QuoteIdentifier(target.Table),
		pq.QuoteIdentifier(rel.TargetKey))
	if node.Options.OrderBy != "" {
		query += fmt.Sprintf(" ORDER BY %s, %s %s",
			pq.QuoteIdentifier(rel.TargetKey),
			pq.QuoteIdentifier(node.Options.OrderBy),
			strings.ToUpper(string(node.Options.Order)))
	}

	results, err := s.queryRows(ctx, node, query, pq.Array(keys))
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]map[string]interface{})
	for _, record := range results {
		if key, ok := keyString(record[rel.TargetKey]); ok {
			grouped[key] = append(grouped[key], record)
		}
	}

	// Parents with no matches get an empty slice, never nil or absent
	attachments := make([]interface{}, len(rows))
	for i, row := range rows {
		var children []map[string]interface{}
		if key, ok := keyString(row[rel.SourceKey]); ok {
			children = grouped[key]
		}
		attachments[i] = applyWindow(children, node.Options)
	}

	return attachments, nil
}

// loadManyViaJoin resolves a many_via_join relation with two batched queries.
// Example: books -> tags through book_tags
//   - Query 1 projects the (book_id, tag_id) pairs for the distinct book ids
//   - Query 2 fetches the tags whose id appears in those pairs
//   - Pairs are stitched to targets preserving duplicates (unless the
//     relation is marked unique), then grouped, ordered and windowed per
//     parent like a many relation
func (s *Stitcher) loadManyViaJoin(ctx context.Context, rows []map[string]interface{}, node *include.Node) ([]interface{}, error) {
	rel := node.Relation
	target, err := s.targetEntity(node)
	if err != nil {
		return nil, err
	}
	join, ok := s.graph.Entity(rel.JoinEntity)
	if !ok {
		return nil, &QueryError{
			Entity:   node.Entity,
			Relation: rel.Name,
			Depth:    node.Depth,
			Err:      fmt.Errorf("unknown join entity %q", rel.JoinEntity),
		}
	}

	keys := distinctKeys(rows, rel.SourceKey)
	if len(keys) == 0 {
		return emptyAttachments(len(rows)), nil
	}

	pairQuery := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = ANY($1)",
		pq.QuoteIdentifier(rel.JoinSourceKey),
		pq.QuoteIdentifier(rel.JoinTargetKey),
		pq.QuoteIdentifier(join.Table),
		pq.QuoteIdentifier(rel.JoinSourceKey))

	pairs, err := s.queryRows(ctx, node, pairQuery, pq.Array(keys))
	if err != nil {
		return nil, err
	}

	if len(pairs) == 0 {
		return emptyAttachments(len(rows)), nil
	}

	var targetKeys []interface{}
	seenTargets := make(map[string]bool)
	for _, pair := range pairs {
		key, ok := keyString(pair[rel.JoinTargetKey])
		if !ok || seenTargets[key] {
			continue
		}
		seenTargets[key] = true
		targetKeys = append(targetKeys, pair[rel.JoinTargetKey])
	}

	targetQuery := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY($1)",
		projectionColumns(target, node.Options, rel.TargetKey),
		pq.QuoteIdentifier(target.Table),
		pq.QuoteIdentifier(rel.TargetKey))

	results, err := s.queryRows(ctx, node, targetQuery, pq.Array(targetKeys))
	if err != nil {
		return nil, err
	}

	index := make(map[string]map[string]interface{}, len(results))
	for _, record := range results {
		if key, ok := keyString(record[rel.TargetKey]); ok {
			index[key] = record
		}
	}

	// Stitch pairs to targets in join-row order. Duplicate pairs keep their
	// duplicates unless the relation is marked unique; pairs whose target is
	// gone resolve to nothing.
	grouped := make(map[string][]map[string]interface{})
	attached := make(map[string]map[string]bool)
	for _, pair := range pairs {
		source, ok := keyString(pair[rel.JoinSourceKey])
		if !ok {
			continue
		}
		targetKey, ok := keyString(pair[rel.JoinTargetKey])
		if !ok {
			continue
		}
		record, found := index[targetKey]
		if !found {
			continue
		}
		if rel.JoinUnique {
			if attached[source] == nil {
				attached[source] = make(map[string]bool)
			}
			if attached[source][targetKey] {
				continue
			}
			attached[source][targetKey] = true
		}
		grouped[source] = append(grouped[source], record)
	}

	if node.Options.OrderBy != "" {
		for _, group := range grouped {
			sortRows(group, node.Options.OrderBy, node.Options.Order)
		}
	}

	attachments := make([]interface{}, len(rows))
	for i, row := range rows {
		var children []map[string]interface{}
		if key, ok := keyString(row[rel.SourceKey]); ok {
			children = grouped[key]
		}
		attachments[i] = applyWindow(children, node.Options)
	}

	return attachments, nil
}

// emptyAttachments gives every parent the empty-slice default of a
// collection relation
func emptyAttachments(n int) []interface{} {
	attachments := make([]interface{}, n)
	for i := range attachments {
		attachments[i] = []map[string]interface{}{}
	}
	return attachments
}

// queryRows runs one batch query and scans it into maps, tagging failures
// with the plan position
func (s *Stitcher) queryRows(ctx context.Context, node *include.Node, query string, args ...interface{}) ([]map[string]interface{}, error) {
	s.logger.Debug("executing batch query",
		zap.String("entity", node.Entity),
		zap.String("relation", node.Relation.Name),
		zap.Int("depth", node.Depth),
		zap.String("query", query))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &QueryError{Entity: node.Entity, Relation: node.Relation.Name, Depth: node.Depth, Err: err}
	}
	defer rows.Close()

	results, err := db.ScanRows(rows)
	if err != nil {
		return nil, &QueryError{Entity: node.Entity, Relation: node.Relation.Name, Depth: node.Depth, Err: err}
	}
	return results, nil
}

func (s *Stitcher) targetEntity(node *include.Node) (*schema.Entity, error) {
	target, ok := s.graph.Entity(node.Relation.Target)
	if !ok {
		return nil, &QueryError{
			Entity:   node.Entity,
			Relation: node.Relation.Name,
			Depth:    node.Depth,
			Err:      fmt.Errorf("unknown entity %q", node.Relation.Target),
		}
	}
	return target, nil
}

// distinctKeys collects the distinct non-nil values of a column across rows,
// preserving first-seen order
func distinctKeys(rows []map[string]interface{}, column string) []interface{} {
	var keys []interface{}
	seen := make(map[string]bool)

	for _, row := range rows {
		key, ok := keyString(row[column])
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, row[column])
	}

	return keys
}

// projectionColumns builds the SQL column list honoring select/exclude while
// always keeping the key columns stitching depends on
func projectionColumns(target *schema.Entity, opts include.Options, keep ...string) string {
	if len(opts.Select) == 0 && len(opts.Exclude) == 0 {
		return "*"
	}

	base := opts.Select
	if len(base) == 0 {
		base = target.Columns
	}

	excluded := make(map[string]bool, len(opts.Exclude))
	for _, column := range opts.Exclude {
		excluded[column] = true
	}

	columns := make([]string, 0, len(base)+len(keep))
	added := make(map[string]bool)
	for _, column := range keep {
		if !added[column] {
			added[column] = true
			columns = append(columns, pq.QuoteIdentifier(column))
		}
	}
	for _, column := range base {
		if excluded[column] || added[column] {
			continue
		}
		added[column] = true
		columns = append(columns, pq.QuoteIdentifier(column))
	}

	return strings.Join(columns, ", ")
}

// keyString converts a key value to its index form. The second return is
// false only for nil keys.
func keyString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case int:
		return strconv.Itoa(v), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	case []byte:
		return string(v), true
	default:
		return fmt.Sprintf("%v", v), true
	}
}

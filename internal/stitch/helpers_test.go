package stitch

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/weft-db/weft/internal/include"
	"github.com/weft-db/weft/internal/schema"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, mock
}

func setupTestGraph(t *testing.T) *schema.Graph {
	t.Helper()

	authors := schema.NewEntity("authors", "authors", "id", "name")
	books := schema.NewEntity("books", "books", "id", "title", "author_id", "published_at")
	tags := schema.NewEntity("tags", "tags", "id", "name")
	bookTags := schema.NewEntity("book_tags", "book_tags", "id", "book_id", "tag_id")

	authors.AddRelation(&schema.Relation{Name: "books", Kind: schema.KindMany, Target: "books", TargetKey: "author_id"})
	books.AddRelation(&schema.Relation{Name: "author", Kind: schema.KindOne, Target: "authors", SourceKey: "author_id"})
	books.AddRelation(&schema.Relation{
		Name: "tags", Kind: schema.KindManyViaJoin, Target: "tags",
		JoinEntity: "book_tags", JoinSourceKey: "book_id", JoinTargetKey: "tag_id",
	})
	books.AddRelation(&schema.Relation{
		Name: "uniqueTags", Kind: schema.KindManyViaJoin, Target: "tags",
		JoinEntity: "book_tags", JoinSourceKey: "book_id", JoinTargetKey: "tag_id",
		JoinUnique: true,
	})

	graph, err := schema.Build([]*schema.Entity{authors, books, tags, bookTags})
	require.NoError(t, err)
	return graph
}

func compilePlan(t *testing.T, graph *schema.Graph, entity string, raw map[string]any) *include.Plan {
	t.Helper()
	plan, err := include.Compile(graph, entity, raw, include.DefaultMaxDepth)
	require.NoError(t, err)
	return plan
}

func intPtr(n int) *int { return &n }

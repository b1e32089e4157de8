package stitch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// authors -> books -> tags, two levels of nesting: author A has two books
// with tags, author B has none
func TestStitchNested(t *testing.T) {
	conn, mock := setupTestDB(t)
	graph := setupTestGraph(t)
	stitcher := NewStitcher(conn, graph)

	authors := []map[string]interface{}{
		{"id": "author-A", "name": "Ann"},
		{"id": "author-B", "name": "Ben"},
	}

	mock.ExpectQuery(`SELECT \* FROM "books" WHERE "author_id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "title", "author_id"}).
				AddRow("book-1", "First", "author-A").
				AddRow("book-2", "Second", "author-A"),
		)
	mock.ExpectQuery(`SELECT "book_id", "tag_id" FROM "book_tags" WHERE "book_id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"book_id", "tag_id"}).
				AddRow("book-1", "tag-1").
				AddRow("book-2", "tag-1"),
		)
	mock.ExpectQuery(`SELECT \* FROM "tags" WHERE "id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("tag-1", "fiction"))

	plan := compilePlan(t, graph, "authors", map[string]any{
		"books": map[string]any{"include": map[string]any{"tags": true}},
	})
	require.NoError(t, stitcher.Stitch(context.Background(), authors, plan))

	annBooks := authors[0]["books"].([]map[string]interface{})
	require.Len(t, annBooks, 2)
	for _, book := range annBooks {
		tags := book["tags"].([]map[string]interface{})
		require.Len(t, tags, 1)
		assert.Equal(t, "fiction", tags[0]["name"])
	}

	benBooks := authors[1]["books"].([]map[string]interface{})
	assert.Empty(t, benBooks)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStitchSiblingsConcurrently(t *testing.T) {
	conn, mock := setupTestDB(t)
	graph := setupTestGraph(t)
	stitcher := NewStitcher(conn, graph, WithFanout(2))

	// sibling fetches may land in any order
	mock.MatchExpectationsInOrder(false)

	books := []map[string]interface{}{
		{"id": "book-1", "title": "First", "author_id": "author-1"},
	}

	mock.ExpectQuery(`SELECT \* FROM "authors" WHERE "id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("author-1", "Alice"))
	mock.ExpectQuery(`SELECT "book_id", "tag_id" FROM "book_tags"`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"book_id", "tag_id"}).AddRow("book-1", "tag-1"))
	mock.ExpectQuery(`SELECT \* FROM "tags"`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("tag-1", "fiction"))

	plan := compilePlan(t, graph, "books", map[string]any{"author": true, "tags": true})
	require.NoError(t, stitcher.Stitch(context.Background(), books, plan))

	assert.NotNil(t, books[0]["author"])
	assert.Len(t, books[0]["tags"].([]map[string]interface{}), 1)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// Many parent rows with two concurrent siblings: the goroutines must never
// touch the row maps themselves, or the race detector trips on the shared
// map headers
func TestStitchSiblingFanoutManyRows(t *testing.T) {
	conn, mock := setupTestDB(t)
	graph := setupTestGraph(t)
	stitcher := NewStitcher(conn, graph, WithFanout(2))

	mock.MatchExpectationsInOrder(false)

	const rowCount = 500
	books := make([]map[string]interface{}, rowCount)
	pairRows := sqlmock.NewRows([]string{"book_id", "tag_id"})
	for i := range books {
		bookID := fmt.Sprintf("book-%d", i)
		books[i] = map[string]interface{}{
			"id":        bookID,
			"title":     fmt.Sprintf("Title %d", i),
			"author_id": fmt.Sprintf("author-%d", i%10),
		}
		pairRows.AddRow(bookID, fmt.Sprintf("tag-%d", i%5))
	}

	authorRows := sqlmock.NewRows([]string{"id", "name"})
	for i := 0; i < 10; i++ {
		authorRows.AddRow(fmt.Sprintf("author-%d", i), fmt.Sprintf("Author %d", i))
	}
	tagRows := sqlmock.NewRows([]string{"id", "name"})
	for i := 0; i < 5; i++ {
		tagRows.AddRow(fmt.Sprintf("tag-%d", i), fmt.Sprintf("genre-%d", i))
	}

	mock.ExpectQuery(`SELECT \* FROM "authors" WHERE "id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(authorRows)
	mock.ExpectQuery(`SELECT "book_id", "tag_id" FROM "book_tags"`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(pairRows)
	mock.ExpectQuery(`SELECT \* FROM "tags"`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(tagRows)

	plan := compilePlan(t, graph, "books", map[string]any{"author": true, "tags": true})
	require.NoError(t, stitcher.Stitch(context.Background(), books, plan))

	for i, book := range books {
		author := book["author"].(map[string]interface{})
		assert.Equal(t, fmt.Sprintf("author-%d", i%10), author["id"])
		tags := book["tags"].([]map[string]interface{})
		require.Len(t, tags, 1)
		assert.Equal(t, fmt.Sprintf("tag-%d", i%5), tags[0]["id"])
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

// When one sibling fails, the siblings that completed stay attached so the
// degrade path still returns everything that did resolve
func TestStitchFailedSiblingKeepsCompleted(t *testing.T) {
	conn, mock := setupTestDB(t)
	graph := setupTestGraph(t)
	stitcher := NewStitcher(conn, graph, WithFanout(2))

	mock.MatchExpectationsInOrder(false)

	books := []map[string]interface{}{
		{"id": "book-1", "title": "First", "author_id": "author-1"},
	}

	mock.ExpectQuery(`SELECT \* FROM "authors" WHERE "id" = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("author-1", "Alice"))
	mock.ExpectQuery(`SELECT "book_id", "tag_id" FROM "book_tags"`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(fmt.Errorf("connection reset"))

	plan := compilePlan(t, graph, "books", map[string]any{"author": true, "tags": true})
	err := stitcher.Stitch(context.Background(), books, plan)
	require.Error(t, err)

	var queryErr *QueryError
	require.True(t, errors.As(err, &queryErr))
	assert.Equal(t, "tags", queryErr.Relation)

	author, present := books[0]["author"].(map[string]interface{})
	require.True(t, present)
	assert.Equal(t, "Alice", author["name"])
	_, present = books[0]["tags"]
	assert.False(t, present)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStitchQueryErrorCarriesContext(t *testing.T) {
	conn, mock := setupTestDB(t)
	graph := setupTestGraph(t)
	stitcher := NewStitcher(conn, graph)

	authors := []map[string]interface{}{{"id": "author-1"}}

	mock.ExpectQuery(`SELECT \* FROM "books"`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(fmt.Errorf("connection reset"))

	plan := compilePlan(t, graph, "authors", map[string]any{"books": true})
	err := stitcher.Stitch(context.Background(), authors, plan)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueryFailed))

	var queryErr *QueryError
	require.True(t, errors.As(err, &queryErr))
	assert.Equal(t, "authors", queryErr.Entity)
	assert.Equal(t, "books", queryErr.Relation)
	assert.Equal(t, 0, queryErr.Depth)
	assert.Contains(t, queryErr.Err.Error(), "connection reset")
}

func TestStitchNestedQueryErrorDepth(t *testing.T) {
	conn, mock := setupTestDB(t)
	graph := setupTestGraph(t)
	stitcher := NewStitcher(conn, graph)

	authors := []map[string]interface{}{{"id": "author-1"}}

	mock.ExpectQuery(`SELECT \* FROM "books"`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "title", "author_id"}).
				AddRow("book-1", "First", "author-1"),
		)
	mock.ExpectQuery(`SELECT "book_id", "tag_id" FROM "book_tags"`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(fmt.Errorf("relation does not exist"))

	plan := compilePlan(t, graph, "authors", map[string]any{
		"books": map[string]any{"include": map[string]any{"tags": true}},
	})
	err := stitcher.Stitch(context.Background(), authors, plan)
	require.Error(t, err)

	var queryErr *QueryError
	require.True(t, errors.As(err, &queryErr))
	assert.Equal(t, "books", queryErr.Entity)
	assert.Equal(t, "tags", queryErr.Relation)
	assert.Equal(t, 1, queryErr.Depth)
}

func TestStitchIsIdempotent(t *testing.T) {
	conn, mock := setupTestDB(t)
	graph := setupTestGraph(t)
	stitcher := NewStitcher(conn, graph)

	makeAuthors := func() []map[string]interface{} {
		return []map[string]interface{}{{"id": "author-1", "name": "Alice"}}
	}
	expectBooks := func() {
		mock.ExpectQuery(`SELECT \* FROM "books"`).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(
				sqlmock.NewRows([]string{"id", "title", "author_id"}).
					AddRow("book-1", "First", "author-1"),
			)
	}

	plan := compilePlan(t, graph, "authors", map[string]any{"books": true})

	expectBooks()
	first := makeAuthors()
	require.NoError(t, stitcher.Stitch(context.Background(), first, plan))

	expectBooks()
	second := makeAuthors()
	require.NoError(t, stitcher.Stitch(context.Background(), second, plan))

	assert.Equal(t, first, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStitchEmptyInputs(t *testing.T) {
	conn, mock := setupTestDB(t)
	graph := setupTestGraph(t)
	stitcher := NewStitcher(conn, graph)

	plan := compilePlan(t, graph, "authors", map[string]any{"books": true})
	require.NoError(t, stitcher.Stitch(context.Background(), nil, plan))

	empty := compilePlan(t, graph, "authors", map[string]any{})
	rows := []map[string]interface{}{{"id": "author-1"}}
	require.NoError(t, stitcher.Stitch(context.Background(), rows, empty))
	_, present := rows[0]["books"]
	assert.False(t, present)

	assert.NoError(t, mock.ExpectationsWereMet())
}

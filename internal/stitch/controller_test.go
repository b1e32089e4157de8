package stitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerSuccess(t *testing.T) {
	conn, mock := setupTestDB(t)
	graph := setupTestGraph(t)
	controller := NewController(NewStitcher(conn, graph), ControllerConfig{})

	authors := []map[string]interface{}{{"id": "author-1", "name": "Alice"}}

	mock.ExpectQuery(`SELECT \* FROM "books"`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "title", "author_id"}).
				AddRow("book-1", "First", "author-1"),
		)

	plan := compilePlan(t, graph, "authors", map[string]any{"books": true})
	result, err := controller.Resolve(context.Background(), authors, plan)
	require.NoError(t, err)
	assert.Nil(t, result.IncludeError)
	assert.Len(t, result.Data, 1)

	// full success marshals as a bare array
	payload, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Equal(t, byte('['), payload[0])
}

func TestControllerDegrade(t *testing.T) {
	conn, mock := setupTestDB(t)
	graph := setupTestGraph(t)
	controller := NewController(NewStitcher(conn, graph), ControllerConfig{})

	authors := []map[string]interface{}{{"id": "author-1", "name": "Alice"}}

	mock.ExpectQuery(`SELECT \* FROM "books"`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(fmt.Errorf("connection reset"))

	plan := compilePlan(t, graph, "authors", map[string]any{"books": true})
	result, err := controller.Resolve(context.Background(), authors, plan)
	require.NoError(t, err)

	// root rows survive, with explicit notice
	assert.Len(t, result.Data, 1)
	require.NotNil(t, result.IncludeError)
	assert.Contains(t, result.IncludeError.Message, "books")
	assert.Nil(t, result.IncludeError.Detail)

	payload, err := json.Marshal(result)
	require.NoError(t, err)
	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &envelope))
	assert.Contains(t, envelope, "data")
	assert.Contains(t, envelope, "includeError")
}

func TestControllerDebugDetail(t *testing.T) {
	conn, mock := setupTestDB(t)
	graph := setupTestGraph(t)
	controller := NewController(NewStitcher(conn, graph), ControllerConfig{Debug: true})

	authors := []map[string]interface{}{{"id": "author-1"}}

	mock.ExpectQuery(`SELECT \* FROM "books"`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(fmt.Errorf("connection reset"))

	plan := compilePlan(t, graph, "authors", map[string]any{"books": true})
	result, err := controller.Resolve(context.Background(), authors, plan)
	require.NoError(t, err)

	detail := result.IncludeError.Detail
	require.NotNil(t, detail)
	assert.Equal(t, "authors", detail.Entity)
	assert.Equal(t, "books", detail.Relation)
	assert.Equal(t, 0, detail.Depth)
	assert.Contains(t, detail.Cause, "connection reset")
}

func TestControllerStrict(t *testing.T) {
	conn, mock := setupTestDB(t)
	graph := setupTestGraph(t)
	controller := NewController(NewStitcher(conn, graph), ControllerConfig{Strict: true})

	authors := []map[string]interface{}{{"id": "author-1"}}

	mock.ExpectQuery(`SELECT \* FROM "books"`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(fmt.Errorf("connection reset"))

	plan := compilePlan(t, graph, "authors", map[string]any{"books": true})
	result, err := controller.Resolve(context.Background(), authors, plan)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrQueryFailed))
}

func TestResultMarshalEmptyData(t *testing.T) {
	payload, err := json.Marshal(&Result{})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(payload))

	payload, err = json.Marshal(&Result{IncludeError: &IncludeError{Message: "broken"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data": [], "includeError": {"message": "broken"}}`, string(payload))
}

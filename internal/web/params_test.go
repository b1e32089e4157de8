package web

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIncludePaths(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected []string
	}{
		{"not present", "/authors", nil},
		{"single relation", "/authors?include=books", []string{"books"}},
		{"multiple relations", "/books?include=author,tags", []string{"author", "tags"}},
		{"nested path", "/authors?include=books.tags", []string{"books.tags"}},
		{"trims whitespace", "/authors?include=%20books%20,%20", []string{"books"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			assert.Equal(t, tt.expected, ParseIncludePaths(r))
		})
	}
}

func TestSpecFromPaths(t *testing.T) {
	spec := SpecFromPaths([]string{"books.tags", "books.author", "books"})
	assert.Equal(t, map[string]any{
		"books": map[string]any{
			"include": map[string]any{
				"tags":   true,
				"author": true,
			},
		},
	}, spec)

	assert.Equal(t, map[string]any{"author": true}, SpecFromPaths([]string{"author"}))
	assert.Empty(t, SpecFromPaths(nil))
}

func TestSpecFromPathsLeafDoesNotClobberNested(t *testing.T) {
	// a bare "books" after "books.tags" keeps the nested include
	spec := SpecFromPaths([]string{"books", "books.tags"})
	nested, ok := spec["books"].(map[string]any)
	assert.True(t, ok)
	assert.Contains(t, nested, "include")
}

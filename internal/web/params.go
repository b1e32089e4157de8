package web

import (
	"net/http"
	"strings"
)

// ParseIncludePaths parses the include query parameter into relation paths.
// Example: ?include=author,comments.author returns ["author", "comments.author"].
func ParseIncludePaths(r *http.Request) []string {
	include := r.URL.Query().Get("include")
	if include == "" {
		return nil
	}

	parts := strings.Split(include, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// SpecFromPaths converts dot-separated relation paths into the nested raw
// include shape the compiler consumes.
// Example: ["books.tags", "books.author"] becomes
// {"books": {"include": {"tags": true, "author": true}}}.
func SpecFromPaths(paths []string) map[string]any {
	spec := make(map[string]any)
	for _, path := range paths {
		parts := strings.Split(path, ".")
		addPath(spec, parts)
	}
	return spec
}

func addPath(spec map[string]any, parts []string) {
	head := parts[0]
	if head == "" {
		return
	}

	if len(parts) == 1 {
		if _, exists := spec[head]; !exists {
			spec[head] = true
		}
		return
	}

	var nested map[string]any
	if existing, ok := spec[head].(map[string]any); ok {
		if inc, ok := existing["include"].(map[string]any); ok {
			nested = inc
		} else {
			nested = make(map[string]any)
			existing["include"] = nested
		}
	} else {
		nested = make(map[string]any)
		spec[head] = map[string]any{"include": nested}
	}

	addPath(nested, parts[1:])
}

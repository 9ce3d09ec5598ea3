// Package utils holds the query-string helpers shared by the dashboard
// handlers.
package utils

import "strconv"

// Paging bounds for the history endpoint. The cap keeps a single dashboard
// refresh from pulling the whole archive in one page.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ParsePage turns raw page and page_size query values into usable paging
// numbers. Missing or unparseable values take the defaults, and the result is
// clamped to [1, MaxPageSize] for the size and >= 1 for the page.
func ParsePage(pageStr, sizeStr string) (page, pageSize int) {
	page = AtoiDefault(pageStr, DefaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = AtoiDefault(sizeStr, DefaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

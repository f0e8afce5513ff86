// Package search provides the paginated, token-chunked response shaping
// shared by the search_libraries and get_page_markdown MCP/HTTP surfaces
// (spec.md §4.6).
package search

// Page describes one page of a paginated result set.
type Page struct {
	Results    interface{} `json:"results"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	Total      int64       `json:"total"`
	TotalPages int         `json:"totalPages"`
}

// Paginate normalizes (page, limit) against a result set's total count,
// clamping page to at least 1 and limit to [1, maxLimit].
func Paginate(results interface{}, page, limit int, total int64, maxLimit int) Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	if totalPages < 1 {
		totalPages = 1
	}
	return Page{Results: results, Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}

// Offset converts a 1-indexed page/limit pair into a SQL OFFSET.
func Offset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}

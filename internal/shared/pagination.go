package shared

import "math"

// MaxPages bounds the page count taken from upstream metadata.
const MaxPages = 1000

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata. A non-zero totalPages reported
// by the upstream API wins over the computed value. Either is capped at
// MaxPages.
func NewPagination(page, perPage, total, totalPages int) Pagination {
	if perPage <= 0 {
		perPage = 6
	}
	if page <= 0 {
		page = 1
	}
	if totalPages <= 0 {
		totalPages = int(math.Ceil(float64(total) / float64(perPage)))
	}
	if totalPages < 1 {
		totalPages = 1
	}
	if totalPages > MaxPages {
		totalPages = MaxPages
	}
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Pages lists every page number, 1-based.
func (p Pagination) Pages() []int {
	out := make([]int, 0, p.TotalPages)
	for i := 1; i <= p.TotalPages; i++ {
		out = append(out, i)
	}
	return out
}

// HasPrev reports whether a previous page exists.
func (p Pagination) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a next page exists.
func (p Pagination) HasNext() bool { return p.Page < p.TotalPages }

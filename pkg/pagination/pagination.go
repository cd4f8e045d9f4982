package pagination

import "math"

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 20
	// MaxLimit caps how many rows any page query can request.
	MaxLimit = 100
)

// Params holds page pagination inputs from controllers or services.
type Params struct {
	Page  int
	Limit int
}

// Page describes one window of a result set.
type Page struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasMore    bool  `json:"hasMore"`
}

// NormalizePage clamps page numbers below one to the first page.
func NormalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// NormalizeLimit applies the default for a missing limit and clamps to [1, MaxLimit].
func NormalizeLimit(limit int) int {
	if limit == 0 {
		return DefaultLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Normalize returns a copy of p with page and limit clamped.
func Normalize(p Params) Params {
	return Params{Page: NormalizePage(p.Page), Limit: NormalizeLimit(p.Limit)}
}

// Offset is the number of rows to skip for the normalized page.
func (p Params) Offset() int {
	n := Normalize(p)
	return (n.Page - 1) * n.Limit
}

// NewPage builds the response metadata for a normalized request and total.
func NewPage(p Params, total int64) Page {
	n := Normalize(p)
	totalPages := 0
	if total > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(n.Limit)))
	}
	return Page{
		Page:       n.Page,
		Limit:      n.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasMore:    n.Page < totalPages,
	}
}

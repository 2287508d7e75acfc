// Package paging turns page/limit query values into offsets and response metadata.
package paging

import (
	"math"
	"net/url"
	"strconv"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Request is a normalised page request. Offset never overflows: Page is
// capped so that (Page-1)*Limit fits in an int.
type Request struct {
	Page   int
	Limit  int
	Offset int
}

func New(page, limit int) Request {
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if page < 1 {
		page = 1
	}
	if maxPage := math.MaxInt/limit - 1; page > maxPage {
		page = maxPage
	}
	return Request{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// FromQuery reads "page" and "limit"; unparsable values fall back to defaults.
func FromQuery(q url.Values) Request {
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return New(page, limit)
}

func (r Request) Result(total int) Pagination {
	return Pagination{
		Page:       r.Page,
		Limit:      r.Limit,
		Total:      total,
		TotalPages: (total + r.Limit - 1) / r.Limit,
	}
}

package pagination

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts pagination parameters from the echo context.
func FromContext(c echo.Context) Params {
	return FromContextWithDefault(c, DefaultLimit)
}

// FromContextWithDefault is FromContext with a caller-chosen page size, used
// when the organization configures its own items per page.
func FromContextWithDefault(c echo.Context, def int) Params {
	if def <= 0 || def > MaxLimit {
		def = DefaultLimit
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = def
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Response wraps a paginated API response.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
	Links   []Link      `json:"links,omitempty"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}

// SQL returns the LIMIT and OFFSET clause for SQL queries.
func (p Params) SQL() string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit, p.Offset)
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset for the previous page.
// Returns 0 if the result would be negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}

// Link is a navigation link for a paginated list.
type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// Links builds self/next/previous links for basePath. query carries the
// request's filters; its limit and offset values are replaced.
func (p Params) Links(basePath string, query url.Values, total int) []Link {
	build := func(offset int) string {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("limit", strconv.Itoa(p.Limit))
		q.Set("offset", strconv.Itoa(offset))
		return basePath + "?" + q.Encode()
	}

	links := []Link{{Relation: "self", URL: build(p.Offset)}}
	if p.HasNext(total) {
		links = append(links, Link{Relation: "next", URL: build(p.NextOffset())})
	}
	if p.HasPrevious() {
		links = append(links, Link{Relation: "previous", URL: build(p.PreviousOffset())})
	}
	return links
}

// Sort is a whitelisted ordering.
type Sort struct {
	Field string
	Desc  bool
}

// Direction returns the SQL keyword for the sort direction.
func (s Sort) Direction() string {
	if s.Desc {
		return "DESC"
	}
	return "ASC"
}

// ParseSort reads "field" or "-field" (descending). Fields outside allowed
// are rejected so they never reach SQL. An empty value yields def.
func ParseSort(value string, allowed []string, def Sort) (Sort, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	s := Sort{Field: value}
	if strings.HasPrefix(value, "-") {
		s = Sort{Field: value[1:], Desc: true}
	}
	for _, f := range allowed {
		if f == s.Field {
			return s, nil
		}
	}
	return Sort{}, fmt.Errorf("unsupported sort field %q", s.Field)
}

// SortFromContext parses the "sort" query parameter. An "order=asc|desc"
// parameter overrides the direction.
func SortFromContext(c echo.Context, allowed []string, def Sort) (Sort, error) {
	s, err := ParseSort(c.QueryParam("sort"), allowed, def)
	if err != nil {
		return Sort{}, err
	}
	switch strings.ToLower(c.QueryParam("order")) {
	case "asc":
		s.Desc = false
	case "desc":
		s.Desc = true
	}
	return s, nil
}

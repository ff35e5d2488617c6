package filter

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultLimit is a conventional page size. ApplyCollection does not apply
// it: a request without limit is paged only when Options.MaxLimit caps it.
const DefaultLimit = 50

// Pagination is the parsed limit/offset pair for one request.
type Pagination struct {
	Limit      int
	Offset     int
	HasLimit   bool
}

// ParsePagination parses the `limit`/`offset` query values. limit must be a
// positive integer if present; offset must be non-negative if present.
func ParsePagination(limitStr, offsetStr string) (Pagination, error) {
	p := Pagination{Offset: 0}

	if offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return Pagination{}, &ParseError{Token: offsetStr, Msg: "offset must be a non-negative integer"}
		}

		p.Offset = offset
	}

	if limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return Pagination{}, &ParseError{Token: limitStr, Msg: "limit must be a positive integer"}
		}

		p.Limit = limit
		p.HasLimit = true
	}

	return p, nil
}

// Page slices total (the full filtered+sorted length) into [offset,
// offset+limit). An out-of-range offset yields an empty page, not an error.
func (p Pagination) Page(total int) (start, end int) {
	if !p.HasLimit {
		return 0, total
	}

	start = p.Offset
	if start > total {
		start = total
	}

	end = start + p.Limit
	if end > total {
		end = total
	}

	return start, end
}

// Links builds the RFC 5988 Link header value set (first/prev/next/last,
// each carrying count=<total>), given the request's base path+query (without
// limit/offset) and the resolved pagination window. Returns "" when no limit
// was supplied, per spec (no pagination links are emitted in that case).
func (p Pagination) Links(baseURL string, total int) string {
	if !p.HasLimit {
		return ""
	}

	var rels []string

	lastOffset := lastPageOffset(total, p.Limit)

	rels = append(rels, linkFor(baseURL, 0, p.Limit, total, "first"))

	if p.Offset > 0 {
		prevOffset := p.Offset - p.Limit
		if prevOffset < 0 {
			prevOffset = 0
		}

		rels = append(rels, linkFor(baseURL, prevOffset, p.Limit, total, "prev"))
	}

	if p.Offset+p.Limit < total {
		rels = append(rels, linkFor(baseURL, p.Offset+p.Limit, p.Limit, total, "next"))
	}

	rels = append(rels, linkFor(baseURL, lastOffset, p.Limit, total, "last"))

	return strings.Join(rels, ", ")
}

func lastPageOffset(total, limit int) int {
	if total == 0 || limit <= 0 {
		return 0
	}

	n := (total - 1) / limit

	return n * limit
}

func linkFor(baseURL string, offset, limit, total int, rel string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		u = &url.URL{}
	}

	q := u.Query()
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	return fmt.Sprintf(`<%s>; rel="%s"; count=%d`, u.String(), rel, total)
}

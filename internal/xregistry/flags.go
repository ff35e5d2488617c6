package xregistry

import (
	"net/http"
	"strconv"

	"github.com/xregistry-bridge/bridge/internal/filter"
	"github.com/xregistry-bridge/bridge/internal/problem"
	"github.com/xregistry-bridge/bridge/internal/xrid"
)

// Flags is the fully parsed set of per-request query parameters understood
// by every collection and entity endpoint (spec §6).
type Flags struct {
	Request        filter.Request
	Doc            bool
	Collections    bool
	SpecVersion    string
	RequestContext xrid.RequestContext
}

// ParseFlags parses and validates every query parameter this system
// recognizes. A parse failure returns a bad-request problem detail with the
// offending token in its Detail, per spec §7.
func ParseFlags(r *http.Request) (Flags, *problem.Details) {
	q := r.URL.Query()

	exprs, err := filter.ParseFilters(q["filter"])
	if err != nil {
		return Flags{}, problem.BadRequest(r.URL.Path, err.Error())
	}

	sortSpec, err := filter.ParseSort(q.Get("sort"))
	if err != nil {
		return Flags{}, problem.BadRequest(r.URL.Path, err.Error())
	}

	pagination, err := filter.ParsePagination(q.Get("limit"), q.Get("offset"))
	if err != nil {
		return Flags{}, problem.BadRequest(r.URL.Path, err.Error())
	}

	inline := filter.ParseInline(q.Get("inline"))

	var epoch *int64

	if raw := q.Get("epoch"); raw != "" {
		parsed, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			return Flags{}, problem.BadRequest(r.URL.Path, "epoch must be an integer")
		}

		epoch = &parsed
	}

	return Flags{
		Request: filter.Request{
			Filters:    exprs,
			Sort:       sortSpec,
			Inline:     inline,
			Pagination: pagination,
			Epoch:      epoch,
		},
		Doc:            q.Get("doc") == "true",
		Collections:    q.Get("collections") == "true",
		SpecVersion:    q.Get("specversion"),
		RequestContext: xrid.BaseURLFromRequest(r),
	}, nil
}

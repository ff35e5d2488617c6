package filter

import "strconv"

// Entity is the minimal shape applyCollection needs from a domain value: a
// stable xid for tie-break/identity, and attribute resolution for filter,
// sort, and inline.
type Entity interface {
	XID() string
	Attribute(path string) (string, bool)
}

// Request is the parsed, already-validated set of collection query
// parameters for a single GET against a collection endpoint.
type Request struct {
	Filters    []Expression
	Sort       SortSpec
	Inline     InlineSpec
	Pagination Pagination
	Epoch      *int64
}

// Options configures adapter-specific behavior of applyCollection.
type Options struct {
	// NameIndexed marks an adapter as backed by a large name index (Node,
	// Python, Maven, NuGet, OCI, MCP): at least one filter expression must
	// constrain name, or the engine returns an empty page per spec §4.3.
	NameIndexed bool

	// MaxLimit caps the effective page size regardless of a client-supplied
	// limit, and pages a request without limit whose result exceeds it;
	// 0 means no cap.
	MaxLimit int

	// BaseURL is the request's own URL (path + existing query, minus
	// limit/offset) used to build Link header targets.
	BaseURL string
}

// Result is applyCollection's output: the page of survivors, the RFC 5988
// Link header value (may be empty), and the total count before pagination.
type Result struct {
	Page   []Entity
	Links  string
	Total  int
	Notice string
}

// ApplyCollection is the single pure function that turns a candidate set of
// entities plus parsed request flags into a page, its pagination links, and
// the total survivor count. Candidates are expected to already have passed
// the name-index phase (see internal/nameindex); this function performs the
// attribute phase, sort, and pagination.
func ApplyCollection(items []Entity, req Request, opts Options) Result {
	if opts.NameIndexed && !AnyConstrainsName(req.Filters) {
		return Result{Notice: MissingNameConstraintNotice}
	}

	survivors := make([]Entity, 0, len(items))

	for _, item := range items {
		if req.Epoch != nil {
			epochStr, ok := item.Attribute("epoch")
			if !ok || !compare(epochStr, strconv.FormatInt(*req.Epoch, 10), OpEqual) {
				continue
			}
		}

		if !AnyExpressionMatches(req.Filters, item.Attribute) {
			continue
		}

		survivors = append(survivors, item)
	}

	SortItems(survivors, req.Sort, func(e Entity, attr string) (string, bool) {
		return e.Attribute(attr)
	}, func(e Entity) string {
		return e.XID()
	})

	total := len(survivors)

	pagination := req.Pagination
	if pagination.HasLimit && opts.MaxLimit > 0 && pagination.Limit > opts.MaxLimit {
		pagination.Limit = opts.MaxLimit
	}

	if !pagination.HasLimit && opts.MaxLimit > 0 && total > opts.MaxLimit {
		pagination.HasLimit = true
		pagination.Limit = opts.MaxLimit
	}

	start, end := pagination.Page(total)

	var links string
	if pagination.HasLimit {
		links = pagination.Links(opts.BaseURL, total)
	}

	return Result{
		Page:  survivors[start:end],
		Links: links,
		Total: total,
	}
}

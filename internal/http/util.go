package httpx

import (
	"net/http"
	"strconv"

	"github.com/target/runplane/internal/domain/model"
)

// parseIntQuery returns the integer value of a query param or a default.
// It is tolerant of missing/invalid values.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// parseBoolQuery returns the boolean value of a query param or a default.
func parseBoolQuery(r *http.Request, key string, def bool) bool {
	if v := r.URL.Query().Get(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// ParseListOptions parses common listing params: offset (default 0),
// limit (default 100), sort_order (asc|desc, default asc) and
// assignable_only for run listings.
func ParseListOptions(r *http.Request) model.ListOptions {
	opts := model.ListOptions{
		Offset:         parseIntQuery(r, "offset", 0),
		Limit:          parseIntQuery(r, "limit", model.DefaultListLimit),
		SortOrder:      model.SortOrder(r.URL.Query().Get("sort_order")),
		AssignableOnly: parseBoolQuery(r, "assignable_only", false),
	}
	opts.Normalize()
	return opts
}

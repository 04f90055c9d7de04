package commerce

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/radiusdt/shop-insights/internal/models"
)

// Query selects which part of a collection a fetch materializes.
type Query struct {
	Window models.Window
	// Fields is an optional server-side projection.
	Fields []string
	// PageSize overrides the fetcher's default page size when positive.
	PageSize int
}

// values encodes the query for one page request.
func (q Query) values(offset, limit int) url.Values {
	v := url.Values{}
	v.Set("offset", strconv.Itoa(offset))
	v.Set("limit", strconv.Itoa(limit))
	if len(q.Fields) > 0 {
		v.Set("fields", strings.Join(q.Fields, ","))
	}
	if !q.Window.From.IsZero() {
		v.Set("created_at[gte]", q.Window.From.UTC().Format(time.RFC3339Nano))
	}
	if !q.Window.To.IsZero() {
		v.Set("created_at[lte]", q.Window.To.UTC().Format(time.RFC3339Nano))
	}
	return v
}

// CacheKey identifies the result of fetching collection with q. Two queries
// share a key only when they would produce the same request sequence.
func (q Query) CacheKey(collection string, defaultPageSize int) string {
	fields := append([]string(nil), q.Fields...)
	sort.Strings(fields)

	limit := q.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}

	var b strings.Builder
	b.WriteString(collection)
	b.WriteString("|from=")
	b.WriteString(formatBound(q.Window.From))
	b.WriteString("|to=")
	b.WriteString(formatBound(q.Window.To))
	b.WriteString("|fields=")
	b.WriteString(strings.Join(fields, ","))
	b.WriteString("|limit=")
	b.WriteString(strconv.Itoa(limit))
	return b.String()
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "*"
	}
	return t.UTC().Format(time.RFC3339Nano)
}

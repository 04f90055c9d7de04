package commerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/shop-insights/internal/metrics"
	"go.uber.org/zap"
)

// PageGetter returns the raw body of one page of a collection.
type PageGetter interface {
	GetPage(ctx context.Context, collection string, q Query, offset, limit int) ([]byte, error)
}

// Page is the paginated envelope returned by the commerce backend. The item
// array is keyed either "items" or by the collection name.
type Page[T any] struct {
	Items  []T
	Offset int
	Limit  int
	Count  int

	found bool
}

// Snapshot is a fully materialized collection. It is best effort: under
// concurrent upstream mutation items may be duplicated or missed, which
// Drifted reports when it shows up as a change in the reported count.
type Snapshot[T any] struct {
	ID          string    `json:"id"`
	Collection  string    `json:"collection"`
	Items       []T       `json:"items"`
	Total       int       `json:"total"`
	Pages       int       `json:"pages"`
	Drifted     bool      `json:"drifted"`
	FetchedAt   time.Time `json:"fetched_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Fetcher materializes whole collections by sequential pagination.
type Fetcher struct {
	pages    PageGetter
	pageSize int
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewFetcher creates a fetcher with a default page size.
func NewFetcher(pages PageGetter, pageSize int, logger *zap.Logger, m *metrics.Metrics) *Fetcher {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Fetcher{
		pages:    pages,
		pageSize: pageSize,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// PageSize returns the default page size.
func (f *Fetcher) PageSize() int {
	return f.pageSize
}

// FetchAll pages through collection from offset 0 until the offset reaches
// the total reported by the latest page. The total is re-read on every page.
// Pages are requested strictly one after another and ctx is checked before
// each one. Any failure aborts the fetch and no partial result is returned.
func FetchAll[T any](ctx context.Context, f *Fetcher, collection string, q Query) (*Snapshot[T], error) {
	limit := q.PageSize
	if limit <= 0 {
		limit = f.pageSize
	}

	snap := &Snapshot[T]{
		ID:         uuid.NewString(),
		Collection: collection,
		Items:      []T{},
		FetchedAt:  f.now(),
	}

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, f.fail(&FetchError{Collection: collection, Offset: offset, Err: err})
		}

		body, err := f.pages.GetPage(ctx, collection, q, offset, limit)
		if err != nil {
			var ferr *FetchError
			if !errors.As(err, &ferr) {
				ferr = &FetchError{Collection: collection, Offset: offset, Err: err}
			}
			return nil, f.fail(ferr)
		}

		page, err := decodePage[T](body, collection)
		if err == nil {
			err = page.check(offset, limit)
		}
		if err != nil {
			return nil, f.fail(&FetchError{
				Collection: collection,
				Offset:     offset,
				Err:        fmt.Errorf("%w: %v", ErrMalformed, err),
			})
		}

		if snap.Pages > 0 && page.Count != snap.Total {
			snap.Drifted = true
			f.logger.Warn("collection count changed during fetch",
				zap.String("collection", collection),
				zap.Int("offset", offset),
				zap.Int("previous_count", snap.Total),
				zap.Int("count", page.Count),
			)
		}

		snap.Items = append(snap.Items, page.Items...)
		snap.Total = page.Count
		snap.Pages++
		f.metrics.RecordPage(collection)

		f.logger.Debug("fetched page",
			zap.String("collection", collection),
			zap.Int("offset", offset),
			zap.Int("items", len(page.Items)),
			zap.Int("count", page.Count),
		)

		// Servers may cap the page size below what was asked for.
		step := limit
		if page.Limit > 0 && page.Limit < limit {
			step = page.Limit
		}
		offset += step
		if offset >= page.Count {
			break
		}
	}

	snap.CompletedAt = f.now()
	f.metrics.RecordFetch(collection, len(snap.Items), snap.Drifted)
	return snap, nil
}

// Count returns the server-reported size of collection without materializing
// it.
func (f *Fetcher) Count(ctx context.Context, collection string, q Query) (int, error) {
	body, err := f.pages.GetPage(ctx, collection, q, 0, 1)
	if err != nil {
		var ferr *FetchError
		if !errors.As(err, &ferr) {
			ferr = &FetchError{Collection: collection, Err: err}
		}
		return 0, f.fail(ferr)
	}

	page, err := decodePage[json.RawMessage](body, collection)
	if err == nil && page.Count < 0 {
		err = fmt.Errorf("negative count %d", page.Count)
	}
	if err != nil {
		return 0, f.fail(&FetchError{Collection: collection, Err: fmt.Errorf("%w: %v", ErrMalformed, err)})
	}
	return page.Count, nil
}

func (f *Fetcher) fail(err *FetchError) *FetchError {
	f.metrics.RecordFetchFailure(err.Collection, err.Kind())
	f.logger.Error("collection fetch aborted",
		zap.String("collection", err.Collection),
		zap.Int("offset", err.Offset),
		zap.String("kind", err.Kind()),
		zap.Error(err.Err),
	)
	return err
}

// check rejects pages that contradict their own count. An empty page below
// the reported total means the items were not where they were expected.
func (p *Page[T]) check(offset, limit int) error {
	if p.Count < 0 {
		return fmt.Errorf("negative count %d", p.Count)
	}
	if len(p.Items) > limit {
		return fmt.Errorf("page holds %d items, limit was %d", len(p.Items), limit)
	}
	if len(p.Items) == 0 && offset < p.Count {
		if !p.found {
			return fmt.Errorf("no item array at offset %d, count is %d", offset, p.Count)
		}
		return fmt.Errorf("empty page at offset %d, count is %d", offset, p.Count)
	}
	return nil
}

// decodePage parses a page envelope. A missing count field is malformed. A
// missing item array decodes as an empty page and is judged by check.
func decodePage[T any](body []byte, collection string) (*Page[T], error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	countRaw, ok := raw["count"]
	if !ok {
		return nil, errors.New("missing count")
	}

	page := &Page[T]{}
	if err := json.Unmarshal(countRaw, &page.Count); err != nil {
		return nil, fmt.Errorf("decode count: %w", err)
	}
	if v, ok := raw["offset"]; ok {
		if err := json.Unmarshal(v, &page.Offset); err != nil {
			return nil, fmt.Errorf("decode offset: %w", err)
		}
	}
	if v, ok := raw["limit"]; ok {
		if err := json.Unmarshal(v, &page.Limit); err != nil {
			return nil, fmt.Errorf("decode limit: %w", err)
		}
	}

	for _, key := range []string{"items", collection, strings.ReplaceAll(collection, "-", "_")} {
		itemsRaw, ok := raw[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(itemsRaw, &page.Items); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		page.found = true
		break
	}
	return page, nil
}

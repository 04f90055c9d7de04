package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/radiusdt/shop-insights/internal/metrics"
	"github.com/radiusdt/shop-insights/internal/models"
	"github.com/radiusdt/shop-insights/internal/storage"
	"go.uber.org/zap"
)

// Collection names on the commerce backend.
const (
	CollectionOrders         = "orders"
	CollectionCustomers      = "customers"
	CollectionCustomerGroups = "customer-groups"
	CollectionVariants       = "variants"
	CollectionCarts          = "carts"
)

var (
	orderFields = []string{
		"id", "customer_id", "total", "currency_code", "payment_status",
		"fulfillment_status", "created_at", "items",
	}
	customerFields = []string{"id", "first_name", "last_name", "email", "phone", "metadata", "groups"}
	groupFields    = []string{"id", "name"}
	variantFields  = []string{"id", "product_id", "title", "sku", "manage_inventory", "inventory_quantity"}
)

// Source exposes typed, validated collection snapshots. Fetch results are
// cached by collection and query; records are re-validated on every read so
// cached and fresh snapshots look the same to callers.
type Source struct {
	fetcher       *Fetcher
	cache         storage.Cache
	ttl           time.Duration
	groupIDPrefix string
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

// NewSource creates a Source. A nil cache disables caching.
func NewSource(fetcher *Fetcher, cache storage.Cache, ttl time.Duration, groupIDPrefix string, logger *zap.Logger, m *metrics.Metrics) *Source {
	return &Source{
		fetcher:       fetcher,
		cache:         cache,
		ttl:           ttl,
		groupIDPrefix: groupIDPrefix,
		logger:        logger,
		metrics:       m,
	}
}

// Orders returns all orders created inside w.
func (s *Source) Orders(ctx context.Context, w models.Window) (*Snapshot[models.Order], error) {
	q := Query{Window: w, Fields: orderFields}
	snap, err := cachedFetch[models.Order](ctx, s, CollectionOrders, q)
	if err != nil {
		return nil, err
	}

	kept := make([]models.Order, 0, len(snap.Items))
	for i := range snap.Items {
		o := snap.Items[i]
		o.Normalize()
		if err := o.Validate(); err != nil {
			return nil, s.malformed(ctx, CollectionOrders, q, err)
		}
		if !o.PaymentStatus.Valid() {
			s.unknownStatus(CollectionOrders, "payment_status", o.ID, string(o.PaymentStatus))
		}
		if !o.FulfillmentStatus.Valid() {
			s.unknownStatus(CollectionOrders, "fulfillment_status", o.ID, string(o.FulfillmentStatus))
		}
		// The backend filter is authoritative; this guards against servers
		// that ignore it.
		if !w.Contains(o.CreatedAt) {
			continue
		}
		kept = append(kept, o)
	}
	if dropped := len(snap.Items) - len(kept); dropped > 0 {
		s.logger.Debug("dropped orders outside window", zap.Int("dropped", dropped))
	}
	snap.Items = kept
	return snap, nil
}

// Customers returns every customer with its group reference decoded.
func (s *Source) Customers(ctx context.Context) (*Snapshot[models.Customer], error) {
	q := Query{Fields: customerFields}
	snap, err := cachedFetch[models.Customer](ctx, s, CollectionCustomers, q)
	if err != nil {
		return nil, err
	}
	for i := range snap.Items {
		c := &snap.Items[i]
		c.Normalize()
		if err := c.Validate(); err != nil {
			return nil, s.malformed(ctx, CollectionCustomers, q, err)
		}
		c.DecodeGroup(s.groupIDPrefix)
	}
	return snap, nil
}

// CustomerGroups returns every customer group.
func (s *Source) CustomerGroups(ctx context.Context) (*Snapshot[models.CustomerGroup], error) {
	return cachedFetch[models.CustomerGroup](ctx, s, CollectionCustomerGroups, Query{Fields: groupFields})
}

// Variants returns every product variant.
func (s *Source) Variants(ctx context.Context) (*Snapshot[models.ProductVariant], error) {
	q := Query{Fields: variantFields}
	snap, err := cachedFetch[models.ProductVariant](ctx, s, CollectionVariants, q)
	if err != nil {
		return nil, err
	}
	for i := range snap.Items {
		if err := snap.Items[i].Validate(); err != nil {
			return nil, s.malformed(ctx, CollectionVariants, q, err)
		}
	}
	return snap, nil
}

// CartCount returns the number of carts created inside w.
func (s *Source) CartCount(ctx context.Context, w models.Window) (int, error) {
	return s.fetcher.Count(ctx, CollectionCarts, Query{Window: w})
}

// malformed reports a record that failed validation and evicts the snapshot
// holding it so the next request refetches.
func (s *Source) malformed(ctx context.Context, collection string, q Query, err error) error {
	s.evict(ctx, collection, s.cacheKey(collection, q))
	return s.fetcher.fail(&FetchError{Collection: collection, Err: fmt.Errorf("%w: %v", ErrMalformed, err)})
}

func (s *Source) unknownStatus(collection, field, id, value string) {
	s.metrics.RecordUnknownStatus(collection, field)
	s.logger.Warn("unrecognized status",
		zap.String("collection", collection),
		zap.String("field", field),
		zap.String("id", id),
		zap.String("value", value),
	)
}

func (s *Source) cacheKey(collection string, q Query) string {
	return q.CacheKey(collection, s.fetcher.PageSize())
}

func (s *Source) evict(ctx context.Context, collection, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("cache evict failed", zap.String("collection", collection), zap.String("key", key), zap.Error(err))
	}
}

// cachedFetch serves a snapshot from the cache when present and stores fresh
// snapshots otherwise. Cache failures degrade to a direct fetch.
func cachedFetch[T any](ctx context.Context, s *Source, collection string, q Query) (*Snapshot[T], error) {
	if s.cache == nil || s.ttl <= 0 {
		return FetchAll[T](ctx, s.fetcher, collection, q)
	}

	key := s.cacheKey(collection, q)
	data, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.metrics.RecordCacheLookup(collection, "error")
		s.logger.Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
	case ok:
		var snap Snapshot[T]
		if err := json.Unmarshal(data, &snap); err == nil {
			s.metrics.RecordCacheLookup(collection, "hit")
			return &snap, nil
		}
		s.metrics.RecordCacheLookup(collection, "error")
		s.logger.Warn("discarding undecodable cache entry", zap.String("key", key))
		s.evict(ctx, collection, key)
	default:
		s.metrics.RecordCacheLookup(collection, "miss")
	}

	snap, err := FetchAll[T](ctx, s.fetcher, collection, q)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(snap); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			s.logger.Warn("cache store failed", zap.String("key", key), zap.Error(err))
		}
	}
	return snap, nil
}

package insights

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/radiusdt/shop-insights/internal/commerce"
	"github.com/radiusdt/shop-insights/internal/events"
	"github.com/radiusdt/shop-insights/internal/metrics"
	"github.com/radiusdt/shop-insights/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoProductCounter is returned by Conversion when no tracker source of
// per-product interaction counts is configured.
var ErrNoProductCounter = errors.New("insights: no product interaction source configured")

// CommerceSource provides the raw entity sets.
type CommerceSource interface {
	Orders(ctx context.Context, w models.Window) (*commerce.Snapshot[models.Order], error)
	Customers(ctx context.Context) (*commerce.Snapshot[models.Customer], error)
	CustomerGroups(ctx context.Context) (*commerce.Snapshot[models.CustomerGroup], error)
	Variants(ctx context.Context) (*commerce.Snapshot[models.ProductVariant], error)
	CartCount(ctx context.Context, w models.Window) (int, error)
}

// Options configures a Service.
type Options struct {
	DefaultGroup string
	Identity     IdentityMapper
	StageSources []events.StageSource
	Products     events.ProductCounter
	Now          func() time.Time
}

// Service builds reports from the commerce backend and event collaborators.
// Different collections are fetched concurrently; each report is computed
// from its own fetch and nothing is persisted.
type Service struct {
	commerce     CommerceSource
	defaultGroup string
	identity     IdentityMapper
	stages       []events.StageSource
	products     events.ProductCounter
	now          func() time.Time
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// NewService creates a report service.
func NewService(src CommerceSource, opts Options, logger *zap.Logger, m *metrics.Metrics) *Service {
	if opts.DefaultGroup == "" {
		opts.DefaultGroup = "Retail"
	}
	if opts.Identity == nil {
		opts.Identity = Identity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		commerce:     src,
		defaultGroup: opts.DefaultGroup,
		identity:     opts.Identity,
		stages:       opts.StageSources,
		products:     opts.Products,
		now:          opts.Now,
		logger:       logger,
		metrics:      m,
	}
}

// SourceInfo describes one fetched collection backing a report.
type SourceInfo struct {
	Collection  string    `json:"collection"`
	SnapshotID  string    `json:"snapshot_id"`
	Items       int       `json:"items"`
	Total       int       `json:"total"`
	Drifted     bool      `json:"drifted"`
	FetchedAt   time.Time `json:"fetched_at"`
	CompletedAt time.Time `json:"completed_at"`
}

func sourceInfo[T any](s *commerce.Snapshot[T]) SourceInfo {
	return SourceInfo{
		Collection:  s.Collection,
		SnapshotID:  s.ID,
		Items:       len(s.Items),
		Total:       s.Total,
		Drifted:     s.Drifted,
		FetchedAt:   s.FetchedAt,
		CompletedAt: s.CompletedAt,
	}
}

// Report wraps report data with its generation time and the snapshots it was
// computed from. Snapshots may be from slightly different instants.
type Report[T any] struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Window      models.Window `json:"window"`
	Sources     []SourceInfo  `json:"sources"`
	Data        T             `json:"data"`
}

// ProductRow is a product with its share of the report's revenue.
type ProductRow struct {
	ProductMetrics
	SharePercent float64 `json:"share_percent"`
}

// ProductView is a sorted projection of a ProductReport.
type ProductView struct {
	Sort         string          `json:"sort"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	SkippedLines int             `json:"skipped_lines"`
	Products     []ProductRow    `json:"products"`
}

// Product sort orders.
const (
	SortRevenue  = "revenue"
	SortQuantity = "quantity"
)

// NewProductView projects r in the given order.
func NewProductView(r *ProductReport, order string) (*ProductView, error) {
	var rows []ProductMetrics
	switch order {
	case "", SortRevenue:
		order = SortRevenue
		rows = r.ByRevenue()
	case SortQuantity:
		rows = r.ByQuantity()
	default:
		return nil, fmt.Errorf("unknown product sort %q", order)
	}

	v := &ProductView{
		Sort:         order,
		TotalRevenue: r.TotalRevenue(),
		SkippedLines: r.SkippedLines,
		Products:     make([]ProductRow, 0, len(rows)),
	}
	for _, row := range rows {
		v.Products = append(v.Products, ProductRow{ProductMetrics: row, SharePercent: r.Share(row.ProductID)})
	}
	return v, nil
}

// Dashboard holds every report computed from one set of fetches.
type Dashboard struct {
	Customers  *CustomerReport `json:"customers"`
	Products   *ProductView    `json:"products"`
	Inventory  *StockReport    `json:"inventory"`
	Funnel     *Funnel         `json:"funnel"`
	Conversion []ConversionRow `json:"conversion,omitempty"`
}

type need uint8

const (
	needOrders need = 1 << iota
	needCustomers
	needGroups
	needVariants
	needCarts
	needStages
	needInteractions
)

type inputs struct {
	orders       *commerce.Snapshot[models.Order]
	customers    *commerce.Snapshot[models.Customer]
	groups       *commerce.Snapshot[models.CustomerGroup]
	variants     *commerce.Snapshot[models.ProductVariant]
	carts        int
	stages       [][]models.FunnelStepSource
	interactions Interactions
}

func (in *inputs) sources() []SourceInfo {
	out := []SourceInfo{}
	if in.orders != nil {
		out = append(out, sourceInfo(in.orders))
	}
	if in.customers != nil {
		out = append(out, sourceInfo(in.customers))
	}
	if in.groups != nil {
		out = append(out, sourceInfo(in.groups))
	}
	if in.variants != nil {
		out = append(out, sourceInfo(in.variants))
	}
	return out
}

// load fetches what n asks for concurrently. The first failure cancels the
// remaining fetches and is returned.
func (s *Service) load(ctx context.Context, w models.Window, n need) (*inputs, error) {
	if n&needInteractions != 0 && s.products == nil {
		return nil, ErrNoProductCounter
	}

	in := &inputs{carts: -1}
	g, gctx := errgroup.WithContext(ctx)

	if n&needOrders != 0 {
		g.Go(func() error {
			snap, err := s.commerce.Orders(gctx, w)
			in.orders = snap
			return err
		})
	}
	if n&needCustomers != 0 {
		g.Go(func() error {
			snap, err := s.commerce.Customers(gctx)
			in.customers = snap
			return err
		})
	}
	if n&needGroups != 0 {
		g.Go(func() error {
			snap, err := s.commerce.CustomerGroups(gctx)
			in.groups = snap
			return err
		})
	}
	if n&needVariants != 0 {
		g.Go(func() error {
			snap, err := s.commerce.Variants(gctx)
			in.variants = snap
			return err
		})
	}
	if n&needCarts != 0 {
		g.Go(func() error {
			count, err := s.commerce.CartCount(gctx, w)
			in.carts = count
			return err
		})
	}
	if n&needStages != 0 {
		in.stages = make([][]models.FunnelStepSource, len(s.stages))
		for i, src := range s.stages {
			i, src := i, src
			g.Go(func() error {
				steps, err := src.StageCounts(gctx, w)
				if err != nil {
					return fmt.Errorf("%s stage counts: %w", src.Provenance(), err)
				}
				in.stages[i] = steps
				return nil
			})
		}
	}
	if n&needInteractions != 0 {
		kinds := []struct {
			kind models.ProductCountKind
			dst  *map[string]int64
		}{
			{models.ProductViews, &in.interactions.Views},
			{models.ProductClicks, &in.interactions.Clicks},
			{models.ProductCartAdds, &in.interactions.CartAdds},
		}
		for _, k := range kinds {
			k := k
			g.Go(func() error {
				counts, err := s.products.ProductCounts(gctx, k.kind, w)
				if err != nil {
					return fmt.Errorf("product %s: %w", k.kind, err)
				}
				*k.dst = counts
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return in, nil
}

func (s *Service) observe(report string, start time.Time, err error) {
	s.metrics.RecordReport(report, time.Since(start), err)
	if err != nil {
		s.logger.Error("report failed", zap.String("report", report), zap.Error(err))
	}
}

func newReport[T any](s *Service, w models.Window, in *inputs, data T) *Report[T] {
	return &Report[T]{
		GeneratedAt: s.now(),
		Window:      w,
		Sources:     in.sources(),
		Data:        data,
	}
}

func (s *Service) customerReport(in *inputs) *CustomerReport {
	lookup := models.NewGroupLookup(in.groups.Items)
	return AggregateCustomers(in.customers.Items, in.orders.Items, lookup, s.defaultGroup, s.now())
}

func (s *Service) funnel(in *inputs) *Funnel {
	var all []models.FunnelStepSource
	for _, steps := range in.stages {
		all = append(all, steps...)
	}
	all = append(all, CommerceStageCounts(in.orders.Items, in.carts)...)
	return ComposeFunnel(all)
}

// Customers builds the customer lifecycle report over orders placed in w.
func (s *Service) Customers(ctx context.Context, w models.Window) (rep *Report[*CustomerReport], err error) {
	defer func(start time.Time) { s.observe("customers", start, err) }(time.Now())

	in, err := s.load(ctx, w, needOrders|needCustomers|needGroups)
	if err != nil {
		return nil, err
	}
	return newReport(s, w, in, s.customerReport(in)), nil
}

// Products builds the product performance report sorted by order.
func (s *Service) Products(ctx context.Context, w models.Window, order string) (rep *Report[*ProductView], err error) {
	defer func(start time.Time) { s.observe("products", start, err) }(time.Now())

	in, err := s.load(ctx, w, needOrders)
	if err != nil {
		return nil, err
	}
	view, err := NewProductView(AggregateProducts(in.orders.Items), order)
	if err != nil {
		return nil, err
	}
	return newReport(s, w, in, view), nil
}

// Inventory builds the stock report. Variants are not windowed.
func (s *Service) Inventory(ctx context.Context) (rep *Report[*StockReport], err error) {
	defer func(start time.Time) { s.observe("inventory", start, err) }(time.Now())

	in, err := s.load(ctx, models.Window{}, needVariants)
	if err != nil {
		return nil, err
	}
	return newReport(s, models.Window{}, in, ClassifyStock(in.variants.Items)), nil
}

// Funnel composes the cross-source funnel for w.
func (s *Service) Funnel(ctx context.Context, w models.Window) (rep *Report[*Funnel], err error) {
	defer func(start time.Time) { s.observe("funnel", start, err) }(time.Now())

	in, err := s.load(ctx, w, needOrders|needCarts|needStages)
	if err != nil {
		return nil, err
	}
	return newReport(s, w, in, s.funnel(in)), nil
}

// Conversion correlates tracker interactions with sales for w.
func (s *Service) Conversion(ctx context.Context, w models.Window) (rep *Report[[]ConversionRow], err error) {
	defer func(start time.Time) { s.observe("conversion", start, err) }(time.Now())

	in, err := s.load(ctx, w, needOrders|needInteractions)
	if err != nil {
		return nil, err
	}
	rows := CorrelateConversions(in.interactions, AggregateProducts(in.orders.Items), s.identity)
	return newReport(s, w, in, rows), nil
}

// Snapshot computes every report from a single round of fetches. Conversion
// is omitted when no product interaction source is configured.
func (s *Service) Snapshot(ctx context.Context, w models.Window) (rep *Report[*Dashboard], err error) {
	defer func(start time.Time) { s.observe("snapshot", start, err) }(time.Now())

	n := needOrders | needCustomers | needGroups | needVariants | needCarts | needStages
	if s.products != nil {
		n |= needInteractions
	}
	in, err := s.load(ctx, w, n)
	if err != nil {
		return nil, err
	}

	products := AggregateProducts(in.orders.Items)
	view, err := NewProductView(products, SortRevenue)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		Customers: s.customerReport(in),
		Products:  view,
		Inventory: ClassifyStock(in.variants.Items),
		Funnel:    s.funnel(in),
	}
	if s.products != nil {
		d.Conversion = CorrelateConversions(in.interactions, products, s.identity)
	}
	return newReport(s, w, in, d), nil
}

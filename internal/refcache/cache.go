// Package refcache memoizes slow-changing reference data (categories and
// suppliers) for the lifetime of one browser session.
package refcache

import (
	"context"
	"log/slog"
	"sync"

	"example.com/farmstand/internal/logging"
	"example.com/farmstand/internal/marketapi"
	"example.com/farmstand/internal/metrics"
)

// Loader fetches the reference collections from the marketplace.
type Loader interface {
	Categories(ctx context.Context) ([]marketapi.Category, error)
	Farms(ctx context.Context) ([]marketapi.Farm, error)
}

// slot is one memoized collection. A nil items with populated=false means the
// next read fetches.
type slot[T any] struct {
	mu        sync.Mutex
	populated bool
	items     []T
}

func (s *slot[T]) load(ctx context.Context, name string, fetch func(context.Context) ([]T, error), m *metrics.Metrics, logger *slog.Logger) []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.populated {
		m.ObserveCache(name, true)
		return s.items
	}
	m.ObserveCache(name, false)

	items, err := fetch(ctx)
	if err != nil {
		logger.Warn("load reference data failed", "collection", name, "error", err)
		return []T{}
	}
	if items == nil {
		// Intercepted 401/403: nothing was loaded, so leave the slot empty.
		return []T{}
	}
	s.items = items
	s.populated = true
	return items
}

func (s *slot[T]) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.populated = false
}

// Cache holds the two reference collections of a session.
type Cache struct {
	loader     Loader
	metrics    *metrics.Metrics
	logger     *slog.Logger
	categories slot[marketapi.Category]
	suppliers  slot[marketapi.Farm]
}

func New(loader Loader, m *metrics.Metrics, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Cache{loader: loader, metrics: m, logger: logger.With("component", "refcache")}
}

// Categories returns the memoized categories. A failed first fetch yields an
// empty list and the next call tries again.
func (c *Cache) Categories(ctx context.Context) []marketapi.Category {
	return c.categories.load(ctx, "categories", c.loader.Categories, c.metrics, c.logger)
}

// Suppliers returns the memoized farms.
func (c *Cache) Suppliers(ctx context.Context) []marketapi.Farm {
	return c.suppliers.load(ctx, "suppliers", c.loader.Farms, c.metrics, c.logger)
}

func (c *Cache) ResetCategories() { c.categories.reset() }
func (c *Cache) ResetSuppliers()  { c.suppliers.reset() }

// Reset drops both collections.
func (c *Cache) Reset() {
	c.ResetCategories()
	c.ResetSuppliers()
}

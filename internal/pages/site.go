// Package pages holds the storefront's page renderers and the user actions
// that mutate marketplace state. Renderers return typed props for the
// templates; actions report their outcome through the toast queue and end
// with a re-render through the router.
package pages

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"example.com/farmstand/internal/app"
	"example.com/farmstand/internal/checkout"
	"example.com/farmstand/internal/logging"
	"example.com/farmstand/internal/marketapi"
	"example.com/farmstand/internal/metrics"
	"example.com/farmstand/internal/router"
)

// Site binds the renderers to a router and runs actions.
type Site struct {
	router   *router.Router
	checkout checkout.Orchestrator
	logger   *slog.Logger
}

// New builds the site. A nil orchestrator is not allowed; use
// checkout.NewInlineOrchestrator when Temporal is not configured.
func New(orch checkout.Orchestrator, m *metrics.Metrics, logger *slog.Logger) *Site {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Site{checkout: orch, logger: logger.With("component", "pages")}
	s.router = router.New(s.renderers(), m, logger)
	return s
}

func (s *Site) Router() *router.Router { return s.router }

// Navigate shows page.
func (s *Site) Navigate(ctx context.Context, st *app.State, page string, param int64) router.View {
	return s.router.Navigate(ctx, st, page, param)
}

// Refresh re-renders the current page.
func (s *Site) Refresh(ctx context.Context, st *app.State) router.View {
	return s.router.Refresh(ctx, st)
}

func (s *Site) renderers() map[router.PageID]router.Renderer {
	return map[router.PageID]router.Renderer{
		router.Home:           router.RendererFunc(s.renderHome),
		router.Products:       router.RendererFunc(s.renderProducts),
		router.Suppliers:      router.RendererFunc(s.renderSuppliers),
		router.SupplierDetail: router.RendererFunc(s.renderSupplierDetail),
		router.ProductDetail:  router.RendererFunc(s.renderProductDetail),
		router.Subscriptions:  router.RendererFunc(s.renderSubscriptions),
		router.Cart:           router.RendererFunc(s.renderCart),
		router.Profile:        router.RendererFunc(s.renderProfile),
		router.Admin:          router.RendererFunc(s.renderAdmin),
		router.SupplierPanel:  router.RendererFunc(s.renderSupplierPanel),
	}
}

// fail reports a failed action unless the client hooks already did.
func (s *Site) fail(st *app.State, title string, err error) {
	s.logger.Warn("action failed", "browser_id", st.ID, "action", title, "error", err)
	if marketapi.Surfaced(err) {
		return
	}
	st.Toasts.Error(title, marketapi.Message(err))
}

// ProductCard is a product with the shopper's in-cart count.
type ProductCard struct {
	marketapi.Product
	CategoryName string
	InCart       int
}

func productCards(st *app.State, products []marketapi.Product, categories []marketapi.Category) []ProductCard {
	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	cards := make([]ProductCard, 0, len(products))
	for _, p := range products {
		name := p.Category
		if name == "" {
			name = names[p.CategoryID]
		}
		cards = append(cards, ProductCard{Product: p, CategoryName: name, InCart: st.Cart.Quantity(p.ID)})
	}
	return cards
}

func filterCards(cards []ProductCard, category string) []ProductCard {
	if category == "" || category == app.AllCategories {
		return cards
	}
	out := make([]ProductCard, 0, len(cards))
	for _, c := range cards {
		if strings.EqualFold(c.CategoryName, category) {
			out = append(out, c)
		}
	}
	return out
}

// categoryFilters is the filter bar: "all" followed by category names.
func categoryFilters(categories []marketapi.Category) []string {
	out := []string{app.AllCategories}
	for _, c := range categories {
		out = append(out, c.Name)
	}
	return out
}

func findFarm(farms []marketapi.Farm, id int64) *marketapi.Farm {
	for i := range farms {
		if farms[i].ID == id {
			return &farms[i]
		}
	}
	return nil
}

func farmNames(farms []marketapi.Farm) map[int64]string {
	out := make(map[int64]string, len(farms))
	for _, f := range farms {
		out[f.ID] = f.Name
	}
	return out
}

func limit[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// newest returns the last n products, most recent first.
func newest(products []marketapi.Product, n int) []marketapi.Product {
	out := append([]marketapi.Product(nil), products...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return limit(out, n)
}

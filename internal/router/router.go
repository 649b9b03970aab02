// Package router maps a page identifier onto one visibility pass and one
// renderer call. It reads navigation state and never touches the identity or
// the reference cache.
package router

import (
	"context"
	"log/slog"

	"example.com/farmstand/internal/app"
	"example.com/farmstand/internal/logging"
	"example.com/farmstand/internal/metrics"
)

// PageID names a storefront page.
type PageID string

const (
	Home           PageID = "home"
	Products       PageID = "products"
	Suppliers      PageID = "suppliers"
	SupplierDetail PageID = "supplierDetail"
	ProductDetail  PageID = "productDetail"
	Subscriptions  PageID = "subscriptions"
	Cart           PageID = "cart"
	Profile        PageID = "profile"
	Admin          PageID = "admin"
	SupplierPanel  PageID = "supplierPanel"
)

// Pages is the closed set of routable pages in layout order.
var Pages = []PageID{Home, Products, Suppliers, SupplierDetail, ProductDetail, Subscriptions, Cart, Profile, Admin, SupplierPanel}

// Known reports whether id belongs to the closed set.
func Known(id string) bool {
	for _, p := range Pages {
		if string(p) == id {
			return true
		}
	}
	return false
}

// Renderer produces the typed props of one page container.
type Renderer interface {
	Render(ctx context.Context, st *app.State) (any, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, st *app.State) (any, error)

func (f RendererFunc) Render(ctx context.Context, st *app.State) (any, error) { return f(ctx, st) }

// Section is one page container. At most one is active.
type Section struct {
	ID     PageID
	Active bool
	Props  any
	Failed bool
}

// NavButton is one entry of the navigation bar.
type NavButton struct {
	Target PageID
	Label  string
	Active bool
}

// View is the outcome of a navigation.
type View struct {
	Page      string
	Param     int64
	Sections  []Section
	Nav       []NavButton
	ScrollTop bool
}

// Active returns the active section, if any.
func (v View) Active() (Section, bool) {
	for _, s := range v.Sections {
		if s.Active {
			return s, true
		}
	}
	return Section{}, false
}

// Router dispatches navigations.
type Router struct {
	renderers map[PageID]Renderer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New keeps only renderers for known pages.
func New(renderers map[PageID]Renderer, m *metrics.Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = logging.Discard()
	}
	table := make(map[PageID]Renderer, len(Pages))
	for _, p := range Pages {
		if r, ok := renderers[p]; ok && r != nil {
			table[p] = r
		}
	}
	return &Router{renderers: table, metrics: m, logger: logger.With("component", "router")}
}

// Navigate sets the navigation state, runs the visibility pass and dispatches
// to the page's renderer. Unknown pages activate nothing and render nothing.
// A redirect requested while rendering (access denied) is followed once.
func (r *Router) Navigate(ctx context.Context, st *app.State, page string, param int64) View {
	if target, ok := st.TakeRedirect(); ok {
		page, param = target, 0
	}
	view := r.navigate(ctx, st, page, param)
	if target, ok := st.TakeRedirect(); ok && target != page {
		r.logger.Info("following redirect", "from", page, "to", target)
		view = r.navigate(ctx, st, target, 0)
	}
	return view
}

// Refresh re-renders the current page.
func (r *Router) Refresh(ctx context.Context, st *app.State) View {
	return r.Navigate(ctx, st, st.Nav.Page, st.Nav.Param)
}

func (r *Router) navigate(ctx context.Context, st *app.State, page string, param int64) View {
	st.Nav = app.NavState{Page: page, Param: param}

	view := View{Page: page, Param: param, ScrollTop: true}
	view.Sections = make([]Section, len(Pages))
	for i, p := range Pages {
		view.Sections[i] = Section{ID: p, Active: string(p) == page}
	}
	view.Nav = NavButtons(st, page)

	renderer, ok := r.renderers[PageID(page)]
	if !ok {
		if !Known(page) {
			r.logger.Debug("navigate to unknown page", "page", page)
		}
		return view
	}

	props, err := renderer.Render(ctx, st)
	r.metrics.ObserveRender(page)
	for i := range view.Sections {
		if view.Sections[i].Active {
			view.Sections[i].Props = props
			view.Sections[i].Failed = err != nil
		}
	}
	if err != nil {
		r.logger.Warn("render failed", "page", page, "error", err)
	}
	return view
}

// NavButtons lists the navigation entries visible to the current identity and
// marks the one matching page.
func NavButtons(st *app.State, page string) []NavButton {
	buttons := []NavButton{
		{Target: Products, Label: "Products"},
		{Target: Suppliers, Label: "Suppliers"},
	}
	if st.Session.LoggedIn() {
		buttons = append(buttons,
			NavButton{Target: Subscriptions, Label: "Subscriptions"},
			NavButton{Target: Cart, Label: "Cart"},
			NavButton{Target: Profile, Label: "Profile"},
		)
		if st.Session.IsAdmin() {
			buttons = append(buttons, NavButton{Target: Admin, Label: "Admin"})
		}
		if st.Session.IsSupplier() {
			buttons = append(buttons, NavButton{Target: SupplierPanel, Label: "My farm"})
		}
	}
	for i := range buttons {
		buttons[i].Active = string(buttons[i].Target) == page
	}
	return buttons
}

package pages

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/farmstand/internal/app"
	"example.com/farmstand/internal/checkout"
	"example.com/farmstand/internal/marketapi"
	"example.com/farmstand/internal/router"
	"example.com/farmstand/internal/session"
)

type reply struct {
	status int
	body   string
}

// fakeMarket answers by "METHOD /path" and records every call. Unrouted GETs
// return an empty list; other unrouted calls succeed with an empty object.
type fakeMarket struct {
	mu     sync.Mutex
	routes map[string]reply
	calls  []string
	query  map[string]string
}

func newFakeMarket(t *testing.T, routes map[string]reply) (*fakeMarket, *httptest.Server) {
	t.Helper()
	f := &fakeMarket{routes: routes, query: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		f.mu.Lock()
		f.calls = append(f.calls, key)
		f.query[key] = r.URL.RawQuery
		rep, ok := f.routes[key]
		f.mu.Unlock()
		if !ok {
			rep = reply{status: http.StatusOK, body: "{}"}
			if r.Method == http.MethodGet {
				rep.body = "[]"
			}
		}
		if rep.status == 0 {
			rep.status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rep.status)
		_, _ = io.WriteString(w, rep.body)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeMarket) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == key {
			n++
		}
	}
	return n
}

func (f *fakeMarket) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// newSite wires a state against srv with an inline checkout bound to it.
func newSite(srv *httptest.Server, role session.Role) (*Site, *app.State) {
	api := marketapi.New(marketapi.Options{BaseURL: srv.URL})
	st := app.NewState("browser-1", api, nil, 10, nil)
	if role != "" {
		st.Session.Set(session.Identity{UserID: 4, DisplayName: "dora", Address: "1 Mill Rd", Role: role})
	}
	resolver := checkout.ResolverFunc(func(context.Context, string) (checkout.OrderAPI, error) {
		return api, nil
	})
	return New(checkout.NewInlineOrchestrator(resolver, nil), nil, nil), st
}

func activeProps[T any](t *testing.T, view router.View) T {
	t.Helper()
	sec, ok := view.Active()
	require.True(t, ok, "no active section")
	props, ok := sec.Props.(T)
	require.True(t, ok, "props are %T", sec.Props)
	return props
}

func lastToast(t *testing.T, st *app.State) app.Toast {
	t.Helper()
	toasts := st.Toasts.Drain()
	require.NotEmpty(t, toasts)
	return toasts[len(toasts)-1]
}

func TestAddToCart_AnonymousOpensAuthModal(t *testing.T) {
	ctx := context.Background()
	market, srv := newFakeMarket(t, nil)
	site, st := newSite(srv, "")
	site.Navigate(ctx, st, string(router.Products), 0)

	view := site.AddToCart(ctx, st, 3, 1)
	assert.Zero(t, market.count("POST /cart/items"))
	assert.True(t, st.AuthModal.Open)
	assert.Equal(t, app.AuthModeLogin, st.AuthModal.Mode)
	assert.Equal(t, string(router.Products), view.Page)
}

func TestAddToCart_RefreshesCartCount(t *testing.T) {
	ctx := context.Background()
	market, srv := newFakeMarket(t, map[string]reply{
		"GET /cart": {body: `[{"product_id":3,"quantity":2}]`},
	})
	site, st := newSite(srv, session.RoleCustomer)
	site.Navigate(ctx, st, string(router.Products), 0)

	site.AddToCart(ctx, st, 3, 2)
	assert.Equal(t, 1, market.count("POST /cart/items"))
	assert.Equal(t, 2, st.Cart.Count())
	assert.Equal(t, app.ToastSuccess, lastToast(t, st).Kind)
}

func TestUpdateCartQuantity(t *testing.T) {
	ctx := context.Background()

	t.Run("down to zero removes the line", func(t *testing.T) {
		market, srv := newFakeMarket(t, map[string]reply{
			"GET /cart": {body: `[{"product_id":1,"quantity":1}]`},
		})
		site, st := newSite(srv, session.RoleCustomer)
		site.Navigate(ctx, st, string(router.Cart), 0)

		site.UpdateCartQuantity(ctx, st, 1, -1)
		assert.Equal(t, 1, market.count("DELETE /cart/items/1"))
		assert.Zero(t, market.count("PUT /cart/items/1"))
	})

	t.Run("increment sends the new quantity", func(t *testing.T) {
		market, srv := newFakeMarket(t, map[string]reply{
			"GET /cart": {body: `[{"product_id":1,"quantity":2}]`},
		})
		site, st := newSite(srv, session.RoleCustomer)
		site.Navigate(ctx, st, string(router.Cart), 0)

		site.UpdateCartQuantity(ctx, st, 1, 1)
		assert.Equal(t, 1, market.count("PUT /cart/items/1"))
		assert.Zero(t, market.count("DELETE /cart/items/1"))
	})

	t.Run("absolute zero removes the line", func(t *testing.T) {
		market, srv := newFakeMarket(t, nil)
		site, st := newSite(srv, session.RoleCustomer)

		site.SetCartQuantity(ctx, st, 5, 0)
		assert.Equal(t, 1, market.count("DELETE /cart/items/5"))
		assert.Zero(t, market.count("PUT /cart/items/5"))
	})
}

func TestRenderCart_JoinsProducts(t *testing.T) {
	ctx := context.Background()
	_, srv := newFakeMarket(t, map[string]reply{
		"GET /cart":     {body: `[{"product_id":1,"quantity":2},{"product_id":9,"quantity":1}]`},
		"GET /products": {body: `[{"id":1,"name":"Eggs","price":3.5,"farm_id":2}]`},
	})
	site, st := newSite(srv, session.RoleCustomer)

	props := activeProps[CartProps](t, site.Navigate(ctx, st, string(router.Cart), 0))
	require.Len(t, props.Rows, 1, "lines without a product are skipped")
	assert.Equal(t, 7.0, props.Total)
	assert.Equal(t, "1 Mill Rd", props.Address)
	assert.Equal(t, 3, st.Cart.Count())
}

func TestCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("empty cart never posts an order", func(t *testing.T) {
		market, srv := newFakeMarket(t, map[string]reply{"GET /cart": {body: `[]`}})
		site, st := newSite(srv, session.RoleCustomer)
		site.Navigate(ctx, st, string(router.Cart), 0)

		view := site.Checkout(ctx, st, "1 Mill Rd", "card")
		assert.Zero(t, market.count("POST /orders"))
		assert.Equal(t, app.ToastError, lastToast(t, st).Kind)
		assert.Equal(t, string(router.Cart), view.Page)
	})

	t.Run("address is required", func(t *testing.T) {
		market, srv := newFakeMarket(t, nil)
		site, st := newSite(srv, session.RoleCustomer)

		site.Checkout(ctx, st, "  ", "card")
		assert.Zero(t, market.count("GET /cart"))
		assert.Equal(t, "Please enter a delivery address", lastToast(t, st).Message)
	})

	t.Run("places the order and clears the cart", func(t *testing.T) {
		market, srv := newFakeMarket(t, map[string]reply{
			"GET /cart":     {body: `[{"product_id":1,"quantity":2}]`},
			"GET /products": {body: `[{"id":1,"name":"Eggs","price":3.5,"farm_id":2}]`},
			"POST /orders":  {status: http.StatusCreated, body: `{"id":55,"status":"pending"}`},
		})
		site, st := newSite(srv, session.RoleCustomer)
		site.Navigate(ctx, st, string(router.Cart), 0)

		view := site.Checkout(ctx, st, "1 Mill Rd", "cash")
		assert.Equal(t, 1, market.count("POST /orders"))
		assert.Equal(t, 1, market.count("DELETE /cart/clear"))
		assert.Equal(t, string(router.Profile), view.Page)
		assert.Equal(t, app.ToastSuccess, lastToast(t, st).Kind)
	})

	t.Run("expired session gives one toast and no order", func(t *testing.T) {
		market, srv := newFakeMarket(t, map[string]reply{
			"GET /cart": {status: http.StatusUnauthorized, body: `{"detail":"Not authenticated"}`},
		})
		site, st := newSite(srv, session.RoleCustomer)

		site.Checkout(ctx, st, "1 Mill Rd", "card")
		assert.Zero(t, market.count("POST /orders"))
		assert.False(t, st.Session.LoggedIn())
		toasts := st.Toasts.Drain()
		require.Len(t, toasts, 1)
		assert.Equal(t, "Session expired", toasts[0].Title)
	})

	t.Run("rejected order shows the server message", func(t *testing.T) {
		market, srv := newFakeMarket(t, map[string]reply{
			"GET /cart":     {body: `[{"product_id":1,"quantity":2}]`},
			"GET /products": {body: `[{"id":1,"name":"Eggs","price":3.5,"farm_id":2}]`},
			"POST /orders":  {status: http.StatusBadRequest, body: `{"detail":"Out of stock"}`},
		})
		site, st := newSite(srv, session.RoleCustomer)
		site.Navigate(ctx, st, string(router.Cart), 0)

		site.Checkout(ctx, st, "1 Mill Rd", "card")
		assert.Zero(t, market.count("DELETE /cart/clear"))
		assert.Equal(t, "Out of stock", lastToast(t, st).Message)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("success lands on home", func(t *testing.T) {
		_, srv := newFakeMarket(t, map[string]reply{
			"POST /auth/login": {body: `{"access_token":"tok"}`},
			"GET /auth/me":     {body: `{"id":4,"username":"dora","email":"d@x.io","role":"farmer"}`},
		})
		site, st := newSite(srv, "")
		st.OpenAuthModal()

		view := site.Login(ctx, st, "d@x.io", "pw")
		assert.False(t, st.AuthModal.Open)
		assert.True(t, st.Session.IsSupplier())
		assert.Equal(t, string(router.Home), view.Page)
		assert.Equal(t, "Welcome!", lastToast(t, st).Title)

		var targets []router.PageID
		for _, b := range view.Nav {
			targets = append(targets, b.Target)
		}
		assert.Contains(t, targets, router.SupplierPanel)
	})

	t.Run("bad credentials stay in the dialog", func(t *testing.T) {
		_, srv := newFakeMarket(t, map[string]reply{
			"POST /auth/login": {status: http.StatusUnauthorized, body: `{"detail":"Incorrect email or password"}`},
		})
		site, st := newSite(srv, "")

		site.Login(ctx, st, "d@x.io", "nope")
		assert.True(t, st.AuthModal.Open)
		assert.Equal(t, "Incorrect email or password", st.AuthModal.Error)
		assert.False(t, st.Session.LoggedIn())
	})
}

func TestRegister_RequiresAllFields(t *testing.T) {
	market, srv := newFakeMarket(t, nil)
	site, st := newSite(srv, "")

	site.Register(context.Background(), st, RegisterForm{Email: "d@x.io", Password: "pw", Name: "dora"})
	assert.Zero(t, market.count("POST /auth/register"))
	assert.Equal(t, app.AuthModeRegister, st.AuthModal.Mode)
	assert.Equal(t, "Please fill in all fields", st.AuthModal.Error)
}

func TestLogout_EndsSessionEvenOnFailure(t *testing.T) {
	_, srv := newFakeMarket(t, map[string]reply{
		"POST /auth/logout": {status: http.StatusInternalServerError},
	})
	site, st := newSite(srv, session.RoleCustomer)

	view := site.Logout(context.Background(), st)
	assert.False(t, st.Session.LoggedIn())
	assert.Equal(t, string(router.Home), view.Page)
}

func TestRenderHome_ProductsFailureKeepsFeatured(t *testing.T) {
	_, srv := newFakeMarket(t, map[string]reply{
		"GET /products": {status: http.StatusInternalServerError, body: `{"detail":"boom"}`},
		"GET /farms":    {body: `[{"id":2,"name":"Green Acres","featured":true,"status":"approved"}]`},
	})
	site, st := newSite(srv, "")

	props := activeProps[HomeProps](t, site.Navigate(context.Background(), st, string(router.Home), 0))
	assert.True(t, props.ProductsFailed)
	assert.Empty(t, props.Products)
	require.Len(t, props.Featured, 1)
	assert.Equal(t, "Green Acres", props.Featured[0].Name)
}

func TestFilterCategory(t *testing.T) {
	ctx := context.Background()
	_, srv := newFakeMarket(t, map[string]reply{
		"GET /products": {body: `[
			{"id":1,"name":"Eggs","category":"Dairy"},
			{"id":2,"name":"Kale","category_id":7}
		]`},
		"GET /categories": {body: `[{"id":6,"name":"Dairy"},{"id":7,"name":"Greens"}]`},
	})
	site, st := newSite(srv, "")
	site.Navigate(ctx, st, string(router.Products), 0)

	props := activeProps[ProductsProps](t, site.FilterCategory(ctx, st, "Greens"))
	require.Len(t, props.Products, 1)
	assert.Equal(t, "Kale", props.Products[0].Name)
	assert.Equal(t, []string{app.AllCategories, "Dairy", "Greens"}, props.Filters)

	props = activeProps[ProductsProps](t, site.FilterCategory(ctx, st, ""))
	assert.Len(t, props.Products, 2)
	assert.Equal(t, app.AllCategories, props.Selected)
}

func TestAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("non admin sees nothing", func(t *testing.T) {
		market, srv := newFakeMarket(t, nil)
		site, st := newSite(srv, session.RoleCustomer)

		props := activeProps[AdminProps](t, site.Navigate(ctx, st, string(router.Admin), 0))
		assert.False(t, props.Allowed)
		assert.Zero(t, market.count("GET /admin/dashboard"))
	})

	t.Run("role change is one PUT then a reload", func(t *testing.T) {
		market, srv := newFakeMarket(t, map[string]reply{
			"GET /admin/users": {body: `{"users":[{"id":7,"username":"bo","role":"customer"}],"total":1,"total_pages":1}`},
		})
		site, st := newSite(srv, session.RoleAdmin)
		props := activeProps[AdminProps](t, site.SwitchAdminTab(ctx, st, "users"))
		require.Len(t, props.Users, 1)
		market.reset()

		site.SetUserRole(ctx, st, 7, "farmer")
		assert.Equal(t, 1, market.count("PUT /admin/users/7/role"))
		assert.Equal(t, "new_role=farmer", market.query["PUT /admin/users/7/role"])
		assert.Equal(t, 1, market.count("GET /admin/users"))
	})

	t.Run("unknown role makes no call", func(t *testing.T) {
		market, srv := newFakeMarket(t, nil)
		site, st := newSite(srv, session.RoleAdmin)

		site.SetUserRole(ctx, st, 7, "overlord")
		assert.Zero(t, market.count("PUT /admin/users/7/role"))
		assert.Equal(t, app.ToastError, lastToast(t, st).Kind)
	})

	t.Run("delete hits the resource endpoint", func(t *testing.T) {
		market, srv := newFakeMarket(t, nil)
		site, st := newSite(srv, session.RoleAdmin)

		site.AdminDelete(ctx, st, "products", 3)
		site.AdminDelete(ctx, st, "farms", 4)
		site.AdminDelete(ctx, st, "reviews", 5)
		assert.Equal(t, 1, market.count("DELETE /admin/products/3"))
		assert.Equal(t, 1, market.count("DELETE /admin/farms/4"))
		assert.Equal(t, 1, market.count("DELETE /admin/reviews/5"))
		toasts := st.Toasts.Drain()
		require.Len(t, toasts, 3)
		for _, toast := range toasts {
			assert.Equal(t, app.ToastSuccess, toast.Kind)
		}
	})

	t.Run("unknown delete kind makes no call", func(t *testing.T) {
		market, srv := newFakeMarket(t, nil)
		site, st := newSite(srv, session.RoleAdmin)

		site.AdminDelete(ctx, st, "users", 7)
		assert.Zero(t, market.count("DELETE /admin/users/7"))
		assert.Equal(t, app.ToastError, lastToast(t, st).Kind)
	})

	t.Run("paging stops at the bound", func(t *testing.T) {
		_, srv := newFakeMarket(t, map[string]reply{
			"GET /admin/orders": {body: `{"orders":[{"id":1,"status":"pending"}],"total":12,"total_pages":2}`},
		})
		site, st := newSite(srv, session.RoleAdmin)
		site.SwitchAdminTab(ctx, st, "orders")

		props := activeProps[AdminProps](t, site.AdminPage(ctx, st, 1))
		assert.Equal(t, 2, props.Page)
		props = activeProps[AdminProps](t, site.AdminPage(ctx, st, 1))
		assert.Equal(t, 2, props.Page)
		assert.Equal(t, 12, props.Total)
	})

	t.Run("forbidden listing redirects home", func(t *testing.T) {
		_, srv := newFakeMarket(t, map[string]reply{
			"GET /admin/dashboard": {status: http.StatusForbidden},
		})
		site, st := newSite(srv, session.RoleAdmin)

		view := site.Navigate(ctx, st, string(router.Admin), 0)
		assert.Equal(t, string(router.Home), view.Page)
	})
}

func TestSupplierPanel(t *testing.T) {
	ctx := context.Background()
	routes := map[string]reply{
		"GET /farms": {body: `[
			{"id":2,"user_id":4,"name":"Hill Farm","status":"approved"},
			{"id":3,"user_id":8,"name":"Other"}
		]`},
		"GET /products": {body: `[{"id":1,"name":"Eggs","farm_id":2},{"id":5,"name":"Milk","farm_id":3}]`},
	}

	t.Run("customers are turned away", func(t *testing.T) {
		_, srv := newFakeMarket(t, routes)
		site, st := newSite(srv, session.RoleCustomer)
		props := activeProps[SupplierPanelProps](t, site.Navigate(ctx, st, string(router.SupplierPanel), 0))
		assert.False(t, props.Allowed)
	})

	t.Run("farmer sees own products", func(t *testing.T) {
		_, srv := newFakeMarket(t, routes)
		site, st := newSite(srv, session.RoleFarmer)
		props := activeProps[SupplierPanelProps](t, site.Navigate(ctx, st, string(router.SupplierPanel), 0))
		require.NotNil(t, props.Farm)
		assert.Equal(t, "Hill Farm", props.Farm.Name)
		require.Len(t, props.Products, 1)
		assert.Equal(t, "Eggs", props.Products[0].Name)
	})

	t.Run("add product posts under the farm", func(t *testing.T) {
		market, srv := newFakeMarket(t, routes)
		site, st := newSite(srv, session.RoleFarmer)
		site.AddProduct(ctx, st, ProductInput{Name: "Honey", Price: 9})
		assert.Equal(t, 1, market.count("POST /products"))
		assert.Equal(t, app.ToastSuccess, lastToast(t, st).Kind)
	})
}

func TestSubscribe_AnonymousOpensAuthModal(t *testing.T) {
	market, srv := newFakeMarket(t, nil)
	site, st := newSite(srv, "")

	site.Subscribe(context.Background(), st, 3)
	assert.True(t, st.AuthModal.Open)
	assert.Zero(t, market.count("POST /subscriptions/user/subscribe/3"))
}

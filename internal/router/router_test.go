package router

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/farmstand/internal/app"
	"example.com/farmstand/internal/marketapi"
	"example.com/farmstand/internal/metrics"
	"example.com/farmstand/internal/session"
)

func newState() *app.State {
	api := marketapi.New(marketapi.Options{BaseURL: "http://127.0.0.1:0"})
	return app.NewState("b", api, nil, 10, nil)
}

type countingRenderer struct {
	calls int
	props any
	err   error
	hook  func(st *app.State)
}

func (c *countingRenderer) Render(_ context.Context, st *app.State) (any, error) {
	c.calls++
	if c.hook != nil {
		c.hook(st)
	}
	return c.props, c.err
}

func activeSections(v View) []PageID {
	var out []PageID
	for _, s := range v.Sections {
		if s.Active {
			out = append(out, s.ID)
		}
	}
	return out
}

func TestNavigate_DispatchesExactlyOneRenderer(t *testing.T) {
	renderers := map[PageID]Renderer{}
	counters := map[PageID]*countingRenderer{}
	for _, p := range Pages {
		c := &countingRenderer{props: string(p)}
		counters[p] = c
		renderers[p] = c
	}
	m := metrics.New(nil)
	r := New(renderers, m, nil)
	st := newState()

	view := r.Navigate(context.Background(), st, string(ProductDetail), 42)

	assert.Equal(t, []PageID{ProductDetail}, activeSections(view))
	assert.Equal(t, app.NavState{Page: "productDetail", Param: 42}, st.Nav)
	assert.True(t, view.ScrollTop)
	for p, c := range counters {
		if p == ProductDetail {
			assert.Equal(t, 1, c.calls)
		} else {
			assert.Zero(t, c.calls, "renderer %s", p)
		}
	}
	active, ok := view.Active()
	require.True(t, ok)
	assert.Equal(t, "productDetail", active.Props)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PageRenders.WithLabelValues("productDetail")))
}

func TestNavigate_UnknownPage(t *testing.T) {
	home := &countingRenderer{}
	r := New(map[PageID]Renderer{Home: home}, nil, nil)
	st := newState()

	var view View
	assert.NotPanics(t, func() {
		view = r.Navigate(context.Background(), st, "lottery", 0)
	})
	assert.Empty(t, activeSections(view))
	for _, b := range view.Nav {
		assert.False(t, b.Active)
	}
	assert.Zero(t, home.calls)
	assert.Equal(t, "lottery", st.Nav.Page)
}

func TestNavigate_LeavesSessionAndCacheAlone(t *testing.T) {
	r := New(map[PageID]Renderer{Cart: &countingRenderer{}}, nil, nil)
	st := newState()
	st.Session.Set(session.Identity{UserID: 3, Role: session.RoleCustomer})

	r.Navigate(context.Background(), st, string(Cart), 0)
	id, ok := st.Session.Current()
	require.True(t, ok)
	assert.Equal(t, int64(3), id.UserID)
}

func TestNavigate_RenderFailureMarksSection(t *testing.T) {
	r := New(map[PageID]Renderer{Suppliers: &countingRenderer{err: errors.New("boom")}}, nil, nil)
	view := r.Navigate(context.Background(), newState(), string(Suppliers), 0)
	active, ok := view.Active()
	require.True(t, ok)
	assert.True(t, active.Failed)
}

func TestNavigate_FollowsAccessDeniedRedirect(t *testing.T) {
	home := &countingRenderer{}
	admin := &countingRenderer{hook: func(st *app.State) { st.AccessDenied(context.Background()) }}
	r := New(map[PageID]Renderer{Home: home, Admin: admin}, nil, nil)
	st := newState()

	view := r.Navigate(context.Background(), st, string(Admin), 0)
	assert.Equal(t, []PageID{Home}, activeSections(view))
	assert.Equal(t, 1, admin.calls)
	assert.Equal(t, 1, home.calls)
	assert.Equal(t, app.HomePage, st.Nav.Page)
}

func TestRefresh(t *testing.T) {
	cart := &countingRenderer{}
	r := New(map[PageID]Renderer{Cart: cart}, nil, nil)
	st := newState()
	r.Navigate(context.Background(), st, string(Cart), 0)
	r.Refresh(context.Background(), st)
	assert.Equal(t, 2, cart.calls)
}

func TestNavButtons(t *testing.T) {
	st := newState()
	anon := NavButtons(st, string(Products))
	require.Len(t, anon, 2)
	assert.True(t, anon[0].Active)

	st.Session.Set(session.Identity{UserID: 1, Role: session.RoleAdmin})
	admin := NavButtons(st, string(Admin))
	var targets []PageID
	for _, b := range admin {
		targets = append(targets, b.Target)
		if b.Target == Admin {
			assert.True(t, b.Active)
		}
	}
	assert.Contains(t, targets, Admin)
	assert.NotContains(t, targets, SupplierPanel)

	st.Session.Set(session.Identity{UserID: 2, Role: session.RoleFarmer})
	farmer := NavButtons(st, string(Home))
	assert.Equal(t, SupplierPanel, farmer[len(farmer)-1].Target)
}

func TestKnown(t *testing.T) {
	assert.True(t, Known("supplierPanel"))
	assert.False(t, Known("SupplierPanel"))
}

package pages

import (
	"context"
	"strings"

	"example.com/farmstand/internal/app"
	"example.com/farmstand/internal/marketapi"
	"example.com/farmstand/internal/router"
	"example.com/farmstand/internal/session"
)

// OrderStatuses is the order lifecycle offered in the admin orders tab.
var OrderStatuses = []string{"pending", "processing", "shipped", "delivered", "cancelled"}

// Roles are the values offered by the role picker.
var Roles = []session.Role{session.RoleCustomer, session.RoleFarmer, session.RoleAdmin}

// AdminProps feeds the back office. Only the slice for Tab is filled.
type AdminProps struct {
	Allowed       bool
	Tab           app.AdminTab
	Tabs          []app.AdminTab
	Page          int
	TotalPages    int
	Total         int
	Dashboard     *marketapi.DashboardStats
	Users         []marketapi.User
	Products      []marketapi.Product
	SupplierNames map[int64]string
	Farms         []marketapi.Farm
	Reviews       []marketapi.Review
	Orders        []marketapi.Order
	Categories    []marketapi.Category
	Roles         []session.Role
	OrderStatuses []string
}

func (s *Site) renderAdmin(ctx context.Context, st *app.State) (any, error) {
	if !st.Session.IsAdmin() {
		return AdminProps{}, nil
	}
	a := &st.Admin
	props := AdminProps{
		Allowed:       true,
		Tab:           a.Tab,
		Tabs:          app.AdminTabs,
		Roles:         Roles,
		OrderStatuses: OrderStatuses,
	}

	var (
		total, pages int
		err          error
	)
	switch a.Tab {
	case app.TabUsers:
		var p marketapi.Page[marketapi.User]
		p, err = st.API.AdminUsers(ctx, a.Page, a.PageSize)
		props.Users, total, pages = p.Items, p.Total, p.TotalPages
	case app.TabProducts:
		var p marketapi.Page[marketapi.Product]
		p, err = st.API.AdminProducts(ctx, a.Page, a.PageSize)
		props.Products, total, pages = p.Items, p.Total, p.TotalPages
		props.SupplierNames = farmNames(st.Cache.Suppliers(ctx))
	case app.TabSuppliers:
		var p marketapi.Page[marketapi.Farm]
		p, err = st.API.AdminFarms(ctx, a.Page, a.PageSize)
		props.Farms, total, pages = p.Items, p.Total, p.TotalPages
	case app.TabReviews:
		var p marketapi.Page[marketapi.Review]
		p, err = st.API.AdminReviews(ctx, a.Page, a.PageSize)
		props.Reviews, total, pages = p.Items, p.Total, p.TotalPages
	case app.TabOrders:
		var p marketapi.Page[marketapi.Order]
		p, err = st.API.AdminOrders(ctx, a.Page, a.PageSize)
		props.Orders, total, pages = p.Items, p.Total, p.TotalPages
	case app.TabCategories:
		props.Categories = st.Cache.Categories(ctx)
	default:
		props.Dashboard, err = st.API.AdminDashboard(ctx)
	}
	if a.Tab.Paged() && err == nil {
		a.SetTotalPages(pages)
	}
	props.Page, props.TotalPages, props.Total = a.Page, a.TotalPages, total
	return props, err
}

// SwitchAdminTab activates tab on its first page.
func (s *Site) SwitchAdminTab(ctx context.Context, st *app.State, tab string) router.View {
	if t, ok := app.ParseAdminTab(tab); ok {
		st.Admin.SwitchTab(t)
	}
	return s.Navigate(ctx, st, string(router.Admin), 0)
}

// AdminPage moves the active listing one page forward (dir > 0) or back.
// Moving past either end is a no-op.
func (s *Site) AdminPage(ctx context.Context, st *app.State, dir int) router.View {
	switch {
	case dir > 0:
		st.Admin.Next()
	case dir < 0:
		st.Admin.Prev()
	}
	return s.Navigate(ctx, st, string(router.Admin), 0)
}

// SetUserRole changes a user's role and re-renders the users tab.
func (s *Site) SetUserRole(ctx context.Context, st *app.State, userID int64, role string) router.View {
	if !st.Session.IsAdmin() {
		return s.Refresh(ctx, st)
	}
	r := session.ParseRole(role)
	if r == "" {
		st.Toasts.Error("Role not changed", "Unknown role "+role)
		return s.Refresh(ctx, st)
	}
	if err := st.API.AdminSetUserRole(ctx, userID, r); err != nil {
		s.fail(st, "Role not changed", err)
		return s.Refresh(ctx, st)
	}
	st.Toasts.Success("Role updated", "")
	return s.Refresh(ctx, st)
}

func (s *Site) DeleteUser(ctx context.Context, st *app.State, userID int64) router.View {
	if !st.Session.IsAdmin() {
		return s.Refresh(ctx, st)
	}
	if err := st.API.AdminDeleteUser(ctx, userID); err != nil {
		s.fail(st, "User not deleted", err)
		return s.Refresh(ctx, st)
	}
	st.Toasts.Success("User deleted", "")
	return s.Refresh(ctx, st)
}

// AdminDelete removes a product, farm or review from the back office.
func (s *Site) AdminDelete(ctx context.Context, st *app.State, kind string, id int64) router.View {
	if !st.Session.IsAdmin() {
		return s.Refresh(ctx, st)
	}
	var err error
	switch marketapi.AdminResource(kind) {
	case marketapi.AdminProducts:
		err = st.API.AdminDeleteProduct(ctx, id)
	case marketapi.AdminFarms:
		if err = st.API.AdminDeleteFarm(ctx, id); err == nil {
			st.Cache.ResetSuppliers()
		}
	case marketapi.AdminReviews:
		err = st.API.AdminDeleteReview(ctx, id)
	default:
		st.Toasts.Error("Delete failed", "Unknown item kind "+kind)
		return s.Refresh(ctx, st)
	}
	if err != nil {
		s.fail(st, "Delete failed", err)
		return s.Refresh(ctx, st)
	}
	st.Toasts.Success("Deleted", "")
	return s.Refresh(ctx, st)
}

func (s *Site) SetOrderStatus(ctx context.Context, st *app.State, orderID int64, status string) router.View {
	if !st.Session.IsAdmin() {
		return s.Refresh(ctx, st)
	}
	if !knownStatus(status) {
		st.Toasts.Error("Status not changed", "Unknown status "+status)
		return s.Refresh(ctx, st)
	}
	if err := st.API.AdminSetOrderStatus(ctx, orderID, status); err != nil {
		s.fail(st, "Status not changed", err)
		return s.Refresh(ctx, st)
	}
	st.Toasts.Success("Order updated", "")
	return s.Refresh(ctx, st)
}

func knownStatus(status string) bool {
	for _, s := range OrderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// CreateCategory adds a category and drops the cached list.
func (s *Site) CreateCategory(ctx context.Context, st *app.State, name string) router.View {
	if !st.Session.IsAdmin() {
		return s.Refresh(ctx, st)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		st.Toasts.Error("Category not created", "Name must not be empty")
		return s.Refresh(ctx, st)
	}
	if err := st.API.CreateCategory(ctx, name); err != nil {
		s.fail(st, "Category not created", err)
		return s.Refresh(ctx, st)
	}
	st.Cache.ResetCategories()
	st.Toasts.Success("Category created", "")
	return s.Refresh(ctx, st)
}

func (s *Site) DeleteCategory(ctx context.Context, st *app.State, id int64) router.View {
	if !st.Session.IsAdmin() {
		return s.Refresh(ctx, st)
	}
	if err := st.API.DeleteCategory(ctx, id); err != nil {
		s.fail(st, "Category not deleted", err)
		return s.Refresh(ctx, st)
	}
	st.Cache.ResetCategories()
	st.Toasts.Success("Category deleted", "")
	return s.Refresh(ctx, st)
}

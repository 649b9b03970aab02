package app

// AdminTab names a back-office view.
type AdminTab string

const (
	TabDashboard  AdminTab = "dashboard"
	TabUsers      AdminTab = "users"
	TabProducts   AdminTab = "products"
	TabSuppliers  AdminTab = "suppliers"
	TabReviews    AdminTab = "reviews"
	TabOrders     AdminTab = "orders"
	TabCategories AdminTab = "categories"
)

// AdminTabs is the tab order shown in the panel.
var AdminTabs = []AdminTab{TabDashboard, TabUsers, TabProducts, TabSuppliers, TabReviews, TabOrders, TabCategories}

// ParseAdminTab reports whether raw names a known tab.
func ParseAdminTab(raw string) (AdminTab, bool) {
	for _, t := range AdminTabs {
		if string(t) == raw {
			return t, true
		}
	}
	return "", false
}

// Paged reports whether the tab lists a paginated resource.
func (t AdminTab) Paged() bool {
	switch t {
	case TabUsers, TabProducts, TabSuppliers, TabReviews, TabOrders:
		return true
	}
	return false
}

// AdminListState is the pagination cursor of the active admin tab.
type AdminListState struct {
	Tab        AdminTab
	Page       int
	PageSize   int
	TotalPages int
}

func NewAdminListState(pageSize int) AdminListState {
	if pageSize <= 0 {
		pageSize = 10
	}
	return AdminListState{Tab: TabDashboard, Page: 1, PageSize: pageSize, TotalPages: 1}
}

// SwitchTab activates tab and rewinds to the first page.
func (a *AdminListState) SwitchTab(tab AdminTab) {
	a.Tab = tab
	a.Page = 1
	a.TotalPages = 1
}

// SetTotalPages records the bound reported by the last listing.
func (a *AdminListState) SetTotalPages(n int) {
	if n < 1 {
		n = 1
	}
	a.TotalPages = n
	if a.Page > n {
		a.Page = n
	}
}

// Next advances one page; it reports false at the last page.
func (a *AdminListState) Next() bool {
	if a.Page >= a.TotalPages {
		return false
	}
	a.Page++
	return true
}

// Prev goes back one page; it reports false on the first page.
func (a *AdminListState) Prev() bool {
	if a.Page <= 1 {
		return false
	}
	a.Page--
	return true
}

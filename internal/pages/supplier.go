package pages

import (
	"context"
	"strings"

	"example.com/farmstand/internal/app"
	"example.com/farmstand/internal/marketapi"
	"example.com/farmstand/internal/router"
)

// SupplierPanelProps feeds the farmer's own panel. Farm is nil until the
// farmer has applied.
type SupplierPanelProps struct {
	Allowed    bool
	Farm       *marketapi.Farm
	Products   []marketapi.Product
	Categories []marketapi.Category
}

func (s *Site) renderSupplierPanel(ctx context.Context, st *app.State) (any, error) {
	id, ok := st.Session.Current()
	if !ok || !st.Session.IsSupplier() {
		return SupplierPanelProps{}, nil
	}
	props := SupplierPanelProps{Allowed: true, Categories: st.Cache.Categories(ctx)}
	farm, err := s.ownFarm(ctx, st, id.UserID)
	if err != nil {
		return props, err
	}
	props.Farm = farm
	if farm == nil || !farm.Approved {
		return props, nil
	}
	products, err := st.API.Products(ctx)
	if err != nil {
		return props, err
	}
	for _, p := range products {
		if p.SupplierID == farm.ID {
			props.Products = append(props.Products, p)
		}
	}
	return props, nil
}

// ownFarm reads the farm list fresh; the cache may predate an approval.
func (s *Site) ownFarm(ctx context.Context, st *app.State, userID int64) (*marketapi.Farm, error) {
	farms, err := st.API.Farms(ctx)
	if err != nil {
		return nil, err
	}
	for i := range farms {
		if farms[i].OwnerID == userID {
			return &farms[i], nil
		}
	}
	return nil, nil
}

// FarmInput is the farm application and edit form.
type FarmInput struct {
	Name        string
	Location    string
	Description string
	Image       *marketapi.FilePart
}

func (in FarmInput) form() (marketapi.FarmForm, bool) {
	f := marketapi.FarmForm{
		Name:        strings.TrimSpace(in.Name),
		Location:    strings.TrimSpace(in.Location),
		Description: strings.TrimSpace(in.Description),
	}
	return f, f.Name != "" && f.Location != ""
}

// ApplyFarm submits a farm application for review.
func (s *Site) ApplyFarm(ctx context.Context, st *app.State, in FarmInput) router.View {
	if !st.Session.LoggedIn() {
		st.OpenAuthModal()
		return s.Refresh(ctx, st)
	}
	form, ok := in.form()
	if !ok {
		st.Toasts.Error("Application not sent", "Name and location are required")
		return s.Refresh(ctx, st)
	}
	if err := st.API.ApplyFarm(ctx, form, in.Image); err != nil {
		s.fail(st, "Application not sent", err)
		return s.Refresh(ctx, st)
	}
	st.Cache.ResetSuppliers()
	st.Toasts.Success("Application sent", "An administrator will review your farm")
	return s.Refresh(ctx, st)
}

// UpdateFarm edits the farmer's own farm.
func (s *Site) UpdateFarm(ctx context.Context, st *app.State, in FarmInput) router.View {
	id, ok := st.Session.Current()
	if !ok || !st.Session.IsSupplier() {
		return s.Refresh(ctx, st)
	}
	form, valid := in.form()
	if !valid {
		st.Toasts.Error("Farm not updated", "Name and location are required")
		return s.Refresh(ctx, st)
	}
	farm, err := s.ownFarm(ctx, st, id.UserID)
	if err != nil || farm == nil {
		if err != nil {
			s.fail(st, "Farm not updated", err)
		} else {
			st.Toasts.Error("Farm not updated", "You have no farm yet")
		}
		return s.Refresh(ctx, st)
	}
	if err := st.API.UpdateFarm(ctx, farm.ID, form, in.Image); err != nil {
		s.fail(st, "Farm not updated", err)
		return s.Refresh(ctx, st)
	}
	st.Cache.ResetSuppliers()
	st.Toasts.Success("Farm updated", "")
	return s.Refresh(ctx, st)
}

// ProductInput is the farmer's new-product form.
type ProductInput struct {
	Name        string
	Price       float64
	Unit        string
	Category    string
	Description string
	Image       *marketapi.FilePart
}

// AddProduct lists a product under the farmer's approved farm.
func (s *Site) AddProduct(ctx context.Context, st *app.State, in ProductInput) router.View {
	id, ok := st.Session.Current()
	if !ok || !st.Session.IsSupplier() {
		return s.Refresh(ctx, st)
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Price <= 0 {
		st.Toasts.Error("Product not added", "Name and a positive price are required")
		return s.Refresh(ctx, st)
	}
	farm, err := s.ownFarm(ctx, st, id.UserID)
	if err != nil {
		s.fail(st, "Product not added", err)
		return s.Refresh(ctx, st)
	}
	if farm == nil || !farm.Approved {
		st.Toasts.Error("Product not added", "Your farm is not approved yet")
		return s.Refresh(ctx, st)
	}
	form := marketapi.ProductForm{
		Name:        in.Name,
		Price:       in.Price,
		Unit:        strings.TrimSpace(in.Unit),
		Category:    strings.TrimSpace(in.Category),
		Description: strings.TrimSpace(in.Description),
		SupplierID:  farm.ID,
	}
	if err := st.API.CreateProduct(ctx, form, in.Image); err != nil {
		s.fail(st, "Product not added", err)
		return s.Refresh(ctx, st)
	}
	st.Toasts.Success("Product added", "")
	return s.Refresh(ctx, st)
}

func (s *Site) DeleteSupplierProduct(ctx context.Context, st *app.State, productID int64) router.View {
	if !st.Session.IsSupplier() {
		return s.Refresh(ctx, st)
	}
	if err := st.API.DeleteProduct(ctx, productID); err != nil {
		s.fail(st, "Product not deleted", err)
		return s.Refresh(ctx, st)
	}
	st.Toasts.Success("Product deleted", "")
	return s.Refresh(ctx, st)
}

package pages

import (
	"context"

	"golang.org/x/sync/errgroup"

	"example.com/farmstand/internal/app"
	"example.com/farmstand/internal/marketapi"
	"example.com/farmstand/internal/router"
)

const (
	featuredSuppliers = 3
	newProducts       = 4
	homeProducts      = 8
)

// HomeProps feeds the landing page. Each block degrades on its own.
type HomeProps struct {
	LoggedIn       bool
	Featured       []marketapi.Farm
	NewProducts    []ProductCard
	Products       []ProductCard
	Filters        []string
	Selected       string
	ProductsFailed bool
}

func (s *Site) renderHome(ctx context.Context, st *app.State) (any, error) {
	props := HomeProps{LoggedIn: st.Session.LoggedIn(), Selected: st.CategoryFilter}

	var (
		g          errgroup.Group
		farms      []marketapi.Farm
		products   []marketapi.Product
		categories []marketapi.Category
	)
	g.Go(func() error {
		farms = st.Cache.Suppliers(ctx)
		return nil
	})
	g.Go(func() error {
		var err error
		products, err = st.API.Products(ctx)
		return err
	})
	g.Go(func() error {
		categories = st.Cache.Categories(ctx)
		return nil
	})
	// Featured suppliers and filters still show when only products failed.
	err := g.Wait()

	for _, f := range farms {
		if f.Featured && len(props.Featured) < featuredSuppliers {
			props.Featured = append(props.Featured, f)
		}
	}
	props.Filters = categoryFilters(categories)
	if err != nil {
		s.logger.Warn("home products failed", "error", err)
		props.ProductsFailed = true
		return props, nil
	}
	props.NewProducts = productCards(st, newest(products, newProducts), categories)
	props.Products = limit(filterCards(productCards(st, products, categories), st.CategoryFilter), homeProducts)
	return props, nil
}

// ProductsProps feeds the catalog page.
type ProductsProps struct {
	LoggedIn bool
	Products []ProductCard
	Filters  []string
	Selected string
}

func (s *Site) renderProducts(ctx context.Context, st *app.State) (any, error) {
	var (
		g          errgroup.Group
		products   []marketapi.Product
		categories []marketapi.Category
	)
	g.Go(func() error {
		var err error
		products, err = st.API.Products(ctx)
		return err
	})
	g.Go(func() error {
		categories = st.Cache.Categories(ctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return ProductsProps{}, err
	}
	return ProductsProps{
		LoggedIn: st.Session.LoggedIn(),
		Products: filterCards(productCards(st, products, categories), st.CategoryFilter),
		Filters:  categoryFilters(categories),
		Selected: st.CategoryFilter,
	}, nil
}

// FilterCategory selects a category and re-renders the current listing.
func (s *Site) FilterCategory(ctx context.Context, st *app.State, category string) router.View {
	if category == "" {
		category = app.AllCategories
	}
	st.CategoryFilter = category
	return s.Refresh(ctx, st)
}

// SuppliersProps feeds the supplier directory.
type SuppliersProps struct {
	Suppliers []marketapi.Farm
}

func (s *Site) renderSuppliers(ctx context.Context, st *app.State) (any, error) {
	return SuppliersProps{Suppliers: st.Cache.Suppliers(ctx)}, nil
}

// SupplierDetailProps feeds one supplier's page.
type SupplierDetailProps struct {
	LoggedIn bool
	Supplier *marketapi.Farm
	Products []marketapi.Product
	Reviews  []marketapi.Review
}

func (s *Site) renderSupplierDetail(ctx context.Context, st *app.State) (any, error) {
	id := st.Nav.Param
	props := SupplierDetailProps{LoggedIn: st.Session.LoggedIn()}
	if id <= 0 {
		return props, nil
	}

	var (
		products []marketapi.Product
		reviews  []marketapi.Review
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		farm, err := st.API.Farm(gctx, id)
		if marketapi.IsNotFound(err) {
			return nil
		}
		props.Supplier = farm
		return err
	})
	g.Go(func() error {
		var err error
		products, err = st.API.Products(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		reviews, err = st.API.Reviews(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return props, err
	}
	if props.Supplier == nil {
		return props, nil
	}
	for _, p := range products {
		if p.SupplierID == id {
			props.Products = append(props.Products, p)
		}
	}
	for _, r := range reviews {
		if r.FarmID == id {
			props.Reviews = append(props.Reviews, r)
		}
	}
	return props, nil
}

// ProductDetailProps feeds one product's page.
type ProductDetailProps struct {
	LoggedIn bool
	Product  *marketapi.Product
	Supplier *marketapi.Farm
	InCart   int
	Reviews  []marketapi.Review
}

func (s *Site) renderProductDetail(ctx context.Context, st *app.State) (any, error) {
	id := st.Nav.Param
	props := ProductDetailProps{LoggedIn: st.Session.LoggedIn()}
	if id <= 0 {
		return props, nil
	}

	var (
		farms   []marketapi.Farm
		reviews []marketapi.Review
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		product, err := st.API.Product(gctx, id)
		if marketapi.IsNotFound(err) {
			return nil
		}
		props.Product = product
		return err
	})
	g.Go(func() error {
		farms = st.Cache.Suppliers(gctx)
		return nil
	})
	g.Go(func() error {
		var err error
		reviews, err = st.API.Reviews(gctx)
		if err != nil {
			s.logger.Warn("product reviews failed", "product_id", id, "error", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return props, err
	}
	if props.Product == nil {
		return props, nil
	}
	props.Supplier = findFarm(farms, props.Product.SupplierID)
	props.InCart = st.Cart.Quantity(id)
	for _, r := range reviews {
		if r.ProductID == id {
			props.Reviews = append(props.Reviews, r)
		}
	}
	return props, nil
}

// SubmitReview rates the supplier or product currently shown.
func (s *Site) SubmitReview(ctx context.Context, st *app.State, rating int, comment string) router.View {
	if !st.Session.LoggedIn() {
		st.OpenAuthModal()
		return s.Refresh(ctx, st)
	}
	if rating < 1 || rating > 5 {
		st.Toasts.Error("Review not sent", "Rating must be between 1 and 5")
		return s.Refresh(ctx, st)
	}
	review := marketapi.NewReview{Rating: rating, Comment: comment}
	switch router.PageID(st.Nav.Page) {
	case router.SupplierDetail:
		review.FarmID, review.SupplierID = st.Nav.Param, st.Nav.Param
	case router.ProductDetail:
		review.ProductID = st.Nav.Param
	default:
		st.Toasts.Error("Review not sent", "Open a supplier or a product first")
		return s.Refresh(ctx, st)
	}
	if err := st.API.CreateReview(ctx, review); err != nil {
		s.fail(st, "Review not sent", err)
		return s.Refresh(ctx, st)
	}
	st.Cache.ResetSuppliers()
	st.Toasts.Success("Review published", "")
	return s.Refresh(ctx, st)
}

// SubscriptionsProps feeds the plans page.
type SubscriptionsProps struct {
	LoggedIn   bool
	Plans      []marketapi.Plan
	Subscribed map[int64]bool
}

func (s *Site) renderSubscriptions(ctx context.Context, st *app.State) (any, error) {
	props := SubscriptionsProps{LoggedIn: st.Session.LoggedIn(), Subscribed: map[int64]bool{}}
	var subs []marketapi.UserSubscription

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		props.Plans, err = st.API.SubscriptionPlans(gctx)
		return err
	})
	if props.LoggedIn {
		g.Go(func() error {
			var err error
			subs, err = st.API.UserSubscriptions(gctx)
			if err != nil {
				s.logger.Warn("user subscriptions failed", "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return props, err
	}
	for _, sub := range subs {
		props.Subscribed[sub.PlanID] = true
	}
	return props, nil
}

// Subscribe activates a plan for the signed-in shopper.
func (s *Site) Subscribe(ctx context.Context, st *app.State, planID int64) router.View {
	if !st.Session.LoggedIn() {
		st.OpenAuthModal()
		return s.Refresh(ctx, st)
	}
	if err := st.API.Subscribe(ctx, planID); err != nil {
		s.fail(st, "Subscription failed", err)
		return s.Refresh(ctx, st)
	}
	st.Toasts.Success("Subscription activated", "")
	return s.Refresh(ctx, st)
}

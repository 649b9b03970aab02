package pages

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"example.com/farmstand/internal/app"
	"example.com/farmstand/internal/checkout"
	"example.com/farmstand/internal/marketapi"
	"example.com/farmstand/internal/router"
)

// PaymentMethods are the options offered at checkout.
var PaymentMethods = []string{"card", "cash", "online"}

// CartRow is one cart line joined with its product.
type CartRow struct {
	Product  marketapi.Product
	Quantity int
	Subtotal float64
}

// CartProps feeds the cart page.
type CartProps struct {
	LoggedIn       bool
	Rows           []CartRow
	Total          float64
	Address        string
	PaymentMethods []string
}

func (s *Site) renderCart(ctx context.Context, st *app.State) (any, error) {
	id, ok := st.Session.Current()
	if !ok {
		return CartProps{}, nil
	}
	rows, total, err := s.loadCart(ctx, st)
	if err != nil {
		return CartProps{LoggedIn: true}, err
	}
	return CartProps{
		LoggedIn:       true,
		Rows:           rows,
		Total:          total,
		Address:        id.Address,
		PaymentMethods: PaymentMethods,
	}, nil
}

// loadCart reads the cart and the catalog in parallel, refreshes the cart
// slice and joins the two.
func (s *Site) loadCart(ctx context.Context, st *app.State) ([]CartRow, float64, error) {
	var (
		lines    []marketapi.CartLine
		products []marketapi.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lines, err = st.API.Cart(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		products, err = st.API.Products(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	if !st.Session.LoggedIn() {
		return nil, 0, nil
	}
	st.Cart.Set(lines)

	byID := make(map[int64]marketapi.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	var (
		rows  []CartRow
		total float64
	)
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			continue
		}
		sub := p.Price * float64(l.Quantity)
		rows = append(rows, CartRow{Product: p, Quantity: l.Quantity, Subtotal: sub})
		total += sub
	}
	return rows, total, nil
}

// AddToCart puts quantity units of a product in the cart. Anonymous shoppers
// get the auth dialog and no request is made.
func (s *Site) AddToCart(ctx context.Context, st *app.State, productID int64, quantity int) router.View {
	if !st.Session.LoggedIn() {
		st.OpenAuthModal()
		return s.Refresh(ctx, st)
	}
	if quantity < 1 {
		quantity = 1
	}
	if err := st.API.AddCartItem(ctx, productID, quantity); err != nil {
		s.fail(st, "Could not add to cart", err)
		return s.Refresh(ctx, st)
	}
	st.RefreshCart(ctx)
	st.Toasts.Success("Added to cart", "")
	return s.Refresh(ctx, st)
}

// UpdateCartQuantity changes a line by delta. A result of zero or below
// removes the line instead of sending a non-positive quantity.
func (s *Site) UpdateCartQuantity(ctx context.Context, st *app.State, productID int64, delta int) router.View {
	if !st.Session.LoggedIn() {
		st.OpenAuthModal()
		return s.Refresh(ctx, st)
	}
	lines := st.RefreshCart(ctx)
	current := 0
	found := false
	for _, l := range lines {
		if l.ProductID == productID {
			current, found = l.Quantity, true
			break
		}
	}
	if !found {
		return s.Refresh(ctx, st)
	}
	next := current + delta
	if next <= 0 {
		return s.RemoveFromCart(ctx, st, productID)
	}
	if err := st.API.UpdateCartItem(ctx, productID, next); err != nil {
		s.fail(st, "Could not update quantity", err)
		return s.Refresh(ctx, st)
	}
	st.RefreshCart(ctx)
	return s.Refresh(ctx, st)
}

// SetCartQuantity sets an absolute quantity; zero or below removes the line.
func (s *Site) SetCartQuantity(ctx context.Context, st *app.State, productID int64, quantity int) router.View {
	if quantity <= 0 {
		return s.RemoveFromCart(ctx, st, productID)
	}
	if err := st.API.UpdateCartItem(ctx, productID, quantity); err != nil {
		s.fail(st, "Could not update quantity", err)
		return s.Refresh(ctx, st)
	}
	st.RefreshCart(ctx)
	return s.Refresh(ctx, st)
}

func (s *Site) RemoveFromCart(ctx context.Context, st *app.State, productID int64) router.View {
	if err := st.API.RemoveCartItem(ctx, productID); err != nil {
		s.fail(st, "Could not remove item", err)
		return s.Refresh(ctx, st)
	}
	st.RefreshCart(ctx)
	st.Toasts.Success("Item removed from cart", "")
	return s.Refresh(ctx, st)
}

// Checkout places the order for the current cart. The address is required
// and an empty cart never reaches POST /orders.
func (s *Site) Checkout(ctx context.Context, st *app.State, address, paymentMethod string) router.View {
	if !st.Session.LoggedIn() {
		st.OpenAuthModal()
		return s.Refresh(ctx, st)
	}
	address = strings.TrimSpace(address)
	if address == "" {
		st.Toasts.Error("Checkout failed", "Please enter a delivery address")
		return s.Refresh(ctx, st)
	}
	if paymentMethod == "" {
		paymentMethod = PaymentMethods[0]
	}

	var (
		lines    []marketapi.CartLine
		products []marketapi.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lines, err = st.API.Cart(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		products, err = st.API.Products(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.fail(st, "Checkout failed", err)
		return s.Refresh(ctx, st)
	}
	// A 401 reads as an empty cart; the hook has already signed out and told
	// the shopper.
	if !st.Session.LoggedIn() {
		return s.Refresh(ctx, st)
	}
	if len(lines) == 0 {
		st.Cart.Reset()
		st.Toasts.Error("Checkout failed", "Your cart is empty")
		return s.Refresh(ctx, st)
	}

	input := checkout.Input{
		BrowserID:       st.ID,
		DeliveryAddress: address,
		PaymentMethod:   paymentMethod,
	}
	byID := make(map[int64]marketapi.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, l := range lines {
		p := byID[l.ProductID]
		if input.FarmID == 0 {
			input.FarmID = p.SupplierID
		}
		input.Items = append(input.Items, marketapi.OrderItem{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: p.Price})
		input.Total += p.Price * float64(l.Quantity)
	}

	result, err := s.checkout.PlaceOrder(ctx, input)
	if err != nil {
		if errors.Is(err, checkout.ErrEmptyCart) || errors.Is(err, checkout.ErrAddressRequired) {
			st.Toasts.Error("Checkout failed", err.Error())
		} else {
			s.fail(st, "Checkout failed", err)
		}
		return s.Refresh(ctx, st)
	}
	s.logger.Info("order placed", "browser_id", st.ID, "order_id", result.OrderID, "workflow_id", result.WorkflowID)
	st.RefreshCart(ctx)
	st.Toasts.Success("Order placed", "Track its status in your profile.")
	return s.Navigate(ctx, st, string(router.Profile), 0)
}

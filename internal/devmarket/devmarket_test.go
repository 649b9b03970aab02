package devmarket

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/farmstand/internal/logging"
	"example.com/farmstand/internal/marketapi"
	"example.com/farmstand/internal/sqliteutil"
)

const (
	adminEmail    = "admin@farmstand.test"
	adminPassword = "admin-pass"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqliteutil.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := NewStore(db)
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Seed(ctx, adminEmail, adminPassword))
	return store
}

func newTestClient(t *testing.T, store *Store) *marketapi.Client {
	t.Helper()
	srv := httptest.NewServer(NewServer(store, logging.Discard()).Router())
	t.Cleanup(srv.Close)
	return marketapi.New(marketapi.Options{BaseURL: srv.URL})
}

func signUp(t *testing.T, c *marketapi.Client, email string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.Register(ctx, marketapi.RegisterInput{
		Email: email, Username: "Robin", Password: "pw", Address: "1 Lane",
	}))
	_, err := c.Login(ctx, email, "pw")
	require.NoError(t, err)
}

func TestSeedIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Seed(ctx, adminEmail, adminPassword))

	d, err := store.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1+len(farmNames), d.TotalUsers)
	assert.Equal(t, len(farmNames), d.TotalFarms)
	assert.Equal(t, 3*len(farmNames), d.TotalProducts)
}

func TestEnsurePageSize(t *testing.T) {
	page, size := EnsurePageSize(0, 500)
	assert.Equal(t, 1, page)
	assert.Equal(t, maxPageSize, size)

	page, size = EnsurePageSize(3, 0)
	assert.Equal(t, 3, page)
	assert.Equal(t, 10, size)
}

func TestLogin_WrongPassword(t *testing.T) {
	c := newTestClient(t, newTestStore(t))
	_, err := c.Login(context.Background(), adminEmail, "nope")
	require.Error(t, err)
	assert.Equal(t, "Incorrect email or password", marketapi.Message(err))
}

func TestRegister_DuplicateEmail(t *testing.T) {
	c := newTestClient(t, newTestStore(t))
	ctx := context.Background()
	in := marketapi.RegisterInput{Email: "a@b.test", Username: "A", Password: "pw"}
	require.NoError(t, c.Register(ctx, in))
	err := c.Register(ctx, in)
	require.Error(t, err)
	assert.Equal(t, "Email already registered", marketapi.Message(err))
}

func TestShoppingFlow(t *testing.T) {
	store := newTestStore(t)
	c := newTestClient(t, store)
	ctx := context.Background()

	anon, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Nil(t, anon)

	signUp(t, c, "robin@farmstand.test")
	me, err := c.Me(ctx)
	require.NoError(t, err)
	require.NotNil(t, me)
	assert.Equal(t, "Robin", me.Name)
	assert.Equal(t, "customer", string(me.Role))

	products, err := c.Products(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, products)
	p := products[0]
	assert.NotZero(t, p.SupplierID)
	assert.NotEmpty(t, p.Category)

	require.NoError(t, c.AddCartItem(ctx, p.ID, 1))
	require.NoError(t, c.AddCartItem(ctx, p.ID, 1))
	require.NoError(t, c.UpdateCartItem(ctx, p.ID, 3))
	lines, err := c.Cart(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)

	order, err := c.CreateOrder(ctx, marketapi.NewOrder{
		FarmID:          p.SupplierID,
		DeliveryAddress: "1 Lane",
		PaymentMethod:   "card",
		TotalAmount:     1,
		Items:           []marketapi.OrderItem{{ProductID: p.ID, Quantity: 3, UnitPrice: 0.01}},
	})
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.InDelta(t, p.Price*3, order.Total, 0.001, "prices come from the catalog")
	assert.Equal(t, "pending", order.Status)

	require.NoError(t, c.ClearCart(ctx))
	lines, err = c.Cart(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)

	orders, err := c.Orders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.ID, orders[0].ID)

	after, err := c.Product(ctx, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, p.Stock-3, after.Stock, 0.001)
}

func TestCreateOrder_NotEnoughStock(t *testing.T) {
	store := newTestStore(t)
	c := newTestClient(t, store)
	ctx := context.Background()
	signUp(t, c, "robin@farmstand.test")

	products, err := c.Products(ctx)
	require.NoError(t, err)
	p := products[0]

	_, err = c.CreateOrder(ctx, marketapi.NewOrder{
		DeliveryAddress: "1 Lane",
		PaymentMethod:   "card",
		Items:           []marketapi.OrderItem{{ProductID: p.ID, Quantity: 10000}},
	})
	require.Error(t, err)
	assert.Equal(t, "Not enough stock for "+p.Name, marketapi.Message(err))

	orders, err := c.Orders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestAdminRoutes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("customer is denied", func(t *testing.T) {
		c := newTestClient(t, store)
		signUp(t, c, "eve@farmstand.test")
		err := c.CreateCategory(ctx, "Honey")
		var apiErr *marketapi.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 403, apiErr.Status)
		assert.Equal(t, "Admin access required", apiErr.Message)
		stats, err := c.AdminDashboard(ctx)
		require.NoError(t, err)
		assert.Nil(t, stats)
	})

	t.Run("admin manages users and orders", func(t *testing.T) {
		c := newTestClient(t, store)
		_, err := c.Login(ctx, adminEmail, adminPassword)
		require.NoError(t, err)

		stats, err := c.AdminDashboard(ctx)
		require.NoError(t, err)
		require.NotNil(t, stats)
		assert.Positive(t, stats.TotalProducts)

		users, err := c.AdminUsers(ctx, 1, 2)
		require.NoError(t, err)
		assert.Len(t, users.Items, 2)
		assert.Greater(t, users.TotalPages, 1)

		products, err := c.AdminProducts(ctx, 2, 5)
		require.NoError(t, err)
		assert.Equal(t, 3*len(farmNames), products.Total)
		assert.Len(t, products.Items, 3*len(farmNames)-5)

		target := users.Items[0]
		require.NoError(t, c.AdminSetUserRole(ctx, target.ID, "farmer"))
		changed, err := store.User(ctx, target.ID)
		require.NoError(t, err)
		assert.Equal(t, "farmer", changed.Role)

		require.NoError(t, c.CreateCategory(ctx, "Honey"))
		err = c.CreateCategory(ctx, "Honey")
		require.Error(t, err)
		assert.Contains(t, marketapi.Message(err), "already exists")
	})
}

func TestSupplierFlow(t *testing.T) {
	store := newTestStore(t)
	c := newTestClient(t, store)
	ctx := context.Background()
	signUp(t, c, "grower@farmstand.test")

	form := marketapi.ProductForm{Name: "Kale", Price: 3, Unit: "bunch", Category: "Vegetables"}
	err := c.CreateProduct(ctx, form, nil)
	require.Error(t, err)
	assert.Contains(t, marketapi.Message(err), "must be approved")

	require.NoError(t, c.ApplyFarm(ctx, marketapi.FarmForm{Name: "Kale Yard", Location: "Ithaca"}, nil))
	farms, err := c.Farms(ctx)
	require.NoError(t, err)
	var mine marketapi.Farm
	for _, f := range farms {
		if f.Name == "Kale Yard" {
			mine = f
		}
	}
	require.NotZero(t, mine.ID)
	assert.False(t, mine.Approved)

	require.NoError(t, store.ApproveFarm(ctx, mine.ID))
	require.NoError(t, c.CreateProduct(ctx, form, nil))

	products, err := c.Products(ctx)
	require.NoError(t, err)
	var kale *marketapi.Product
	for i := range products {
		if products[i].Name == "Kale" {
			kale = &products[i]
		}
	}
	require.NotNil(t, kale)
	assert.Equal(t, mine.ID, kale.SupplierID)
	assert.Equal(t, "Vegetables", kale.Category)

	require.NoError(t, c.DeleteProduct(ctx, kale.ID))
	require.NoError(t, c.CreateReview(ctx, marketapi.NewReview{FarmID: mine.ID, SupplierID: mine.ID, Rating: 4}))
	farm, err := c.Farm(ctx, mine.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, farm.Rating, 0.001)
}

func TestSubscribeTwice(t *testing.T) {
	store := newTestStore(t)
	c := newTestClient(t, store)
	ctx := context.Background()
	signUp(t, c, "sub@farmstand.test")

	plans, err := c.SubscriptionPlans(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, plans)

	require.NoError(t, c.Subscribe(ctx, plans[0].ID))
	err = c.Subscribe(ctx, plans[0].ID)
	require.Error(t, err)
	assert.Contains(t, marketapi.Message(err), "Already subscribed")

	subs, err := c.UserSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, plans[0].Name, subs[0].PlanName)
	assert.True(t, subs[0].NextDeliveryDate.After(subs[0].StartDate))
}

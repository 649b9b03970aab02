package marketapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"example.com/farmstand/internal/session"
)

// LoginResult is the login answer; the token is mirrored automatically.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	Message     string `json:"message"`
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Address  string `json:"address"`
}

// ProfileUpdate carries the editable profile fields.
type ProfileUpdate struct {
	Username string `json:"username"`
	Address  string `json:"address"`
}

// FarmForm is the farm application / edit form.
type FarmForm struct {
	Name        string
	Location    string
	Description string
}

func (f FarmForm) fields() []Field {
	return []Field{
		{Name: "name", Value: f.Name},
		{Name: "location", Value: f.Location},
		{Name: "address", Value: f.Location},
		{Name: "description", Value: f.Description},
	}
}

// ProductForm is the supplier's new-product form.
type ProductForm struct {
	Name        string
	Price       float64
	Unit        string
	Category    string
	Description string
	SupplierID  int64
}

func (p ProductForm) fields() []Field {
	fields := []Field{
		{Name: "name", Value: p.Name},
		{Name: "price", Value: strconv.FormatFloat(p.Price, 'f', -1, 64)},
		{Name: "unit", Value: p.Unit},
		{Name: "category", Value: p.Category},
		{Name: "description", Value: p.Description},
	}
	if p.SupplierID != 0 {
		id := strconv.FormatInt(p.SupplierID, 10)
		fields = append(fields, Field{Name: "supplier_id", Value: id}, Field{Name: "farm_id", Value: id})
	}
	return fields
}

// NewReview is a rating for a farm or a product.
type NewReview struct {
	FarmID int64 `json:"farm_id,omitempty"`
	// SupplierID repeats FarmID for backends that still key reviews by supplier.
	SupplierID int64  `json:"supplier_id,omitempty"`
	ProductID  int64  `json:"product_id,omitempty"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment,omitempty"`
}

// OrderItem is one ordered product.
type OrderItem struct {
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price,omitempty"`
}

// NewOrder is the checkout payload.
type NewOrder struct {
	FarmID          int64       `json:"farm_id,omitempty"`
	DeliveryAddress string      `json:"delivery_address"`
	PaymentMethod   string      `json:"payment_method"`
	TotalAmount     float64     `json:"total_amount,omitempty"`
	Items           []OrderItem `json:"items"`
}

// AdminResource names a paginated back-office listing.
type AdminResource string

const (
	AdminUsers    AdminResource = "users"
	AdminProducts AdminResource = "products"
	AdminFarms    AdminResource = "farms"
	AdminReviews  AdminResource = "reviews"
	AdminOrders   AdminResource = "orders"
)

// Auth

// Login authenticates with the marketplace. The session cookie lands in the
// client's jar and the returned token is mirrored.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	raw, err := c.Request(ctx, "/auth/login", &RequestOptions{
		Method:      http.MethodPost,
		Body:        map[string]string{"email": email, "password": password},
		NoIntercept: true,
	})
	if err != nil {
		return LoginResult{}, err
	}
	res, err := Decode[LoginResult](raw)
	if err != nil {
		return LoginResult{}, err
	}
	if res.AccessToken != "" {
		if err := c.tokens.SetToken(ctx, res.AccessToken); err != nil {
			c.logger.Warn("mirror token failed", "error", err)
		}
	}
	return res, nil
}

func (c *Client) Register(ctx context.Context, in RegisterInput) error {
	_, err := c.Request(ctx, "/auth/register", &RequestOptions{Method: http.MethodPost, Body: in, NoIntercept: true})
	return err
}

// Logout ends the server session and always drops the local token mirror.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.Request(ctx, "/auth/logout", &RequestOptions{Method: http.MethodPost})
	if clearErr := c.tokens.ClearToken(ctx); clearErr != nil {
		c.logger.Warn("clear token mirror failed", "error", clearErr)
	}
	return err
}

// Me returns the current account, or nil when the session is gone.
func (c *Client) Me(ctx context.Context) (*User, error) {
	return decodePtr[User](c.Request(ctx, "/auth/me", nil))
}

// Probe is Me for the silent startup check: a 401 never produces a toast.
func (c *Client) Probe(ctx context.Context) (*User, error) {
	return decodePtr[User](c.Request(ctx, "/auth/me", &RequestOptions{Silent: true}))
}

func (c *Client) UpdateMe(ctx context.Context, in ProfileUpdate) error {
	_, err := c.mutate(ctx, "/auth/me", &RequestOptions{Method: http.MethodPatch, Body: in})
	return err
}

// Products

func (c *Client) Products(ctx context.Context) ([]Product, error) {
	return decodeList[Product](c.Request(ctx, "/products", nil))
}

func (c *Client) Product(ctx context.Context, id int64) (*Product, error) {
	return decodePtr[Product](c.Request(ctx, fmt.Sprintf("/products/%d", id), nil))
}

func (c *Client) CreateProduct(ctx context.Context, form ProductForm, image *FilePart) error {
	_, err := c.mutate(ctx, "/products", &RequestOptions{
		Method:    http.MethodPost,
		Multipart: &Multipart{Fields: form.fields(), File: image},
	})
	return err
}

func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	_, err := c.mutate(ctx, fmt.Sprintf("/products/%d", id), &RequestOptions{Method: http.MethodDelete})
	return err
}

// Farms

func (c *Client) Farms(ctx context.Context) ([]Farm, error) {
	return decodeList[Farm](c.Request(ctx, "/farms", nil))
}

func (c *Client) Farm(ctx context.Context, id int64) (*Farm, error) {
	return decodePtr[Farm](c.Request(ctx, fmt.Sprintf("/farms/%d", id), nil))
}

// ApplyFarm submits a farm registration for admin approval.
func (c *Client) ApplyFarm(ctx context.Context, form FarmForm, image *FilePart) error {
	_, err := c.mutate(ctx, "/farms/applications", &RequestOptions{
		Method:    http.MethodPost,
		Multipart: &Multipart{Fields: form.fields(), File: image},
	})
	return err
}

func (c *Client) UpdateFarm(ctx context.Context, id int64, form FarmForm, image *FilePart) error {
	_, err := c.mutate(ctx, fmt.Sprintf("/farms/%d", id), &RequestOptions{
		Method:    http.MethodPut,
		Multipart: &Multipart{Fields: form.fields(), File: image},
	})
	return err
}

// Categories

func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	return decodeList[Category](c.Request(ctx, "/categories", nil))
}

func (c *Client) CreateCategory(ctx context.Context, name string) error {
	_, err := c.mutate(ctx, "/categories", &RequestOptions{Method: http.MethodPost, Body: map[string]string{"name": name}})
	return err
}

func (c *Client) DeleteCategory(ctx context.Context, id int64) error {
	_, err := c.mutate(ctx, fmt.Sprintf("/categories/%d", id), &RequestOptions{Method: http.MethodDelete})
	return err
}

// Cart

func (c *Client) Cart(ctx context.Context) ([]CartLine, error) {
	return decodeList[CartLine](c.Request(ctx, "/cart", nil))
}

func (c *Client) AddCartItem(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("add cart item: quantity must be positive, got %d", quantity)
	}
	_, err := c.mutate(ctx, "/cart/items", &RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]any{"product_id": productID, "quantity": quantity},
	})
	return err
}

// UpdateCartItem sets an absolute quantity. Zero or below is rejected here:
// callers must remove the line instead.
func (c *Client) UpdateCartItem(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("update cart item: quantity must be positive, got %d", quantity)
	}
	_, err := c.mutate(ctx, fmt.Sprintf("/cart/items/%d", productID), &RequestOptions{
		Method: http.MethodPut,
		Body:   map[string]int{"quantity": quantity},
	})
	return err
}

func (c *Client) RemoveCartItem(ctx context.Context, productID int64) error {
	_, err := c.mutate(ctx, fmt.Sprintf("/cart/items/%d", productID), &RequestOptions{Method: http.MethodDelete})
	return err
}

func (c *Client) ClearCart(ctx context.Context) error {
	_, err := c.mutate(ctx, "/cart/clear", &RequestOptions{Method: http.MethodDelete})
	return err
}

// Reviews

func (c *Client) Reviews(ctx context.Context) ([]Review, error) {
	return decodeList[Review](c.Request(ctx, "/reviews", nil))
}

func (c *Client) CreateReview(ctx context.Context, in NewReview) error {
	_, err := c.mutate(ctx, "/reviews", &RequestOptions{Method: http.MethodPost, Body: in})
	return err
}

// Subscriptions

func (c *Client) SubscriptionPlans(ctx context.Context) ([]Plan, error) {
	return decodeList[Plan](c.Request(ctx, "/subscriptions/plans", nil))
}

func (c *Client) UserSubscriptions(ctx context.Context) ([]UserSubscription, error) {
	return decodeList[UserSubscription](c.Request(ctx, "/subscriptions/user", nil))
}

func (c *Client) Subscribe(ctx context.Context, planID int64) error {
	_, err := c.mutate(ctx, fmt.Sprintf("/subscriptions/user/subscribe/%d", planID), &RequestOptions{Method: http.MethodPost})
	return err
}

// Orders

func (c *Client) Orders(ctx context.Context) ([]Order, error) {
	return decodeList[Order](c.Request(ctx, "/orders", nil))
}

func (c *Client) CreateOrder(ctx context.Context, in NewOrder) (*Order, error) {
	raw, err := c.mutate(ctx, "/orders", &RequestOptions{Method: http.MethodPost, Body: in})
	if err != nil {
		return nil, err
	}
	if raw == nil || !gjson.ParseBytes(raw).IsObject() {
		return nil, nil
	}
	return decodePtr[Order](raw, nil)
}

// Admin

func (c *Client) AdminDashboard(ctx context.Context) (*DashboardStats, error) {
	return decodePtr[DashboardStats](c.Request(ctx, "/admin/dashboard", nil))
}

func adminListEndpoint(resource AdminResource, page, perPage int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	return fmt.Sprintf("/admin/%s?%s", resource, q.Encode())
}

func (c *Client) AdminUsers(ctx context.Context, page, perPage int) (Page[User], error) {
	raw, err := c.Request(ctx, adminListEndpoint(AdminUsers, page, perPage), nil)
	if err != nil {
		return Page[User]{Page: page, PerPage: perPage}, err
	}
	return decodePage[User](raw, string(AdminUsers), page, perPage)
}

func (c *Client) AdminProducts(ctx context.Context, page, perPage int) (Page[Product], error) {
	raw, err := c.Request(ctx, adminListEndpoint(AdminProducts, page, perPage), nil)
	if err != nil {
		return Page[Product]{Page: page, PerPage: perPage}, err
	}
	return decodePage[Product](raw, string(AdminProducts), page, perPage)
}

func (c *Client) AdminFarms(ctx context.Context, page, perPage int) (Page[Farm], error) {
	raw, err := c.Request(ctx, adminListEndpoint(AdminFarms, page, perPage), nil)
	if err != nil {
		return Page[Farm]{Page: page, PerPage: perPage}, err
	}
	return decodePage[Farm](raw, string(AdminFarms), page, perPage)
}

func (c *Client) AdminReviews(ctx context.Context, page, perPage int) (Page[Review], error) {
	raw, err := c.Request(ctx, adminListEndpoint(AdminReviews, page, perPage), nil)
	if err != nil {
		return Page[Review]{Page: page, PerPage: perPage}, err
	}
	return decodePage[Review](raw, string(AdminReviews), page, perPage)
}

func (c *Client) AdminOrders(ctx context.Context, page, perPage int) (Page[Order], error) {
	raw, err := c.Request(ctx, adminListEndpoint(AdminOrders, page, perPage), nil)
	if err != nil {
		return Page[Order]{Page: page, PerPage: perPage}, err
	}
	return decodePage[Order](raw, string(AdminOrders), page, perPage)
}

func (c *Client) AdminSetUserRole(ctx context.Context, userID int64, role session.Role) error {
	if !role.Valid() {
		return fmt.Errorf("set user role: unknown role %q", role)
	}
	endpoint := fmt.Sprintf("/admin/users/%d/role?%s", userID, url.Values{"new_role": {string(role)}}.Encode())
	_, err := c.mutate(ctx, endpoint, &RequestOptions{Method: http.MethodPut})
	return err
}

func (c *Client) AdminDeleteUser(ctx context.Context, userID int64) error {
	_, err := c.mutate(ctx, fmt.Sprintf("/admin/users/%d", userID), &RequestOptions{Method: http.MethodDelete})
	return err
}

func (c *Client) AdminSetOrderStatus(ctx context.Context, orderID int64, status string) error {
	_, err := c.mutate(ctx, fmt.Sprintf("/admin/orders/%d/status", orderID), &RequestOptions{
		Method: http.MethodPut,
		Body:   map[string]string{"status": status},
	})
	return err
}

// AdminDelete removes a product, farm or review.
func (c *Client) AdminDelete(ctx context.Context, resource AdminResource, id int64) error {
	switch resource {
	case AdminProducts, AdminFarms, AdminReviews:
	default:
		return fmt.Errorf("admin delete: unsupported resource %q", resource)
	}
	_, err := c.mutate(ctx, fmt.Sprintf("/admin/%s/%d", resource, id), &RequestOptions{Method: http.MethodDelete})
	return err
}

func decodeList[T any](raw json.RawMessage, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	// Some listings come wrapped as {"items": [...]}.
	if r := gjson.ParseBytes(raw); r.IsObject() {
		items := r.Get("items")
		if !items.IsArray() {
			return nil, nil
		}
		raw = json.RawMessage(items.Raw)
	}
	return Decode[[]T](raw)
}

func decodePtr[T any](raw json.RawMessage, err error) (*T, error) {
	if err != nil || raw == nil {
		return nil, err
	}
	v, err := Decode[T](raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) AdminDeleteProduct(ctx context.Context, id int64) error {
	return c.AdminDelete(ctx, AdminProducts, id)
}

func (c *Client) AdminDeleteFarm(ctx context.Context, id int64) error {
	return c.AdminDelete(ctx, AdminFarms, id)
}

func (c *Client) AdminDeleteReview(ctx context.Context, id int64) error {
	return c.AdminDelete(ctx, AdminReviews, id)
}

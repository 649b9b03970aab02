package marketapi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"example.com/farmstand/internal/session"
)

// The API is loose about shapes: references arrive as bare ids or nested
// objects, roles as names or {name}, and several fields have two spellings.
// Every schema below absorbs those variants in UnmarshalJSON so nothing past
// this package branches on shape.

// User is an account as returned by /auth/me and the admin user list.
type User struct {
	ID      int64        `json:"id"`
	Name    string       `json:"name"`
	Email   string       `json:"email"`
	Address string       `json:"address,omitempty"`
	Phone   string       `json:"phone,omitempty"`
	Role    session.Role `json:"role"`
}

func (u *User) UnmarshalJSON(data []byte) error {
	r, err := parseObject(data, "user")
	if err != nil {
		return err
	}
	*u = User{
		ID:      r.Get("id").Int(),
		Name:    firstString(r, "name", "username"),
		Email:   r.Get("email").String(),
		Address: r.Get("address").String(),
		Phone:   r.Get("phone").String(),
		Role:    session.ParseRole(nameOf(r.Get("role"))),
	}
	return nil
}

// Identity converts the account into the session identity.
func (u User) Identity() session.Identity {
	return session.Identity{
		UserID:      u.ID,
		DisplayName: u.Name,
		Email:       u.Email,
		Address:     u.Address,
		Role:        u.Role,
	}
}

// Category is reference data used to filter products.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (c *Category) UnmarshalJSON(data []byte) error {
	r, err := parseObject(data, "category")
	if err != nil {
		return err
	}
	*c = Category{ID: r.Get("id").Int(), Name: firstString(r, "name", "category_name")}
	return nil
}

// Farm is a supplier.
type Farm struct {
	ID           int64   `json:"id"`
	OwnerID      int64   `json:"user_id"`
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	Location     string  `json:"location,omitempty"`
	ContactEmail string  `json:"contact_email,omitempty"`
	ContactPhone string  `json:"contact_phone,omitempty"`
	Image        string  `json:"image,omitempty"`
	Rating       float64 `json:"rating"`
	Featured     bool    `json:"featured"`
	Approved     bool    `json:"approved"`
}

func (f *Farm) UnmarshalJSON(data []byte) error {
	r, err := parseObject(data, "farm")
	if err != nil {
		return err
	}
	approved := r.Get("approved").Bool()
	if status := r.Get("status"); status.Exists() {
		approved = strings.EqualFold(status.String(), "approved")
	}
	*f = Farm{
		ID:           r.Get("id").Int(),
		OwnerID:      refID(r, "user_id", "user", "owner"),
		Name:         r.Get("name").String(),
		Description:  r.Get("description").String(),
		Location:     firstString(r, "location", "address"),
		ContactEmail: r.Get("contact_email").String(),
		ContactPhone: r.Get("contact_phone").String(),
		Image:        firstString(r, "image", "image_url"),
		Rating:       firstFloat(r, "rating", "rating_avg"),
		Featured:     r.Get("featured").Bool(),
		Approved:     approved,
	}
	return nil
}

// Product is a catalog listing.
type Product struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	CategoryID  int64   `json:"category_id,omitempty"`
	Category    string  `json:"category,omitempty"`
	SupplierID  int64   `json:"supplier_id,omitempty"`
	Unit        string  `json:"unit,omitempty"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Stock       float64 `json:"quantity"`
	Image       string  `json:"image,omitempty"`
}

func (p *Product) UnmarshalJSON(data []byte) error {
	r, err := parseObject(data, "product")
	if err != nil {
		return err
	}
	cat := r.Get("category")
	categoryID := r.Get("category_id").Int()
	categoryName := r.Get("category_name").String()
	switch {
	case cat.IsObject():
		if categoryID == 0 {
			categoryID = cat.Get("id").Int()
		}
		categoryName = cat.Get("name").String()
	case cat.Type == gjson.String:
		categoryName = cat.String()
	case cat.Type == gjson.Number && categoryID == 0:
		categoryID = cat.Int()
	}
	*p = Product{
		ID:          r.Get("id").Int(),
		Name:        r.Get("name").String(),
		CategoryID:  categoryID,
		Category:    categoryName,
		SupplierID:  refID(r, "supplier_id", "farm_id", "farm", "supplier"),
		Unit:        r.Get("unit").String(),
		Description: r.Get("description").String(),
		Price:       r.Get("price").Float(),
		Stock:       firstFloat(r, "quantity", "stock"),
		Image:       firstString(r, "image", "image_url"),
	}
	return nil
}

// CartLine is one server-owned cart row.
type CartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (l *CartLine) UnmarshalJSON(data []byte) error {
	r, err := parseObject(data, "cart line")
	if err != nil {
		return err
	}
	*l = CartLine{
		ProductID: refID(r, "product_id", "product"),
		Quantity:  int(r.Get("quantity").Int()),
	}
	return nil
}

// Review is a rating left for a farm or a product.
type Review struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	FarmID    int64     `json:"farm_id,omitempty"`
	ProductID int64     `json:"product_id,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (rv *Review) UnmarshalJSON(data []byte) error {
	r, err := parseObject(data, "review")
	if err != nil {
		return err
	}
	userName := r.Get("user_name").String()
	if u := r.Get("user"); userName == "" && u.IsObject() {
		userName = firstString(u, "username", "name")
	}
	*rv = Review{
		ID:        r.Get("id").Int(),
		UserID:    refID(r, "user_id", "user"),
		UserName:  userName,
		FarmID:    refID(r, "farm_id", "supplier_id", "farm"),
		ProductID: refID(r, "product_id", "product"),
		Rating:    int(r.Get("rating").Int()),
		Comment:   r.Get("comment").String(),
		CreatedAt: parseTime(r.Get("created_at").String()),
	}
	return nil
}

// Plan is a subscription plan offered by the marketplace.
type Plan struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	Price             float64 `json:"price"`
	DeliveryFrequency string  `json:"delivery_frequency"`
	Description       string  `json:"description,omitempty"`
}

func (p *Plan) UnmarshalJSON(data []byte) error {
	r, err := parseObject(data, "plan")
	if err != nil {
		return err
	}
	*p = Plan{
		ID:                r.Get("id").Int(),
		Name:              r.Get("name").String(),
		Price:             r.Get("price").Float(),
		DeliveryFrequency: firstString(r, "delivery_frequency", "frequency"),
		Description:       r.Get("description").String(),
	}
	return nil
}

// UserSubscription is a plan the current user is subscribed to.
type UserSubscription struct {
	ID               int64     `json:"id"`
	PlanID           int64     `json:"subscription_plan_id"`
	PlanName         string    `json:"plan_name,omitempty"`
	Status           string    `json:"status"`
	StartDate        time.Time `json:"start_date"`
	NextDeliveryDate time.Time `json:"next_delivery_date"`
}

func (s *UserSubscription) UnmarshalJSON(data []byte) error {
	r, err := parseObject(data, "subscription")
	if err != nil {
		return err
	}
	planName := r.Get("plan_name").String()
	if p := r.Get("plan"); planName == "" && p.IsObject() {
		planName = p.Get("name").String()
	}
	*s = UserSubscription{
		ID:               r.Get("id").Int(),
		PlanID:           refID(r, "subscription_plan_id", "plan_id", "plan"),
		PlanName:         planName,
		Status:           r.Get("status").String(),
		StartDate:        parseTime(r.Get("start_date").String()),
		NextDeliveryDate: parseTime(r.Get("next_delivery_date").String()),
	}
	return nil
}

// Order is a placed order.
type Order struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	UserName        string    `json:"user_name,omitempty"`
	FarmID          int64     `json:"farm_id,omitempty"`
	Status          string    `json:"status"`
	PaymentStatus   string    `json:"payment_status,omitempty"`
	DeliveryAddress string    `json:"delivery_address,omitempty"`
	Total           float64   `json:"total_amount"`
	PlacedAt        time.Time `json:"order_date"`
}

func (o *Order) UnmarshalJSON(data []byte) error {
	r, err := parseObject(data, "order")
	if err != nil {
		return err
	}
	userName := r.Get("user_name").String()
	if u := r.Get("user"); userName == "" && u.IsObject() {
		userName = firstString(u, "username", "name")
	}
	*o = Order{
		ID:              r.Get("id").Int(),
		UserID:          refID(r, "user_id", "user"),
		UserName:        userName,
		FarmID:          refID(r, "farm_id", "farm"),
		Status:          r.Get("status").String(),
		PaymentStatus:   r.Get("payment_status").String(),
		DeliveryAddress: firstString(r, "delivery_address", "address"),
		Total:           firstFloat(r, "total_amount", "total"),
		PlacedAt:        parseTime(firstString(r, "order_date", "created_at")),
	}
	return nil
}

// DashboardStats are the admin overview counters.
type DashboardStats struct {
	TotalUsers    int `json:"total_users"`
	TotalFarms    int `json:"total_farms"`
	TotalProducts int `json:"total_products"`
	TotalOrders   int `json:"total_orders"`
	TotalReviews  int `json:"total_reviews"`
}

// Page is one slice of a paginated admin listing.
type Page[T any] struct {
	Items      []T
	Total      int
	TotalPages int
	Page       int
	PerPage    int
}

// decodePage reads the pagination envelope. Items live under a
// resource-named key (users, products, ...) or under "items".
func decodePage[T any](raw json.RawMessage, key string, page, perPage int) (Page[T], error) {
	out := Page[T]{Page: page, PerPage: perPage, TotalPages: 1}
	if raw == nil {
		return out, nil
	}
	r := gjson.ParseBytes(raw)
	list := r.Get(key)
	if !list.Exists() {
		list = r.Get("items")
	}
	if list.IsArray() {
		if err := json.Unmarshal([]byte(list.Raw), &out.Items); err != nil {
			return out, fmt.Errorf("decode %s page: %w", key, err)
		}
	}
	out.Total = int(r.Get("total").Int())
	if tp := r.Get("total_pages"); tp.Exists() && tp.Int() > 0 {
		out.TotalPages = int(tp.Int())
	}
	return out, nil
}

func parseObject(data []byte, what string) (gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("decode %s: invalid json", what)
	}
	r := gjson.ParseBytes(data)
	if !r.IsObject() {
		return gjson.Result{}, fmt.Errorf("decode %s: expected object, got %s", what, r.Type)
	}
	return r, nil
}

// refID resolves the first of keys that is a bare id or an object with an id.
func refID(r gjson.Result, keys ...string) int64 {
	for _, key := range keys {
		v := r.Get(key)
		switch {
		case v.IsObject():
			if id := v.Get("id").Int(); id != 0 {
				return id
			}
		case v.Type == gjson.Number, v.Type == gjson.String:
			if id := v.Int(); id != 0 {
				return id
			}
		}
	}
	return 0
}

// nameOf accepts "admin" or {"name": "admin"}.
func nameOf(v gjson.Result) string {
	if v.IsObject() {
		return v.Get("name").String()
	}
	return v.String()
}

func firstString(r gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := r.Get(key); v.Exists() && v.Type != gjson.Null && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func firstFloat(r gjson.Result, keys ...string) float64 {
	for _, key := range keys {
		if v := r.Get(key); v.Exists() && v.Type != gjson.Null {
			return v.Float()
		}
	}
	return 0
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}

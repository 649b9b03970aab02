package devmarket

import "time"

// User is a marketplace account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Address      string    `json:"address"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Farm is a supplier. Status is pending until an admin approves it.
type Farm struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"user_id"`
	Name        string  `json:"name"`
	Location    string  `json:"location"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Featured    bool    `json:"featured"`
	Rating      float64 `json:"rating"`
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Product carries its category both as id and name, like the real API.
type Product struct {
	ID           int64   `json:"id"`
	FarmID       int64   `json:"farm_id"`
	CategoryID   int64   `json:"category_id"`
	CategoryName string  `json:"category"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Unit         string  `json:"unit"`
	Description  string  `json:"description"`
	Quantity     float64 `json:"quantity"`
}

type CartItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type Order struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	UserName        string    `json:"user_name"`
	FarmID          int64     `json:"farm_id"`
	Status          string    `json:"status"`
	PaymentMethod   string    `json:"payment_method"`
	PaymentStatus   string    `json:"payment_status"`
	DeliveryAddress string    `json:"delivery_address"`
	TotalAmount     float64   `json:"total_amount"`
	OrderDate       time.Time `json:"order_date"`
}

// OrderItem is one line of a placed order.
type OrderItem struct {
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// NewOrder is the checkout payload.
type NewOrder struct {
	FarmID          int64       `json:"farm_id"`
	DeliveryAddress string      `json:"delivery_address"`
	PaymentMethod   string      `json:"payment_method"`
	TotalAmount     float64     `json:"total_amount"`
	Items           []OrderItem `json:"items"`
}

type Review struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name"`
	FarmID    int64     `json:"farm_id,omitempty"`
	ProductID int64     `json:"product_id,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

type Plan struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	Price             float64 `json:"price"`
	DeliveryFrequency string  `json:"delivery_frequency"`
	Description       string  `json:"description"`
}

type Subscription struct {
	ID               int64     `json:"id"`
	PlanID           int64     `json:"subscription_plan_id"`
	PlanName         string    `json:"plan_name"`
	Status           string    `json:"status"`
	StartDate        time.Time `json:"start_date"`
	NextDeliveryDate time.Time `json:"next_delivery_date"`
}

// Dashboard is the admin overview.
type Dashboard struct {
	TotalUsers    int `json:"total_users"`
	TotalFarms    int `json:"total_farms"`
	TotalProducts int `json:"total_products"`
	TotalOrders   int `json:"total_orders"`
	TotalReviews  int `json:"total_reviews"`
}

// UserPage wraps a paginated admin user listing.
type UserPage struct {
	Users      []User `json:"users"`
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	Total      int    `json:"total"`
	TotalPages int    `json:"total_pages"`
}

// OrderPage wraps a paginated admin order listing.
type OrderPage struct {
	Orders     []Order `json:"orders"`
	Page       int     `json:"page"`
	PerPage    int     `json:"per_page"`
	Total      int     `json:"total"`
	TotalPages int     `json:"total_pages"`
}

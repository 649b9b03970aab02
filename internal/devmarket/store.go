package devmarket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"example.com/farmstand/internal/sqliteutil"
)

const maxPageSize = 50

var (
	ErrEmailTaken         = errors.New("Email already registered")
	ErrInvalidCredentials = errors.New("Incorrect email or password")
)

// ValidationError is a request the marketplace refuses with 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Store contains all marketplace persistence logic.
type Store struct {
	db  *sql.DB
	rnd *rand.Rand
}

// NewStore wires a marketplace data store backed by SQLite.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:  db,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Init applies the marketplace schema.
func (s *Store) Init(ctx context.Context) error {
	return sqliteutil.Apply(ctx, s.db,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			address TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'customer',
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS farms (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			featured INTEGER NOT NULL DEFAULT 0,
			rating REAL NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS products (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			farm_id INTEGER NOT NULL REFERENCES farms(id) ON DELETE CASCADE,
			category_id INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL,
			price REAL NOT NULL,
			unit TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			quantity REAL NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS cart_items (
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			quantity INTEGER NOT NULL,
			PRIMARY KEY (user_id, product_id)
		);`,
		`CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			farm_id INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			payment_method TEXT NOT NULL,
			payment_status TEXT NOT NULL DEFAULT 'unpaid',
			delivery_address TEXT NOT NULL,
			total_amount REAL NOT NULL,
			order_date TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user_date ON orders(user_id, order_date DESC);`,
		`CREATE TABLE IF NOT EXISTS order_items (
			order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			unit_price REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS reviews (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			farm_id INTEGER NOT NULL DEFAULT 0,
			product_id INTEGER NOT NULL DEFAULT 0,
			rating INTEGER NOT NULL,
			comment TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS plans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			price REAL NOT NULL,
			delivery_frequency TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			plan_id INTEGER NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
			status TEXT NOT NULL DEFAULT 'active',
			start_date TIMESTAMP NOT NULL,
			next_delivery_date TIMESTAMP NOT NULL
		);`,
	)
}

// Accounts

// Register creates a customer account.
func (s *Store) Register(ctx context.Context, email, username, password, address string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if email == "" || username == "" || password == "" {
		return User{}, invalid("email, username and password are required")
	}
	return s.createUser(ctx, email, username, password, address, "customer")
}

func (s *Store) createUser(ctx context.Context, email, username, password, address, role string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users(username, email, address, role, password_hash, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		username, email, address, role, string(hash), now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return User{ID: id, Username: username, Email: email, Address: address, Role: role, CreatedAt: now}, nil
}

// Login checks credentials and opens a bearer session.
func (s *Store) Login(ctx context.Context, email, password string) (string, error) {
	var (
		id   int64
		hash string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email))).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	token := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO sessions(token, user_id, created_at) VALUES (?, ?, ?)`,
		token, id, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return token, nil
}

// Logout closes a bearer session.
func (s *Store) Logout(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// UserByToken resolves a bearer token.
func (s *Store) UserByToken(ctx context.Context, token string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT u.id, u.username, u.email, u.address, u.role, u.created_at
		 FROM sessions s JOIN users u ON u.id = s.user_id WHERE s.token = ?`, token))
}

func (s *Store) User(ctx context.Context, id int64) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, address, role, created_at FROM users WHERE id = ?`, id))
}

func (s *Store) scanUser(row *sql.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Address, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// UpdateProfile changes the editable profile fields.
func (s *Store) UpdateProfile(ctx context.Context, userID int64, username, address string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, invalid("username must not be empty")
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET username = ?, address = ? WHERE id = ?`,
		username, address, userID); err != nil {
		return User{}, fmt.Errorf("update user: %w", err)
	}
	return s.User(ctx, userID)
}

// Catalog

func (s *Store) Categories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	out := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, name string) (Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, invalid("category name required")
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO categories(name) VALUES (?)`, name)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return Category{}, invalid("Category %q already exists", name)
		}
		return Category{}, fmt.Errorf("insert category: %w", err)
	}
	id, _ := res.LastInsertId()
	return Category{ID: id, Name: name}, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "categories", id)
}

const farmColumns = `id, user_id, name, location, description, status, featured, rating`

func scanFarm(sc interface{ Scan(...any) error }) (Farm, error) {
	var f Farm
	err := sc.Scan(&f.ID, &f.UserID, &f.Name, &f.Location, &f.Description, &f.Status, &f.Featured, &f.Rating)
	return f, err
}

func (s *Store) Farms(ctx context.Context) ([]Farm, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+farmColumns+` FROM farms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list farms: %w", err)
	}
	defer rows.Close()
	out := []Farm{}
	for rows.Next() {
		f, err := scanFarm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan farm: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) Farm(ctx context.Context, id int64) (Farm, error) {
	f, err := scanFarm(s.db.QueryRowContext(ctx, `SELECT `+farmColumns+` FROM farms WHERE id = ?`, id))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Farm{}, fmt.Errorf("get farm: %w", err)
	}
	return f, err
}

const productQuery = `SELECT p.id, p.farm_id, p.category_id, COALESCE(c.name, ''), p.name, p.price, p.unit, p.description, p.quantity
	FROM products p LEFT JOIN categories c ON c.id = p.category_id`

func scanProduct(sc interface{ Scan(...any) error }) (Product, error) {
	var p Product
	err := sc.Scan(&p.ID, &p.FarmID, &p.CategoryID, &p.CategoryName, &p.Name, &p.Price, &p.Unit, &p.Description, &p.Quantity)
	return p, err
}

func (s *Store) Products(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, productQuery+` ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Product(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, productQuery+` WHERE p.id = ?`, id))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, err
}

// Cart

func (s *Store) Cart(ctx context.Context, userID int64) ([]CartItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, quantity FROM cart_items WHERE user_id = ? ORDER BY product_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	defer rows.Close()
	out := []CartItem{}
	for rows.Next() {
		var it CartItem
		if err := rows.Scan(&it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// AddToCart adds quantity to the line, creating it if needed.
func (s *Store) AddToCart(ctx context.Context, userID, productID int64, quantity int) error {
	if quantity <= 0 {
		return invalid("quantity must be positive")
	}
	if _, err := s.Product(ctx, productID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cart_items(user_id, product_id, quantity) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, product_id) DO UPDATE SET quantity = quantity + excluded.quantity`,
		userID, productID, quantity)
	if err != nil {
		return fmt.Errorf("add cart item: %w", err)
	}
	return nil
}

// SetCartQuantity replaces the quantity of an existing line.
func (s *Store) SetCartQuantity(ctx context.Context, userID, productID int64, quantity int) error {
	if quantity <= 0 {
		return invalid("quantity must be positive")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE cart_items SET quantity = ? WHERE user_id = ? AND product_id = ?`,
		quantity, userID, productID)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) RemoveFromCart(ctx context.Context, userID, productID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ? AND product_id = ?`, userID, productID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) ClearCart(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Orders

// CreateOrder prices the items from the catalog, reserves stock and records
// the order. The client's total is advisory only. The cart is left alone.
func (s *Store) CreateOrder(ctx context.Context, userID int64, in NewOrder) (Order, error) {
	if len(in.Items) == 0 {
		return Order{}, invalid("order has no items")
	}
	if strings.TrimSpace(in.DeliveryAddress) == "" {
		return Order{}, invalid("delivery_address is required")
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = "card"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Order{}, fmt.Errorf("begin order: %w", err)
	}
	defer tx.Rollback()

	var total float64
	prices := make([]float64, len(in.Items))
	for i, it := range in.Items {
		if it.Quantity <= 0 {
			return Order{}, invalid("quantity must be positive")
		}
		var (
			name  string
			price float64
			stock float64
		)
		err := tx.QueryRowContext(ctx, `SELECT name, price, quantity FROM products WHERE id = ?`, it.ProductID).
			Scan(&name, &price, &stock)
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, invalid("Product %d not found", it.ProductID)
		}
		if err != nil {
			return Order{}, fmt.Errorf("price item: %w", err)
		}
		if stock < float64(it.Quantity) {
			return Order{}, invalid("Not enough stock for %s", name)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE products SET quantity = quantity - ? WHERE id = ?`,
			it.Quantity, it.ProductID); err != nil {
			return Order{}, fmt.Errorf("reserve stock: %w", err)
		}
		prices[i] = price
		total += price * float64(it.Quantity)
	}
	total = math.Round(total*100) / 100

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders(user_id, farm_id, payment_method, delivery_address, total_amount, order_date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, in.FarmID, in.PaymentMethod, in.DeliveryAddress, total, now)
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}
	orderID, _ := res.LastInsertId()
	for i, it := range in.Items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_items(order_id, product_id, quantity, unit_price) VALUES (?, ?, ?, ?)`,
			orderID, it.ProductID, it.Quantity, prices[i]); err != nil {
			return Order{}, fmt.Errorf("insert order item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Order{}, fmt.Errorf("commit order: %w", err)
	}
	return Order{
		ID:              orderID,
		UserID:          userID,
		FarmID:          in.FarmID,
		Status:          "pending",
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   "unpaid",
		DeliveryAddress: in.DeliveryAddress,
		TotalAmount:     total,
		OrderDate:       now,
	}, nil
}

const orderQuery = `SELECT o.id, o.user_id, u.username, o.farm_id, o.status, o.payment_method, o.payment_status,
	o.delivery_address, o.total_amount, o.order_date FROM orders o JOIN users u ON u.id = o.user_id`

func scanOrders(rows *sql.Rows) ([]Order, error) {
	defer rows.Close()
	out := []Order{}
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.UserName, &o.FarmID, &o.Status, &o.PaymentMethod,
			&o.PaymentStatus, &o.DeliveryAddress, &o.TotalAmount, &o.OrderDate); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter orders: %w", err)
	}
	return out, nil
}

func (s *Store) Orders(ctx context.Context, userID int64) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx, orderQuery+` WHERE o.user_id = ? ORDER BY o.order_date DESC, o.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return scanOrders(rows)
}

// Reviews

func (s *Store) Reviews(ctx context.Context) ([]Review, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.user_id, u.username, r.farm_id, r.product_id, r.rating, r.comment, r.created_at
		 FROM reviews r JOIN users u ON u.id = r.user_id ORDER BY r.created_at DESC, r.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()
	out := []Review{}
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.UserID, &r.UserName, &r.FarmID, &r.ProductID, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateReview rates a farm or a product and refreshes the farm's average.
func (s *Store) CreateReview(ctx context.Context, userID, farmID, productID int64, rating int, comment string) (Review, error) {
	if rating < 1 || rating > 5 {
		return Review{}, invalid("rating must be between 1 and 5")
	}
	if farmID == 0 && productID == 0 {
		return Review{}, invalid("farm_id or product_id is required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reviews(user_id, farm_id, product_id, rating, comment, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		userID, farmID, productID, rating, comment, now)
	if err != nil {
		return Review{}, fmt.Errorf("insert review: %w", err)
	}
	if farmID != 0 {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE farms SET rating = (SELECT AVG(rating) FROM reviews WHERE farm_id = ?) WHERE id = ?`,
			farmID, farmID); err != nil {
			return Review{}, fmt.Errorf("update farm rating: %w", err)
		}
	}
	id, _ := res.LastInsertId()
	return Review{ID: id, UserID: userID, FarmID: farmID, ProductID: productID, Rating: rating, Comment: comment, CreatedAt: now}, nil
}

// Subscriptions

func (s *Store) Plans(ctx context.Context) ([]Plan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, price, delivery_frequency, description FROM plans ORDER BY price`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()
	out := []Plan{}
	for rows.Next() {
		var p Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.DeliveryFrequency, &p.Description); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Subscriptions(ctx context.Context, userID int64) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.plan_id, p.name, s.status, s.start_date, s.next_delivery_date
		 FROM subscriptions s JOIN plans p ON p.id = s.plan_id WHERE s.user_id = ? ORDER BY s.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()
	out := []Subscription{}
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.PlanID, &sub.PlanName, &sub.Status, &sub.StartDate, &sub.NextDeliveryDate); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// Subscribe activates a plan; subscribing twice is refused.
func (s *Store) Subscribe(ctx context.Context, userID, planID int64) (Subscription, error) {
	var (
		name      string
		frequency string
	)
	err := s.db.QueryRowContext(ctx, `SELECT name, delivery_frequency FROM plans WHERE id = ?`, planID).Scan(&name, &frequency)
	if err != nil {
		return Subscription{}, err
	}
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE user_id = ? AND plan_id = ? AND status = 'active'`,
		userID, planID).Scan(&exists); err != nil {
		return Subscription{}, fmt.Errorf("check subscription: %w", err)
	}
	if exists > 0 {
		return Subscription{}, invalid("Already subscribed to %s", name)
	}
	start := time.Now().UTC()
	next := start.Add(deliveryInterval(frequency))
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions(user_id, plan_id, start_date, next_delivery_date) VALUES (?, ?, ?, ?)`,
		userID, planID, start, next)
	if err != nil {
		return Subscription{}, fmt.Errorf("insert subscription: %w", err)
	}
	id, _ := res.LastInsertId()
	return Subscription{ID: id, PlanID: planID, PlanName: name, Status: "active", StartDate: start, NextDeliveryDate: next}, nil
}

func deliveryInterval(frequency string) time.Duration {
	switch strings.ToLower(frequency) {
	case "weekly":
		return 7 * 24 * time.Hour
	case "biweekly":
		return 14 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// Admin

func (s *Store) Dashboard(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	counts := []struct {
		table string
		dst   *int
	}{
		{"users", &d.TotalUsers},
		{"farms", &d.TotalFarms},
		{"products", &d.TotalProducts},
		{"orders", &d.TotalOrders},
		{"reviews", &d.TotalReviews},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.table).Scan(c.dst); err != nil {
			return Dashboard{}, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	return d, nil
}

// EnsurePageSize enforces the maximum page size contract.
func EnsurePageSize(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > maxPageSize {
		perPage = maxPageSize
	}
	return page, perPage
}

func totalPages(total, perPage int) int {
	if total == 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}

// ListUsers returns one page of accounts, newest first.
func (s *Store) ListUsers(ctx context.Context, page, perPage int) (UserPage, error) {
	page, perPage = EnsurePageSize(page, perPage)
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return UserPage{}, fmt.Errorf("count users: %w", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, email, address, role, created_at FROM users ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		perPage, (page-1)*perPage)
	if err != nil {
		return UserPage{}, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	users := make([]User, 0, perPage)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Address, &u.Role, &u.CreatedAt); err != nil {
			return UserPage{}, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return UserPage{}, fmt.Errorf("iter users: %w", err)
	}
	return UserPage{Users: users, Page: page, PerPage: perPage, Total: total, TotalPages: totalPages(total, perPage)}, nil
}

// ListOrders returns one page of all orders, newest first.
func (s *Store) ListOrders(ctx context.Context, page, perPage int) (OrderPage, error) {
	page, perPage = EnsurePageSize(page, perPage)
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
		return OrderPage{}, fmt.Errorf("count orders: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, orderQuery+` ORDER BY o.order_date DESC, o.id DESC LIMIT ? OFFSET ?`,
		perPage, (page-1)*perPage)
	if err != nil {
		return OrderPage{}, fmt.Errorf("list orders: %w", err)
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return OrderPage{}, err
	}
	return OrderPage{Orders: orders, Page: page, PerPage: perPage, Total: total, TotalPages: totalPages(total, perPage)}, nil
}

var (
	roles         = []string{"customer", "farmer", "admin"}
	orderStatuses = []string{"pending", "processing", "shipped", "delivered", "cancelled"}
)

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func (s *Store) SetRole(ctx context.Context, userID int64, role string) error {
	if !oneOf(role, roles) {
		return invalid("Invalid role: %s", role)
	}
	return s.updateByID(ctx, `UPDATE users SET role = ? WHERE id = ?`, role, userID)
}

func (s *Store) SetOrderStatus(ctx context.Context, orderID int64, status string) error {
	if !oneOf(status, orderStatuses) {
		return invalid("Invalid status: %s", status)
	}
	return s.updateByID(ctx, `UPDATE orders SET status = ? WHERE id = ?`, status, orderID)
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "users", id)
}

func (s *Store) updateByID(ctx context.Context, stmt string, value any, id int64) error {
	res, err := s.db.ExecContext(ctx, stmt, value, id)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) deleteByID(ctx context.Context, table string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

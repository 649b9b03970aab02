package devmarket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrForbidden is returned when a user touches a record they do not own.
var ErrForbidden = errors.New("not allowed")

// FarmInput is a farm application or edit.
type FarmInput struct {
	Name        string
	Location    string
	Description string
}

// ProductInput is a supplier's new listing.
type ProductInput struct {
	Name        string
	Price       float64
	Unit        string
	Category    string
	Description string
	Quantity    float64
}

// FarmByOwner returns the farm a user registered.
func (s *Store) FarmByOwner(ctx context.Context, userID int64) (Farm, error) {
	f, err := scanFarm(s.db.QueryRowContext(ctx, `SELECT `+farmColumns+` FROM farms WHERE user_id = ?`, userID))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Farm{}, fmt.Errorf("get farm by owner: %w", err)
	}
	return f, err
}

// ApplyFarm registers a pending farm; one per user.
func (s *Store) ApplyFarm(ctx context.Context, userID int64, in FarmInput) (Farm, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Location) == "" {
		return Farm{}, invalid("name and location are required")
	}
	if _, err := s.FarmByOwner(ctx, userID); err == nil {
		return Farm{}, invalid("You already registered a farm")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return Farm{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO farms(user_id, name, location, description) VALUES (?, ?, ?, ?)`,
		userID, in.Name, in.Location, in.Description)
	if err != nil {
		return Farm{}, fmt.Errorf("insert farm: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.Farm(ctx, id)
}

// UpdateFarm edits a farm owned by userID.
func (s *Store) UpdateFarm(ctx context.Context, userID, farmID int64, in FarmInput) (Farm, error) {
	f, err := s.Farm(ctx, farmID)
	if err != nil {
		return Farm{}, err
	}
	if f.UserID != userID {
		return Farm{}, ErrForbidden
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Location) == "" {
		return Farm{}, invalid("name and location are required")
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE farms SET name = ?, location = ?, description = ? WHERE id = ?`,
		in.Name, in.Location, in.Description, farmID); err != nil {
		return Farm{}, fmt.Errorf("update farm: %w", err)
	}
	return s.Farm(ctx, farmID)
}

// ApproveFarm marks a farm approved and promotes its owner to farmer.
func (s *Store) ApproveFarm(ctx context.Context, farmID int64) error {
	f, err := s.Farm(ctx, farmID)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE farms SET status = 'approved' WHERE id = ?`, farmID); err != nil {
		return fmt.Errorf("approve farm: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET role = 'farmer' WHERE id = ? AND role = 'customer'`, f.UserID); err != nil {
		return fmt.Errorf("promote farmer: %w", err)
	}
	return nil
}

func (s *Store) DeleteFarm(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "farms", id)
}

// CreateProduct lists a product on the caller's approved farm. Unknown
// categories are left unset.
func (s *Store) CreateProduct(ctx context.Context, userID int64, in ProductInput) (Product, error) {
	farm, err := s.FarmByOwner(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && farm.Status != "approved") {
		return Product{}, invalid("Your farm must be approved before listing products")
	}
	if err != nil {
		return Product{}, err
	}
	if strings.TrimSpace(in.Name) == "" || in.Price <= 0 {
		return Product{}, invalid("name and a positive price are required")
	}
	var categoryID int64
	if in.Category != "" {
		err := s.db.QueryRowContext(ctx, `SELECT id FROM categories WHERE name = ?`, in.Category).Scan(&categoryID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return Product{}, fmt.Errorf("lookup category: %w", err)
		}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO products(farm_id, category_id, name, price, unit, description, quantity) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		farm.ID, categoryID, in.Name, in.Price, in.Unit, in.Description, in.Quantity)
	if err != nil {
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.Product(ctx, id)
}

// DeleteProduct removes a listing. Only the owning farmer or an admin may.
func (s *Store) DeleteProduct(ctx context.Context, user User, productID int64) error {
	if user.Role != "admin" {
		p, err := s.Product(ctx, productID)
		if err != nil {
			return err
		}
		farm, err := s.Farm(ctx, p.FarmID)
		if err != nil {
			return err
		}
		if farm.UserID != user.ID {
			return ErrForbidden
		}
	}
	return s.deleteByID(ctx, "products", productID)
}

func (s *Store) deleteProductAsAdmin(ctx context.Context, id int64) error {
	return s.DeleteProduct(ctx, User{Role: "admin"}, id)
}

func (s *Store) DeleteReview(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "reviews", id)
}

// Seed fills an empty marketplace with an admin, a few farms, products and
// plans so the storefront has something to show.
func (s *Store) Seed(ctx context.Context, adminEmail, adminPassword string) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.createUser(ctx, adminEmail, "Admin", adminPassword, "", "admin"); err != nil {
		return err
	}
	for _, name := range categoryNames {
		if _, err := s.CreateCategory(ctx, name); err != nil {
			return err
		}
	}
	for _, p := range seedPlans {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO plans(name, price, delivery_frequency, description) VALUES (?, ?, ?, ?)`,
			p.Name, p.Price, p.DeliveryFrequency, p.Description); err != nil {
			return fmt.Errorf("insert plan: %w", err)
		}
	}
	for i, farmName := range farmNames {
		first := firstNames[s.rnd.Intn(len(firstNames))]
		email := fmt.Sprintf("%s.%d@farms.example", strings.ToLower(first), i+1)
		owner, err := s.createUser(ctx, email, first, "farmer", "", "customer")
		if err != nil {
			return err
		}
		farm, err := s.ApplyFarm(ctx, owner.ID, FarmInput{
			Name:        farmName,
			Location:    locations[s.rnd.Intn(len(locations))],
			Description: "Family farm selling direct.",
		})
		if err != nil {
			return err
		}
		if err := s.ApproveFarm(ctx, farm.ID); err != nil {
			return err
		}
		if i == 0 {
			if _, err := s.db.ExecContext(ctx, `UPDATE farms SET featured = 1 WHERE id = ?`, farm.ID); err != nil {
				return fmt.Errorf("feature farm: %w", err)
			}
		}
		for j := 0; j < 3; j++ {
			item := produce[s.rnd.Intn(len(produce))]
			if _, err := s.CreateProduct(ctx, owner.ID, ProductInput{
				Name:     item.name,
				Price:    item.price,
				Unit:     item.unit,
				Category: item.category,
				Quantity: float64(10 + s.rnd.Intn(90)),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

var (
	firstNames    = []string{"Ava", "Liam", "Maya", "Noah", "Ella", "Owen", "Iris", "Theo"}
	farmNames     = []string{"Green Acres", "Willow Creek", "Sunny Hollow"}
	locations     = []string{"Hudson Valley", "Sonoma", "Lancaster", "Skagit"}
	categoryNames = []string{"Vegetables", "Fruit", "Dairy", "Eggs"}
	produce       = []struct {
		name     string
		price    float64
		unit     string
		category string
	}{
		{"Heirloom tomatoes", 4.5, "lb", "Vegetables"},
		{"Rainbow carrots", 3.25, "bunch", "Vegetables"},
		{"Honeycrisp apples", 2.75, "lb", "Fruit"},
		{"Strawberries", 6, "pint", "Fruit"},
		{"Raw milk", 5.5, "half gallon", "Dairy"},
		{"Duck eggs", 8, "dozen", "Eggs"},
	}
	seedPlans = []Plan{
		{Name: "Weekly Basket", Price: 29, DeliveryFrequency: "weekly", Description: "A box of whatever is in season."},
		{Name: "Family Share", Price: 49, DeliveryFrequency: "biweekly", Description: "Enough produce for four."},
	}
)

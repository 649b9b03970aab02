package devmarket

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// TokenCookie carries the bearer token for cookie-only clients.
const TokenCookie = "access_token"

const maxUploadBytes = 10 << 20

// Server exposes a local stand-in for the marketplace REST API.
type Server struct {
	store  *Store
	logger *slog.Logger
}

// NewServer builds a server backed by the provided store.
func NewServer(store *Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, logger: logger}
}

// Router wires all marketplace routes under a single chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.Get("/products", s.handleListProducts)
	r.Get("/products/{id}", s.handleGetProduct)
	r.Get("/farms", s.handleListFarms)
	r.Get("/farms/{id}", s.handleGetFarm)
	r.Get("/categories", s.handleListCategories)
	r.Get("/reviews", s.handleListReviews)
	r.Get("/subscriptions/plans", s.handleListPlans)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)
		r.Post("/auth/logout", s.handleLogout)
		r.Get("/auth/me", s.handleMe)
		r.Patch("/auth/me", s.handleUpdateMe)

		r.Post("/products", s.handleCreateProduct)
		r.Delete("/products/{id}", s.handleDeleteProduct)
		r.Post("/farms/applications", s.handleApplyFarm)
		r.Put("/farms/{id}", s.handleUpdateFarm)

		r.Get("/cart", s.handleCart)
		r.Post("/cart/items", s.handleAddCartItem)
		r.Put("/cart/items/{id}", s.handleUpdateCartItem)
		r.Delete("/cart/items/{id}", s.handleRemoveCartItem)
		r.Delete("/cart/clear", s.handleClearCart)

		r.Post("/reviews", s.handleCreateReview)
		r.Get("/subscriptions/user", s.handleUserSubscriptions)
		r.Post("/subscriptions/user/subscribe/{id}", s.handleSubscribe)
		r.Get("/orders", s.handleListOrders)
		r.Post("/orders", s.handleCreateOrder)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/categories", s.handleCreateCategory)
			r.Delete("/categories/{id}", s.handleDelete(s.store.DeleteCategory))

			r.Route("/admin", func(r chi.Router) {
				r.Get("/dashboard", s.handleDashboard)
				r.Get("/users", s.handleAdminUsers)
				r.Put("/users/{id}/role", s.handleSetRole)
				r.Delete("/users/{id}", s.handleDelete(s.store.DeleteUser))
				r.Get("/products", s.handleAdminProducts)
				r.Delete("/products/{id}", s.handleDelete(s.store.deleteProductAsAdmin))
				r.Get("/farms", s.handleAdminFarms)
				r.Put("/farms/{id}/approve", s.handleApproveFarm)
				r.Delete("/farms/{id}", s.handleDelete(s.store.DeleteFarm))
				r.Get("/reviews", s.handleAdminReviews)
				r.Delete("/reviews/{id}", s.handleDelete(s.store.DeleteReview))
				r.Get("/orders", s.handleAdminOrders)
				r.Put("/orders/{id}/status", s.handleSetOrderStatus)
			})
		})
	})

	return r
}

// Accounts

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
		Address  string `json:"address"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	user, err := s.store.Register(r.Context(), payload.Email, payload.Username, payload.Password, payload.Address)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	token, err := s.store.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		s.fail(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "message": "Login successful"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Logout(r.Context(), tokenFrom(r)); err != nil {
		s.fail(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: TokenCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r.Context()))
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Address  string `json:"address"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	user, err := s.store.UpdateProfile(r.Context(), userFrom(r.Context()).ID, payload.Username, payload.Address)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Catalog

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.store.Products(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	product, err := s.store.Product(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form: %v", err)
		return
	}
	price, _ := strconv.ParseFloat(r.FormValue("price"), 64)
	quantity, _ := strconv.ParseFloat(r.FormValue("quantity"), 64)
	product, err := s.store.CreateProduct(r.Context(), userFrom(r.Context()).ID, ProductInput{
		Name:        r.FormValue("name"),
		Price:       price,
		Unit:        r.FormValue("unit"),
		Category:    r.FormValue("category"),
		Description: r.FormValue("description"),
		Quantity:    quantity,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteProduct(r.Context(), userFrom(r.Context()), id); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFarms(w http.ResponseWriter, r *http.Request) {
	farms, err := s.store.Farms(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, farms)
}

func (s *Server) handleGetFarm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	farm, err := s.store.Farm(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, farm)
}

func farmForm(w http.ResponseWriter, r *http.Request) (FarmInput, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form: %v", err)
		return FarmInput{}, false
	}
	location := r.FormValue("location")
	if location == "" {
		location = r.FormValue("address")
	}
	return FarmInput{
		Name:        r.FormValue("name"),
		Location:    location,
		Description: r.FormValue("description"),
	}, true
}

func (s *Server) handleApplyFarm(w http.ResponseWriter, r *http.Request) {
	in, ok := farmForm(w, r)
	if !ok {
		return
	}
	farm, err := s.store.ApplyFarm(r.Context(), userFrom(r.Context()).ID, in)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, farm)
}

func (s *Server) handleUpdateFarm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	in, ok := farmForm(w, r)
	if !ok {
		return
	}
	farm, err := s.store.UpdateFarm(r.Context(), userFrom(r.Context()).ID, id, in)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, farm)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.Categories(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	category, err := s.store.CreateCategory(r.Context(), payload.Name)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

// Cart

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.Cart(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var payload CartItem
	if !decodeBody(w, r, &payload) {
		return
	}
	if err := s.store.AddToCart(r.Context(), userFrom(r.Context()).ID, payload.ProductID, payload.Quantity); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Added to cart"})
}

func (s *Server) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Quantity int `json:"quantity"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	if err := s.store.SetCartQuantity(r.Context(), userFrom(r.Context()).ID, id, payload.Quantity); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cart updated"})
}

func (s *Server) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.RemoveFromCart(r.Context(), userFrom(r.Context()).ID, id); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearCart(r.Context(), userFrom(r.Context()).ID); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reviews and subscriptions

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.store.Reviews(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		FarmID     int64  `json:"farm_id"`
		SupplierID int64  `json:"supplier_id"`
		ProductID  int64  `json:"product_id"`
		Rating     int    `json:"rating"`
		Comment    string `json:"comment"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	farmID := payload.FarmID
	if farmID == 0 {
		farmID = payload.SupplierID
	}
	review, err := s.store.CreateReview(r.Context(), userFrom(r.Context()).ID, farmID, payload.ProductID, payload.Rating, payload.Comment)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.store.Plans(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) handleUserSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.store.Subscriptions(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sub, err := s.store.Subscribe(r.Context(), userFrom(r.Context()).ID, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Orders

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.store.Orders(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var payload NewOrder
	if !decodeBody(w, r, &payload) {
		return
	}
	order, err := s.store.CreateOrder(r.Context(), userFrom(r.Context()).ID, payload)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info("order placed", "order_id", order.ID, "total", order.TotalAmount)
	writeJSON(w, http.StatusCreated, order)
}

// Admin

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.Dashboard(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePaging(r)
	result, err := s.store.ListUsers(r.Context(), page, perPage)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAdminOrders(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePaging(r)
	result, err := s.store.ListOrders(r.Context(), page, perPage)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAdminProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.store.Products(r.Context())
	writePage(w, r, s, "products", products, err)
}

func (s *Server) handleAdminFarms(w http.ResponseWriter, r *http.Request) {
	farms, err := s.store.Farms(r.Context())
	writePage(w, r, s, "farms", farms, err)
}

func (s *Server) handleAdminReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.store.Reviews(r.Context())
	writePage(w, r, s, "reviews", reviews, err)
}

// writePage slices a full listing into the admin pagination envelope.
func writePage[T any](w http.ResponseWriter, r *http.Request, s *Server, key string, all []T, err error) {
	if err != nil {
		s.fail(w, err)
		return
	}
	page, perPage := parsePaging(r)
	start := min((page-1)*perPage, len(all))
	end := min(start+perPage, len(all))
	writeJSON(w, http.StatusOK, map[string]any{
		key:           all[start:end],
		"page":        page,
		"per_page":    perPage,
		"total":       len(all),
		"total_pages": totalPages(len(all), perPage),
	})
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.SetRole(r.Context(), id, r.URL.Query().Get("new_role")); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Role updated"})
}

func (s *Server) handleSetOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Status string `json:"status"`
	}
	if !decodeBody(w, r, &payload) {
		return
	}
	if err := s.store.SetOrderStatus(r.Context(), id, payload.Status); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Status updated"})
}

func (s *Server) handleApproveFarm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.ApproveFarm(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Farm approved"})
}

func (s *Server) handleDelete(del func(context.Context, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := del(r.Context(), id); err != nil {
			s.fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Auth

type userContextKey struct{}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFrom(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		user, err := s.store.UserByToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userFrom(r.Context()).Role != "admin" {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userFrom(ctx context.Context) User {
	return ctx.Value(userContextKey{}).(User)
}

func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// Helpers

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "invalid id %q", chi.URLParam(r, "id"))
		return 0, false
	}
	return id, true
}

func parsePaging(r *http.Request) (int, int) {
	page := parseIntDefault(r.URL.Query().Get("page"), 1)
	perPage := parseIntDefault(r.URL.Query().Get("per_page"), 10)
	return EnsurePageSize(page, perPage)
}

func parseIntDefault(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid json: %v", err)
		return false
	}
	return true
}

// fail maps store errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "%s", verr.Msg)
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "%s", err.Error())
	case errors.Is(err, ErrEmailTaken):
		writeError(w, http.StatusBadRequest, "%s", err.Error())
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, "Not allowed")
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, "Not found")
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]any{
		"detail": strings.TrimSpace(fmt.Sprintf(format, args...)),
	})
}

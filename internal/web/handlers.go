package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"example.com/farmstand/internal/marketapi"
	"example.com/farmstand/internal/pages"
	"example.com/farmstand/internal/router"
)

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	s.render(w, st, s.site.Navigate(r.Context(), st, string(router.Home), 0))
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	param, _ := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	s.render(w, st, s.site.Navigate(r.Context(), st, chi.URLParam(r, "page"), param))
}

func (s *Server) handleFilterCategory(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	s.render(w, st, s.site.FilterCategory(r.Context(), st, r.PostFormValue("category")))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	s.render(w, st, s.site.Login(r.Context(), st, r.PostFormValue("email"), r.PostFormValue("password")))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	s.render(w, st, s.site.Register(r.Context(), st, pages.RegisterForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
		Name:     r.PostFormValue("name"),
		Address:  r.PostFormValue("address"),
	}))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	s.render(w, st, s.site.Logout(r.Context(), st))
}

func (s *Server) handleAuthModal(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	if r.PostFormValue("action") == "close" {
		s.render(w, st, s.site.CloseAuth(r.Context(), st))
		return
	}
	s.render(w, st, s.site.OpenAuth(r.Context(), st, r.PostFormValue("mode")))
}

func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	productID, err := strconv.ParseInt(r.PostFormValue("product_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid product_id", http.StatusBadRequest)
		return
	}
	qty := formInt(r, "quantity", 1)
	s.render(w, st, s.site.AddToCart(r.Context(), st, productID, qty))
}

// handleCartQuantity takes either a relative delta or an absolute quantity.
func (s *Server) handleCartQuantity(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	productID, ok := pathID(w, r, "productID")
	if !ok {
		return
	}
	if raw := r.PostFormValue("quantity"); raw != "" {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid quantity", http.StatusBadRequest)
			return
		}
		s.render(w, st, s.site.SetCartQuantity(r.Context(), st, productID, qty))
		return
	}
	s.render(w, st, s.site.UpdateCartQuantity(r.Context(), st, productID, formInt(r, "delta", 0)))
}

func (s *Server) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	productID, ok := pathID(w, r, "productID")
	if !ok {
		return
	}
	s.render(w, st, s.site.RemoveFromCart(r.Context(), st, productID))
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	s.render(w, st, s.site.Checkout(r.Context(), st, r.PostFormValue("address"), r.PostFormValue("payment_method")))
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	s.render(w, st, s.site.SubmitReview(r.Context(), st, formInt(r, "rating", 0), r.PostFormValue("comment")))
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	planID, ok := pathID(w, r, "planID")
	if !ok {
		return
	}
	s.render(w, st, s.site.Subscribe(r.Context(), st, planID))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	s.render(w, st, s.site.SaveProfile(r.Context(), st, r.PostFormValue("name"), r.PostFormValue("address")))
}

func (s *Server) handleAdminTab(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	s.render(w, st, s.site.SwitchAdminTab(r.Context(), st, chi.URLParam(r, "tab")))
}

func (s *Server) handleAdminPage(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	dir := 0
	switch chi.URLParam(r, "dir") {
	case "next":
		dir = 1
	case "prev":
		dir = -1
	}
	s.render(w, st, s.site.AdminPage(r.Context(), st, dir))
}

func (s *Server) handleUserRole(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	s.render(w, st, s.site.SetUserRole(r.Context(), st, id, r.PostFormValue("role")))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	s.render(w, st, s.site.DeleteUser(r.Context(), st, id))
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	s.render(w, st, s.site.SetOrderStatus(r.Context(), st, id, r.PostFormValue("status")))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	s.render(w, st, s.site.CreateCategory(r.Context(), st, r.PostFormValue("name")))
}

func (s *Server) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	kind := chi.URLParam(r, "kind")
	if kind == "categories" {
		s.render(w, st, s.site.DeleteCategory(r.Context(), st, id))
		return
	}
	s.render(w, st, s.site.AdminDelete(r.Context(), st, kind, id))
}

func (s *Server) handleApplyFarm(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	in, err := farmInput(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.render(w, st, s.site.ApplyFarm(r.Context(), st, in))
}

func (s *Server) handleUpdateFarm(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	in, err := farmInput(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.render(w, st, s.site.UpdateFarm(r.Context(), st, in))
}

func (s *Server) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	if err := parseUpload(r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	image, err := formFile(r, "image")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	price, _ := strconv.ParseFloat(strings.TrimSpace(r.FormValue("price")), 64)
	s.render(w, st, s.site.AddProduct(r.Context(), st, pages.ProductInput{
		Name:        r.FormValue("name"),
		Price:       price,
		Unit:        r.FormValue("unit"),
		Category:    r.FormValue("category"),
		Description: r.FormValue("description"),
		Image:       image,
	}))
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	s.render(w, st, s.site.DeleteSupplierProduct(r.Context(), st, id))
}

func farmInput(r *http.Request) (pages.FarmInput, error) {
	if err := parseUpload(r); err != nil {
		return pages.FarmInput{}, err
	}
	image, err := formFile(r, "image")
	if err != nil {
		return pages.FarmInput{}, err
	}
	return pages.FarmInput{
		Name:        r.FormValue("name"),
		Location:    r.FormValue("location"),
		Description: r.FormValue("description"),
		Image:       image,
	}, nil
}

// parseUpload accepts both multipart and urlencoded bodies.
func parseUpload(r *http.Request) error {
	err := r.ParseMultipartForm(maxUploadBytes)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

// formFile reads an optional uploaded file.
func formFile(r *http.Request, field string) (*marketapi.FilePart, error) {
	f, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &marketapi.FilePart{
		FieldName:   field,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func formInt(r *http.Request, field string, fallback int) int {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

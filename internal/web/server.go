// Package web serves the storefront to browsers. Each request resolves the
// browser's state from its session cookie, runs one navigation or action
// under the state's lock and writes the re-rendered page.
package web

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"example.com/farmstand/internal/app"
	"example.com/farmstand/internal/logging"
	"example.com/farmstand/internal/metrics"
	"example.com/farmstand/internal/pages"
)

const DefaultCookieName = "farmstand_sid"

// maxUploadBytes bounds multipart forms carrying farm and product images.
const maxUploadBytes = 10 << 20

// Options wires a Server.
type Options struct {
	Site     *pages.Site
	Registry *app.Registry
	// Metrics is served on /metrics when non-nil.
	Metrics      *metrics.Metrics
	CookieName   string
	SecureCookie bool
	Logger       *slog.Logger
}

// Server is the browser-facing HTTP front end.
type Server struct {
	site     *pages.Site
	registry *app.Registry
	metrics  *metrics.Metrics
	cookie   string
	secure   bool
	tmpl     *template.Template
	logger   *slog.Logger
}

func NewServer(opts Options) (*Server, error) {
	if opts.Site == nil || opts.Registry == nil {
		return nil, fmt.Errorf("web: site and registry are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	cookie := opts.CookieName
	if cookie == "" {
		cookie = DefaultCookieName
	}
	return &Server{
		site:     opts.Site,
		registry: opts.Registry,
		metrics:  opts.Metrics,
		cookie:   cookie,
		secure:   opts.SecureCookie,
		tmpl:     tmpl,
		logger:   logger,
	}, nil
}

// Router wires every storefront route under a single chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.withState)

		r.Get("/", s.handleHome)
		r.Get("/p/{page}", s.handlePage)

		r.Post("/filter/category", s.handleFilterCategory)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Post("/register", s.handleRegister)
			r.Post("/logout", s.handleLogout)
			r.Post("/modal", s.handleAuthModal)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Post("/add", s.handleAddToCart)
			r.Post("/{productID}/qty", s.handleCartQuantity)
			r.Post("/{productID}/remove", s.handleRemoveFromCart)
		})
		r.Post("/checkout", s.handleCheckout)
		r.Post("/reviews", s.handleReview)
		r.Post("/subscriptions/{planID}", s.handleSubscribe)
		r.Post("/profile", s.handleProfile)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/tab/{tab}", s.handleAdminTab)
			r.Post("/page/{dir}", s.handleAdminPage)
			r.Post("/users/{id}/role", s.handleUserRole)
			r.Post("/users/{id}/delete", s.handleDeleteUser)
			r.Post("/orders/{id}/status", s.handleOrderStatus)
			r.Post("/categories", s.handleCreateCategory)
			r.Post("/{kind}/{id}/delete", s.handleAdminDelete)
		})

		r.Route("/supplier", func(r chi.Router) {
			r.Post("/farm", s.handleApplyFarm)
			r.Post("/farm/update", s.handleUpdateFarm)
			r.Post("/products", s.handleAddProduct)
			r.Post("/products/{id}/delete", s.handleDeleteProduct)
		})
	})

	return r
}

type stateContextKey struct{}

// withState resolves the browser state from the session cookie, issuing a
// new id on first sight, and holds the state's lock for the whole request.
func (s *Server) withState(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(s.cookie); err == nil {
			id = c.Value
		}
		st := s.registry.Resume(r.Context(), id)
		if st.ID != id {
			http.SetCookie(w, &http.Cookie{
				Name:     s.cookie,
				Value:    st.ID,
				Path:     "/",
				HttpOnly: true,
				Secure:   s.secure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		st.Lock()
		defer st.Unlock()
		ctx := context.WithValue(r.Context(), stateContextKey{}, st)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func stateFromContext(ctx context.Context) *app.State {
	return ctx.Value(stateContextKey{}).(*app.State)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

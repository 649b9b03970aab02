// Package app holds the per-browser application state: identity, reference
// cache, navigation, admin pagination, cart slice, toasts and the auth modal,
// plus the API client bound to that browser.
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"example.com/farmstand/internal/logging"
	"example.com/farmstand/internal/marketapi"
	"example.com/farmstand/internal/metrics"
	"example.com/farmstand/internal/refcache"
	"example.com/farmstand/internal/session"
)

// HomePage is where access-denied redirects land.
const HomePage = "home"

// AllCategories is the category filter value that shows every product.
const AllCategories = "all"

// NavState is the active page and its optional entity id.
type NavState struct {
	Page  string
	Param int64
}

// AuthModalState drives the login/register dialog.
type AuthModalState struct {
	Open  bool
	Mode  string
	Error string
}

const (
	AuthModeLogin    = "login"
	AuthModeRegister = "register"
)

// State is one browser's application state. Request handlers hold Lock for
// the whole request; Session, Cache, Cart and Toasts are additionally safe for
// the parallel fetches a renderer may start.
type State struct {
	ID string

	API     *marketapi.Client
	Session *session.Store
	Cache   *refcache.Cache
	Cart    *CartSlice
	Toasts  *ToastQueue

	Nav            NavState
	Admin          AdminListState
	AuthModal      AuthModalState
	CategoryFilter string

	mu           sync.Mutex
	stateMu      sync.Mutex
	redirect     string
	lastSeen     time.Time
	tokenTouched time.Time
	logger       *slog.Logger
}

// NewState builds a state around api and installs itself as api's hooks.
func NewState(id string, api *marketapi.Client, m *metrics.Metrics, adminPageSize int, logger *slog.Logger) *State {
	if logger == nil {
		logger = logging.Discard()
	}
	st := &State{
		ID:             id,
		API:            api,
		Session:        session.NewStore(),
		Cache:          refcache.New(api, m, logger),
		Cart:           &CartSlice{},
		Toasts:         &ToastQueue{},
		Nav:            NavState{Page: HomePage},
		Admin:          NewAdminListState(adminPageSize),
		CategoryFilter: AllCategories,
		logger:         logger,
	}
	api.SetHooks(st)
	return st
}

// Lock serialises requests from the same browser.
func (s *State) Lock()   { s.mu.Lock() }
func (s *State) Unlock() { s.mu.Unlock() }

// Touch records activity for idle eviction.
func (s *State) Touch(now time.Time) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.lastSeen = now
}

// tokenTouchDue reports whether the mirrored token was last refreshed at
// least every before now, and if so records now as the refresh.
func (s *State) tokenTouchDue(now time.Time, every time.Duration) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if now.Sub(s.tokenTouched) < every {
		return false
	}
	s.tokenTouched = now
	return true
}

func (s *State) idleSince() time.Time {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.lastSeen
}

// Redirect asks the router to show page once the current work finishes.
func (s *State) Redirect(page string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.redirect = page
}

// TakeRedirect returns and clears a pending redirect.
func (s *State) TakeRedirect() (string, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	page := s.redirect
	s.redirect = ""
	return page, page != ""
}

// OpenAuthModal shows the dialog on the login tab.
func (s *State) OpenAuthModal() {
	s.AuthModal = AuthModalState{Open: true, Mode: AuthModeLogin}
}

// SwitchAuthMode flips between the login and register tabs.
func (s *State) SwitchAuthMode(mode string) {
	if mode != AuthModeRegister {
		mode = AuthModeLogin
	}
	s.AuthModal = AuthModalState{Open: true, Mode: mode}
}

func (s *State) CloseAuthModal() {
	s.AuthModal = AuthModalState{}
}

// SignIn stores the identity returned by /auth/me.
func (s *State) SignIn(user marketapi.User) {
	s.Session.Set(user.Identity())
}

// SignOut drops everything tied to the identity.
func (s *State) SignOut() {
	s.Session.Clear()
	s.Cart.Reset()
}

// RefreshCart reloads the cart slice from the server. It is only called after
// the cart may have changed, never on a plain navigation.
func (s *State) RefreshCart(ctx context.Context) []marketapi.CartLine {
	if !s.Session.LoggedIn() {
		s.Cart.Reset()
		return nil
	}
	lines, err := s.API.Cart(ctx)
	if err != nil {
		s.logger.Warn("refresh cart failed", "error", err)
		return s.Cart.Lines()
	}
	s.Cart.Set(lines)
	return lines
}

// Probe silently re-establishes a session from existing credentials.
func (s *State) Probe(ctx context.Context) bool {
	user, err := s.API.Probe(ctx)
	if err != nil || user == nil {
		return false
	}
	s.SignIn(*user)
	s.RefreshCart(ctx)
	s.logger.Info("session restored", "user_id", user.ID, "role", user.Role)
	return true
}

var _ marketapi.Hooks = (*State)(nil)

// SessionExpired clears the identity after a 401.
func (s *State) SessionExpired(_ context.Context, silent bool) {
	s.SignOut()
	if !silent {
		s.Toasts.Error("Session expired", "Please sign in again")
	}
}

// AccessDenied bounces to the home page after a 403 on an admin route.
func (s *State) AccessDenied(context.Context) {
	s.Redirect(HomePage)
	s.Toasts.Error("Access denied", "Administrator rights are required")
}

func (s *State) Unreachable(context.Context, error) {
	s.Toasts.Error("Connection error", "Cannot reach the server. Check that it is running.")
}

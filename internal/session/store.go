// Package session holds the identity of the signed-in marketplace user.
package session

import (
	"strings"
	"sync"
)

// Role is one of the marketplace's closed set of roles.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleFarmer   Role = "farmer"
	RoleAdmin    Role = "admin"
)

// ParseRole maps a raw role name onto the closed set. Unknown names yield
// an empty role, which satisfies none of the predicates.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleCustomer:
		return RoleCustomer
	case RoleFarmer:
		return RoleFarmer
	case RoleAdmin:
		return RoleAdmin
	default:
		return ""
	}
}

// Valid reports whether r belongs to the closed set.
func (r Role) Valid() bool {
	return ParseRole(string(r)) != ""
}

// Identity is the authenticated user as seen by the storefront.
type Identity struct {
	UserID      int64
	DisplayName string
	Email       string
	Address     string
	Role        Role
}

// Store holds at most one identity.
type Store struct {
	mu       sync.RWMutex
	identity *Identity
}

func NewStore() *Store {
	return &Store{}
}

// Set replaces the identity after login, registration or a successful probe.
func (s *Store) Set(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = &id
}

// Clear drops the identity on logout or session expiry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil
}

// Current returns a copy of the identity.
func (s *Store) Current() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

func (s *Store) LoggedIn() bool {
	_, ok := s.Current()
	return ok
}

// UpdateProfile patches the editable fields of the current identity.
func (s *Store) UpdateProfile(name, address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return
	}
	s.identity.DisplayName = name
	s.identity.Address = address
}

func (s *Store) IsAdmin() bool    { return s.hasRole(RoleAdmin) }
func (s *Store) IsSupplier() bool { return s.hasRole(RoleFarmer) }
func (s *Store) IsCustomer() bool { return s.hasRole(RoleCustomer) }

func (s *Store) hasRole(role Role) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != nil && s.identity.Role == role
}

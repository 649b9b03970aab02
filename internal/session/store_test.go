package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStore_PredicatesWithoutIdentity(t *testing.T) {
	s := NewStore()
	assert.False(t, s.IsAdmin())
	assert.False(t, s.IsSupplier())
	assert.False(t, s.IsCustomer())
	assert.False(t, s.LoggedIn())
}

func TestStore_Predicates(t *testing.T) {
	cases := []struct {
		role                      Role
		admin, supplier, customer bool
	}{
		{RoleAdmin, true, false, false},
		{RoleFarmer, false, true, false},
		{RoleCustomer, false, false, true},
		{Role("guest"), false, false, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			s := NewStore()
			s.Set(Identity{UserID: 1, Role: tc.role})
			assert.Equal(t, tc.admin, s.IsAdmin())
			assert.Equal(t, tc.supplier, s.IsSupplier())
			assert.Equal(t, tc.customer, s.IsCustomer())
		})
	}
}

func TestStore_ClearAndUpdate(t *testing.T) {
	s := NewStore()
	s.UpdateProfile("ignored", "nowhere")
	assert.False(t, s.LoggedIn())

	s.Set(Identity{UserID: 7, DisplayName: "Ann", Role: RoleCustomer})
	s.UpdateProfile("Anna", "Farm Road 1")
	id, ok := s.Current()
	assert.True(t, ok)
	assert.Equal(t, "Anna", id.DisplayName)
	assert.Equal(t, "Farm Road 1", id.Address)

	s.Clear()
	_, ok = s.Current()
	assert.False(t, ok)
	assert.False(t, s.IsCustomer())
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleAdmin, ParseRole(" Admin "))
	assert.Equal(t, RoleFarmer, ParseRole("farmer"))
	assert.Equal(t, Role(""), ParseRole("supplier"))
	assert.True(t, RoleCustomer.Valid())
	assert.False(t, Role("x").Valid())
}

package marketapi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/farmstand/internal/session"
)

func TestUser_RoleShapes(t *testing.T) {
	var a, b, c User
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"name":"Ann","role":"admin"}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"id":2,"username":"bob","role":{"id":3,"name":"Farmer"}}`), &b))
	require.NoError(t, json.Unmarshal([]byte(`{"id":3,"username":"cy","role":"wizard"}`), &c))

	assert.Equal(t, session.RoleAdmin, a.Role)
	assert.Equal(t, "Ann", a.Name)
	assert.Equal(t, session.RoleFarmer, b.Role)
	assert.Equal(t, "bob", b.Name)
	assert.Equal(t, session.Role(""), c.Role)

	id := b.Identity()
	assert.Equal(t, int64(2), id.UserID)
	assert.Equal(t, "bob", id.DisplayName)
}

func TestUser_RejectsNonObject(t *testing.T) {
	var u User
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &u))
}

func TestProduct_CategoryAndSupplierShapes(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantCatID    int64
		wantCategory string
		wantSupplier int64
	}{
		{"nested objects", `{"id":1,"category":{"id":4,"name":"Dairy"},"farm":{"id":9}}`, 4, "Dairy", 9},
		{"bare name and supplier id", `{"id":1,"category":"Fruit","supplier_id":5}`, 0, "Fruit", 5},
		{"category id field", `{"id":1,"category_id":6,"farm_id":"8"}`, 6, "", 8},
		{"numeric category", `{"id":1,"category":2,"supplier":{"id":3}}`, 2, "", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Product
			require.NoError(t, json.Unmarshal([]byte(tt.body), &p))
			assert.Equal(t, tt.wantCatID, p.CategoryID)
			assert.Equal(t, tt.wantCategory, p.Category)
			assert.Equal(t, tt.wantSupplier, p.SupplierID)
		})
	}
}

func TestFarm_Normalization(t *testing.T) {
	var f Farm
	body := `{"id":2,"user":{"id":11},"name":"Green","address":"Hill 1","rating_avg":4.5,"status":"Approved","featured":true}`
	require.NoError(t, json.Unmarshal([]byte(body), &f))
	assert.Equal(t, int64(11), f.OwnerID)
	assert.Equal(t, "Hill 1", f.Location)
	assert.InDelta(t, 4.5, f.Rating, 0.001)
	assert.True(t, f.Approved)
	assert.True(t, f.Featured)

	var pending Farm
	require.NoError(t, json.Unmarshal([]byte(`{"id":3,"user_id":4,"approved":true,"status":"pending"}`), &pending))
	assert.False(t, pending.Approved)
	assert.Equal(t, int64(4), pending.OwnerID)
}

func TestReviewAndOrder_Normalization(t *testing.T) {
	var rv Review
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"user":{"id":2,"username":"kim"},"farm_id":3,"rating":4,"created_at":"2024-05-01T10:00:00"}`), &rv))
	assert.Equal(t, "kim", rv.UserName)
	assert.Equal(t, int64(2), rv.UserID)
	assert.Equal(t, 2024, rv.CreatedAt.Year())

	var o Order
	require.NoError(t, json.Unmarshal([]byte(`{"id":5,"total":12.5,"created_at":"2024-05-02","status":"pending"}`), &o))
	assert.InDelta(t, 12.5, o.Total, 0.001)
	assert.Equal(t, time.May, o.PlacedAt.Month())
}

func TestUserSubscription_PlanName(t *testing.T) {
	var s UserSubscription
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"plan":{"id":2,"name":"Weekly box"},"status":"active"}`), &s))
	assert.Equal(t, "Weekly box", s.PlanName)
	assert.Equal(t, int64(2), s.PlanID)
}

func TestDecodePage(t *testing.T) {
	raw := json.RawMessage(`{"users":[{"id":1,"username":"a","role":"customer"}],"total":11,"total_pages":2}`)
	page, err := decodePage[User](raw, "users", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 11, page.Total)
	assert.Equal(t, 2, page.TotalPages)

	items, err := decodePage[Review](json.RawMessage(`{"items":[{"id":9}]}`), "reviews", 1, 10)
	require.NoError(t, err)
	require.Len(t, items.Items, 1)
	assert.Equal(t, 1, items.TotalPages)

	empty, err := decodePage[Order](nil, "orders", 3, 10)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.Equal(t, 3, empty.Page)
}

package app

import (
	"sync"

	"example.com/farmstand/internal/marketapi"
)

// CartSlice mirrors the server-owned cart. Mutations refresh it; the nav bar
// only reads it.
type CartSlice struct {
	mu    sync.RWMutex
	lines []marketapi.CartLine
}

func (c *CartSlice) Set(lines []marketapi.CartLine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append([]marketapi.CartLine(nil), lines...)
}

func (c *CartSlice) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}

// Lines returns a copy of the cart rows.
func (c *CartSlice) Lines() []marketapi.CartLine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]marketapi.CartLine(nil), c.lines...)
}

// Count is the badge number: total units across lines.
func (c *CartSlice) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

// Quantity returns how many units of a product are in the cart.
func (c *CartSlice) Quantity(productID int64) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.lines {
		if l.ProductID == productID {
			return l.Quantity
		}
	}
	return 0
}

func (c *CartSlice) Empty() bool {
	return c.Count() == 0
}

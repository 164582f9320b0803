package domain

import (
	"errors"
	"strconv"
)

// ErrEmptyCart is returned when checking out a cart without items.
var ErrEmptyCart = errors.New("cart is empty")

const (
	cartKeyPrefix = "cartItems:"
	cartKeyGuest  = cartKeyPrefix + "guest"
)

// CartItem is one line of a shopping cart.
type CartItem struct {
	ID    int64   `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
	Qty   int     `json:"qty"`
}

// Subtotal returns price times quantity.
func (it CartItem) Subtotal() float64 {
	return it.Price * float64(it.Qty)
}

// CartKey returns the storage key of the cart owned by user.
// A nil user maps to the guest cart.
func CartKey(user *User) string {
	if user == nil || user.ID == 0 {
		return cartKeyGuest
	}

	return cartKeyPrefix + strconv.FormatInt(user.ID, 10)
}

// CartSummary is a snapshot of a cart with its derived values.
type CartSummary struct {
	Items          []CartItem `json:"items"`
	Count          int        `json:"count"`
	Total          float64    `json:"total"`
	FormattedTotal string     `json:"formattedTotal"`
}

// Receipt is returned by a successful checkout.
type Receipt struct {
	CartSummary

	CartKey string `json:"cartKey"`
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart defines the struct for the 'carts' table
type Cart struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"userId" db:"user_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// CartItem defines the struct for the 'cart_items' table
type CartItem struct {
	ID        int64     `json:"id" db:"id"`
	CartID    int64     `json:"cartId" db:"cart_id"`
	ProductID int64     `json:"productId" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// CartLine is a cart item joined with the product it references.
type CartLine struct {
	CartItem
	Product Product `json:"product"`
}

// LineTotal is price * quantity for the line.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartView is the read model returned by GetCart.
type CartView struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"userId"`
	Items      []CartLine      `json:"items"`
	TotalItems int             `json:"totalItems"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// NewCartView computes totals for the given lines.
func NewCartView(cartID, userID int64, lines []CartLine) CartView {
	if lines == nil {
		lines = []CartLine{}
	}
	view := CartView{ID: cartID, UserID: userID, Items: lines, Subtotal: decimal.Zero}
	for _, line := range lines {
		view.TotalItems += line.Quantity
		view.Subtotal = view.Subtotal.Add(line.LineTotal())
	}
	return view
}

// ClearResult confirms a cleared cart.
type ClearResult struct {
	Message       string `json:"message"`
	ItemsRemoved  int    `json:"itemsRemoved"`
	UnitsReleased int    `json:"unitsReleased"`
}

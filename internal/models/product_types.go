package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the model for the 'products' table.
// StockQuantity is the available-to-sell count; reserved units live in cart_items.
type Product struct {
	ID              int64           `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	Slug            string          `json:"slug" db:"slug"`
	Description     string          `json:"description" db:"description"`
	Price           decimal.Decimal `json:"price" db:"price"`
	IsConnectedOnly bool            `json:"isConnectedOnly" db:"is_connected_only"`
	StockQuantity   int             `json:"stockQuantity" db:"stock_quantity"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
}

// ProductChanges holds the optional fields of a product update.
// Nil pointers are left untouched. Stock only moves through the inventory ledger.
type ProductChanges struct {
	Name            *string
	Description     *string
	Price           *decimal.Decimal
	IsConnectedOnly *bool
}

// Apply copies the non-nil fields onto p.
func (c ProductChanges) Apply(p *Product) {
	if c.Name != nil {
		p.Name = *c.Name
	}
	if c.Description != nil {
		p.Description = *c.Description
	}
	if c.Price != nil {
		p.Price = *c.Price
	}
	if c.IsConnectedOnly != nil {
		p.IsConnectedOnly = *c.IsConnectedOnly
	}
}

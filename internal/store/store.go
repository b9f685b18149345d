// Package store defines the transactional data-access contract shared by the
// SQL and in-memory backends.
package store

import (
	"context"
	"errors"

	"github.com/01moynul/storefront-api/internal/models"
)

// ErrNotFound is returned by point lookups that match no row.
// Services translate it into a domain error with a meaningful message.
var ErrNotFound = errors.New("store: record not found")

// ErrDuplicate is returned when an insert or update violates a unique key.
var ErrDuplicate = errors.New("store: duplicate key")

// Store opens transactions. Update runs fn in a read-write transaction that is
// committed when fn returns nil and rolled back otherwise (including on panic).
// View runs fn in a read-only transaction.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside one transaction.
type Tx interface {
	ProductTx
	CartTx
	UserTx
}

// ProductTx covers the products table.
type ProductTx interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	// LockProduct reads the product and holds a write lock on its row until the transaction ends.
	LockProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, includeConnectedOnly bool) ([]models.Product, error)
	InsertProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	UpdateProductStock(ctx context.Context, id int64, stock int) error
	DeleteProduct(ctx context.Context, id int64) error
	// CountReservations returns how many cart items reference the product.
	CountReservations(ctx context.Context, productID int64) (int, error)
}

// CartTx covers carts and cart_items.
type CartTx interface {
	FindCartByUser(ctx context.Context, userID int64) (*models.Cart, error)
	// LockCartByUser reads the user's cart and holds a write lock on it.
	LockCartByUser(ctx context.Context, userID int64) (*models.Cart, error)
	InsertCart(ctx context.Context, c *models.Cart) error
	DeleteCart(ctx context.Context, id int64) error

	GetCartItem(ctx context.Context, id int64) (*models.CartItem, error)
	FindCartItem(ctx context.Context, cartID, productID int64) (*models.CartItem, error)
	ListCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error)
	// ListCartLines joins the cart's items with their products.
	ListCartLines(ctx context.Context, cartID int64) ([]models.CartLine, error)
	InsertCartItem(ctx context.Context, item *models.CartItem) error
	UpdateCartItemQuantity(ctx context.Context, id int64, quantity int) error
	DeleteCartItem(ctx context.Context, id int64) error
	DeleteCartItems(ctx context.Context, cartID int64) (int, error)
}

// UserTx covers the users table.
type UserTx interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	InsertUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id int64) error
}

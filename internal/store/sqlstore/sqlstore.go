// Package sqlstore implements store.Store on MySQL through database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/01moynul/storefront-api/internal/apperr"
	"github.com/01moynul/storefront-api/internal/models"
	"github.com/01moynul/storefront-api/internal/store"
)

// MySQL server error numbers we react to.
const (
	errDuplicateEntry  = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errNoReferencedRow = 1452
)

// Store implements store.Store on a *sql.DB pool.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New wraps an open connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Update runs fn inside a READ COMMITTED transaction. Rows that must not change
// underneath the caller are locked explicitly with the Lock* methods.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classify(err, "begin transaction")
	}
	defer tx.Rollback() // Safety net

	if err := fn(&sqlTx{tx: tx, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(err, "commit")
	}
	return nil
}

// View runs fn inside a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return classify(err, "begin read-only transaction")
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx, now: s.now}); err != nil {
		return err
	}
	return classify(tx.Commit(), "commit read-only transaction")
}

// classify turns driver errors into store sentinels or transient conflicts.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errDuplicateEntry:
			return store.ErrDuplicate
		case errNoReferencedRow:
			// The parent row (user, cart or product) is gone.
			return store.ErrNotFound
		case errDeadlock, errLockWaitTimeout:
			return apperr.Wrap(apperr.KindConflict, err, "transaction conflict, please retry")
		}
	}
	return errors.Wrap(err, "sqlstore: "+op)
}

type sqlTx struct {
	tx  *sql.Tx
	now func() time.Time
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

//
// --- Products ---
//

const productColumns = `id, name, slug, description, price, is_connected_only, stock_quantity, created_at, updated_at`

const (
	queryGetProduct         = "SELECT " + productColumns + " FROM products WHERE id = ?"
	queryLockProduct        = "SELECT " + productColumns + " FROM products WHERE id = ? FOR UPDATE"
	queryListProducts       = "SELECT " + productColumns + " FROM products ORDER BY id"
	queryListPublicProducts = "SELECT " + productColumns + " FROM products WHERE is_connected_only = FALSE ORDER BY id"
	queryInsertProduct      = `INSERT INTO products (name, slug, description, price, is_connected_only, stock_quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	queryUpdateProduct = `UPDATE products
		SET name = ?, slug = ?, description = ?, price = ?, is_connected_only = ?, updated_at = ?
		WHERE id = ?`
	queryUpdateProductStock = "UPDATE products SET stock_quantity = ?, updated_at = ? WHERE id = ?"
	queryDeleteProduct      = "DELETE FROM products WHERE id = ?"
	queryCountReservations  = "SELECT COUNT(*) FROM cart_items WHERE product_id = ?"
)

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price, &p.IsConnectedOnly, &p.StockQuantity, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *sqlTx) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	p, err := scanProduct(t.tx.QueryRowContext(ctx, queryGetProduct, id))
	return p, classify(err, "get product")
}

func (t *sqlTx) LockProduct(ctx context.Context, id int64) (*models.Product, error) {
	p, err := scanProduct(t.tx.QueryRowContext(ctx, queryLockProduct, id))
	return p, classify(err, "lock product")
}

func (t *sqlTx) ListProducts(ctx context.Context, includeConnectedOnly bool) ([]models.Product, error) {
	query := queryListPublicProducts
	if includeConnectedOnly {
		query = queryListProducts
	}
	rows, err := t.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(err, "list products")
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, classify(err, "scan product")
		}
		products = append(products, *p)
	}
	return products, classify(rows.Err(), "iterate products")
}

func (t *sqlTx) InsertProduct(ctx context.Context, p *models.Product) error {
	now := t.now()
	result, err := t.tx.ExecContext(ctx, queryInsertProduct,
		p.Name, p.Slug, p.Description, p.Price, p.IsConnectedOnly, p.StockQuantity, now, now)
	if err != nil {
		return classify(err, "insert product")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return classify(err, "product id")
	}
	p.ID = id
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

func (t *sqlTx) UpdateProduct(ctx context.Context, p *models.Product) error {
	now := t.now()
	_, err := t.tx.ExecContext(ctx, queryUpdateProduct,
		p.Name, p.Slug, p.Description, p.Price, p.IsConnectedOnly, now, p.ID)
	if err != nil {
		return classify(err, "update product")
	}
	p.UpdatedAt = now
	return nil
}

func (t *sqlTx) UpdateProductStock(ctx context.Context, id int64, stock int) error {
	_, err := t.tx.ExecContext(ctx, queryUpdateProductStock, stock, t.now(), id)
	return classify(err, "update product stock")
}

func (t *sqlTx) DeleteProduct(ctx context.Context, id int64) error {
	return t.execDelete(ctx, queryDeleteProduct, id, "delete product")
}

func (t *sqlTx) CountReservations(ctx context.Context, productID int64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, queryCountReservations, productID).Scan(&n)
	return n, classify(err, "count reservations")
}

//
// --- Carts ---
//

const (
	queryFindCartByUser = "SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ?"
	queryLockCartByUser = "SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ? FOR UPDATE"
	queryInsertCart     = "INSERT INTO carts (user_id, created_at, updated_at) VALUES (?, ?, ?)"
	queryDeleteCart     = "DELETE FROM carts WHERE id = ?"

	cartItemColumns = "id, cart_id, product_id, quantity, created_at, updated_at"

	queryGetCartItem    = "SELECT " + cartItemColumns + " FROM cart_items WHERE id = ?"
	queryFindCartItem   = "SELECT " + cartItemColumns + " FROM cart_items WHERE cart_id = ? AND product_id = ?"
	queryListCartItems  = "SELECT " + cartItemColumns + " FROM cart_items WHERE cart_id = ? ORDER BY id"
	queryInsertCartItem = `INSERT INTO cart_items (cart_id, product_id, quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`
	queryUpdateCartItemQuantity = "UPDATE cart_items SET quantity = ?, updated_at = ? WHERE id = ?"
	queryDeleteCartItem         = "DELETE FROM cart_items WHERE id = ?"
	queryDeleteCartItems        = "DELETE FROM cart_items WHERE cart_id = ?"
	queryListCartLines          = `
		SELECT
			ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.created_at, ci.updated_at,
			p.id, p.name, p.slug, p.description, p.price, p.is_connected_only, p.stock_quantity, p.created_at, p.updated_at
		FROM cart_items ci
		JOIN products p ON ci.product_id = p.id
		WHERE ci.cart_id = ?
		ORDER BY ci.id`
)

func scanCart(row rowScanner) (*models.Cart, error) {
	var c models.Cart
	if err := row.Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCartItem(row rowScanner) (*models.CartItem, error) {
	var item models.CartItem
	if err := row.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	return &item, nil
}

func (t *sqlTx) FindCartByUser(ctx context.Context, userID int64) (*models.Cart, error) {
	c, err := scanCart(t.tx.QueryRowContext(ctx, queryFindCartByUser, userID))
	return c, classify(err, "find cart")
}

func (t *sqlTx) LockCartByUser(ctx context.Context, userID int64) (*models.Cart, error) {
	c, err := scanCart(t.tx.QueryRowContext(ctx, queryLockCartByUser, userID))
	return c, classify(err, "lock cart")
}

func (t *sqlTx) InsertCart(ctx context.Context, c *models.Cart) error {
	now := t.now()
	result, err := t.tx.ExecContext(ctx, queryInsertCart, c.UserID, now, now)
	if err != nil {
		return classify(err, "insert cart")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return classify(err, "cart id")
	}
	c.ID = id
	c.CreatedAt, c.UpdatedAt = now, now
	return nil
}

func (t *sqlTx) DeleteCart(ctx context.Context, id int64) error {
	return t.execDelete(ctx, queryDeleteCart, id, "delete cart")
}

func (t *sqlTx) GetCartItem(ctx context.Context, id int64) (*models.CartItem, error) {
	item, err := scanCartItem(t.tx.QueryRowContext(ctx, queryGetCartItem, id))
	return item, classify(err, "get cart item")
}

func (t *sqlTx) FindCartItem(ctx context.Context, cartID, productID int64) (*models.CartItem, error) {
	item, err := scanCartItem(t.tx.QueryRowContext(ctx, queryFindCartItem, cartID, productID))
	return item, classify(err, "find cart item")
}

func (t *sqlTx) ListCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	rows, err := t.tx.QueryContext(ctx, queryListCartItems, cartID)
	if err != nil {
		return nil, classify(err, "list cart items")
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, classify(err, "scan cart item")
		}
		items = append(items, *item)
	}
	return items, classify(rows.Err(), "iterate cart items")
}

func (t *sqlTx) ListCartLines(ctx context.Context, cartID int64) ([]models.CartLine, error) {
	rows, err := t.tx.QueryContext(ctx, queryListCartLines, cartID)
	if err != nil {
		return nil, classify(err, "list cart lines")
	}
	defer rows.Close()

	lines := []models.CartLine{}
	for rows.Next() {
		var l models.CartLine
		p := &l.Product
		if err := rows.Scan(
			&l.ID, &l.CartID, &l.ProductID, &l.Quantity, &l.CreatedAt, &l.UpdatedAt,
			&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price, &p.IsConnectedOnly, &p.StockQuantity, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, classify(err, "scan cart line")
		}
		lines = append(lines, l)
	}
	return lines, classify(rows.Err(), "iterate cart lines")
}

func (t *sqlTx) InsertCartItem(ctx context.Context, item *models.CartItem) error {
	now := t.now()
	result, err := t.tx.ExecContext(ctx, queryInsertCartItem, item.CartID, item.ProductID, item.Quantity, now, now)
	if err != nil {
		return classify(err, "insert cart item")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return classify(err, "cart item id")
	}
	item.ID = id
	item.CreatedAt, item.UpdatedAt = now, now
	return nil
}

func (t *sqlTx) UpdateCartItemQuantity(ctx context.Context, id int64, quantity int) error {
	_, err := t.tx.ExecContext(ctx, queryUpdateCartItemQuantity, quantity, t.now(), id)
	return classify(err, "update cart item")
}

func (t *sqlTx) DeleteCartItem(ctx context.Context, id int64) error {
	return t.execDelete(ctx, queryDeleteCartItem, id, "delete cart item")
}

func (t *sqlTx) DeleteCartItems(ctx context.Context, cartID int64) (int, error) {
	result, err := t.tx.ExecContext(ctx, queryDeleteCartItems, cartID)
	if err != nil {
		return 0, classify(err, "delete cart items")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, classify(err, "delete cart items")
	}
	return int(n), nil
}

//
// --- Users ---
//

const (
	userColumns = "id, email, password_hash, role, created_at, updated_at"

	queryGetUser        = "SELECT " + userColumns + " FROM users WHERE id = ?"
	queryGetUserByEmail = "SELECT " + userColumns + " FROM users WHERE email = ?"
	queryListUsers      = "SELECT " + userColumns + " FROM users ORDER BY id"
	queryInsertUser     = "INSERT INTO users (email, password_hash, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?)"
	queryUpdateUser     = "UPDATE users SET email = ?, password_hash = ?, role = ?, updated_at = ? WHERE id = ?"
	queryDeleteUser     = "DELETE FROM users WHERE id = ?"
)

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (t *sqlTx) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(t.tx.QueryRowContext(ctx, queryGetUser, id))
	return u, classify(err, "get user")
}

func (t *sqlTx) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(t.tx.QueryRowContext(ctx, queryGetUserByEmail, email))
	return u, classify(err, "get user by email")
}

func (t *sqlTx) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := t.tx.QueryContext(ctx, queryListUsers)
	if err != nil {
		return nil, classify(err, "list users")
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, classify(err, "scan user")
		}
		users = append(users, *u)
	}
	return users, classify(rows.Err(), "iterate users")
}

func (t *sqlTx) InsertUser(ctx context.Context, u *models.User) error {
	now := t.now()
	result, err := t.tx.ExecContext(ctx, queryInsertUser, u.Email, u.PasswordHash, u.Role, now, now)
	if err != nil {
		return classify(err, "insert user")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return classify(err, "user id")
	}
	u.ID = id
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

func (t *sqlTx) UpdateUser(ctx context.Context, u *models.User) error {
	now := t.now()
	if _, err := t.tx.ExecContext(ctx, queryUpdateUser, u.Email, u.PasswordHash, u.Role, now, u.ID); err != nil {
		return classify(err, "update user")
	}
	u.UpdatedAt = now
	return nil
}

func (t *sqlTx) DeleteUser(ctx context.Context, id int64) error {
	return t.execDelete(ctx, queryDeleteUser, id, "delete user")
}

// execDelete runs a single-row delete and reports store.ErrNotFound when nothing matched.
func (t *sqlTx) execDelete(ctx context.Context, query string, id int64, op string) error {
	result, err := t.tx.ExecContext(ctx, query, id)
	if err != nil {
		return classify(err, op)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return classify(err, op)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

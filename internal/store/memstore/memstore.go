// Package memstore is an in-memory store.Store backed by go-memdb.
// Write transactions are serialized by memdb, which gives the same
// check-and-update isolation the SQL store gets from row locks.
package memstore

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/01moynul/storefront-api/internal/models"
	"github.com/01moynul/storefront-api/internal/store"
)

const (
	tableProducts  = "products"
	tableCarts     = "carts"
	tableCartItems = "cart_items"
	tableUsers     = "users"
)

func schema() *memdb.DBSchema {
	id := &memdb.IndexSchema{Name: "id", Unique: true, Indexer: &memdb.IntFieldIndex{Field: "ID"}}
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableProducts: {
				Name:    tableProducts,
				Indexes: map[string]*memdb.IndexSchema{"id": id},
			},
			tableCarts: {
				Name: tableCarts,
				Indexes: map[string]*memdb.IndexSchema{
					"id":   id,
					"user": {Name: "user", Unique: true, Indexer: &memdb.IntFieldIndex{Field: "UserID"}},
				},
			},
			tableCartItems: {
				Name: tableCartItems,
				Indexes: map[string]*memdb.IndexSchema{
					"id":      id,
					"cart":    {Name: "cart", Indexer: &memdb.IntFieldIndex{Field: "CartID"}},
					"product": {Name: "product", Indexer: &memdb.IntFieldIndex{Field: "ProductID"}},
					"cart_product": {
						Name:   "cart_product",
						Unique: true,
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.IntFieldIndex{Field: "CartID"},
							&memdb.IntFieldIndex{Field: "ProductID"},
						}},
					},
				},
			},
			tableUsers: {
				Name: tableUsers,
				Indexes: map[string]*memdb.IndexSchema{
					"id":    id,
					"email": {Name: "email", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Email", Lowercase: true}},
				},
			},
		},
	}
}

// Store implements store.Store in memory.
type Store struct {
	db  *memdb.MemDB
	now func() time.Time

	productSeq  atomic.Int64
	cartSeq     atomic.Int64
	cartItemSeq atomic.Int64
	userSeq     atomic.Int64
}

// New creates an empty store.
func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, errors.Wrap(err, "memstore: build schema")
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Update runs fn in a write transaction. memdb allows a single writer at a time.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := fn(&tx{txn: txn, s: s}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// View runs fn against a consistent snapshot.
func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.Txn(false)
	defer txn.Abort()
	return fn(&tx{txn: txn, s: s})
}

type tx struct {
	txn *memdb.Txn
	s   *Store
}

func (t *tx) first(table, index string, args ...interface{}) (interface{}, error) {
	raw, err := t.txn.First(table, index, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "memstore: lookup %s.%s", table, index)
	}
	if raw == nil {
		return nil, store.ErrNotFound
	}
	return raw, nil
}

func (t *tx) insert(table string, obj interface{}) error {
	return errors.Wrapf(t.txn.Insert(table, obj), "memstore: insert into %s", table)
}

//
// --- Products ---
//

func (t *tx) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	raw, err := t.first(tableProducts, "id", id)
	if err != nil {
		return nil, err
	}
	p := *raw.(*models.Product)
	return &p, nil
}

func (t *tx) LockProduct(ctx context.Context, id int64) (*models.Product, error) {
	return t.GetProduct(ctx, id)
}

func (t *tx) ListProducts(ctx context.Context, includeConnectedOnly bool) ([]models.Product, error) {
	it, err := t.txn.Get(tableProducts, "id")
	if err != nil {
		return nil, errors.Wrap(err, "memstore: list products")
	}
	products := []models.Product{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		p := *raw.(*models.Product)
		if p.IsConnectedOnly && !includeConnectedOnly {
			continue
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (t *tx) InsertProduct(ctx context.Context, p *models.Product) error {
	now := t.s.now()
	p.ID = t.s.productSeq.Add(1)
	p.CreatedAt, p.UpdatedAt = now, now
	row := *p
	return t.insert(tableProducts, &row)
}

func (t *tx) UpdateProduct(ctx context.Context, p *models.Product) error {
	current, err := t.GetProduct(ctx, p.ID)
	if err != nil {
		return err
	}
	p.CreatedAt = current.CreatedAt
	p.StockQuantity = current.StockQuantity
	p.UpdatedAt = t.s.now()
	row := *p
	return t.insert(tableProducts, &row)
}

func (t *tx) UpdateProductStock(ctx context.Context, id int64, stock int) error {
	p, err := t.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	p.StockQuantity = stock
	p.UpdatedAt = t.s.now()
	return t.insert(tableProducts, p)
}

func (t *tx) DeleteProduct(ctx context.Context, id int64) error {
	raw, err := t.first(tableProducts, "id", id)
	if err != nil {
		return err
	}
	return errors.Wrap(t.txn.Delete(tableProducts, raw), "memstore: delete product")
}

func (t *tx) CountReservations(ctx context.Context, productID int64) (int, error) {
	it, err := t.txn.Get(tableCartItems, "product", productID)
	if err != nil {
		return 0, errors.Wrap(err, "memstore: count reservations")
	}
	n := 0
	for raw := it.Next(); raw != nil; raw = it.Next() {
		n++
	}
	return n, nil
}

//
// --- Carts ---
//

func (t *tx) FindCartByUser(ctx context.Context, userID int64) (*models.Cart, error) {
	raw, err := t.first(tableCarts, "user", userID)
	if err != nil {
		return nil, err
	}
	c := *raw.(*models.Cart)
	return &c, nil
}

func (t *tx) LockCartByUser(ctx context.Context, userID int64) (*models.Cart, error) {
	return t.FindCartByUser(ctx, userID)
}

func (t *tx) InsertCart(ctx context.Context, c *models.Cart) error {
	if _, err := t.FindCartByUser(ctx, c.UserID); err == nil {
		return store.ErrDuplicate
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	now := t.s.now()
	c.ID = t.s.cartSeq.Add(1)
	c.CreatedAt, c.UpdatedAt = now, now
	row := *c
	return t.insert(tableCarts, &row)
}

func (t *tx) DeleteCart(ctx context.Context, id int64) error {
	raw, err := t.first(tableCarts, "id", id)
	if err != nil {
		return err
	}
	return errors.Wrap(t.txn.Delete(tableCarts, raw), "memstore: delete cart")
}

func (t *tx) GetCartItem(ctx context.Context, id int64) (*models.CartItem, error) {
	raw, err := t.first(tableCartItems, "id", id)
	if err != nil {
		return nil, err
	}
	item := *raw.(*models.CartItem)
	return &item, nil
}

func (t *tx) FindCartItem(ctx context.Context, cartID, productID int64) (*models.CartItem, error) {
	raw, err := t.first(tableCartItems, "cart_product", cartID, productID)
	if err != nil {
		return nil, err
	}
	item := *raw.(*models.CartItem)
	return &item, nil
}

func (t *tx) ListCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	it, err := t.txn.Get(tableCartItems, "cart", cartID)
	if err != nil {
		return nil, errors.Wrap(err, "memstore: list cart items")
	}
	items := []models.CartItem{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		items = append(items, *raw.(*models.CartItem))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (t *tx) ListCartLines(ctx context.Context, cartID int64) ([]models.CartLine, error) {
	items, err := t.ListCartItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	lines := make([]models.CartLine, 0, len(items))
	for _, item := range items {
		p, err := t.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, errors.Wrapf(err, "memstore: product %d of cart item %d", item.ProductID, item.ID)
		}
		lines = append(lines, models.CartLine{CartItem: item, Product: *p})
	}
	return lines, nil
}

func (t *tx) InsertCartItem(ctx context.Context, item *models.CartItem) error {
	if _, err := t.FindCartItem(ctx, item.CartID, item.ProductID); err == nil {
		return store.ErrDuplicate
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	now := t.s.now()
	item.ID = t.s.cartItemSeq.Add(1)
	item.CreatedAt, item.UpdatedAt = now, now
	row := *item
	return t.insert(tableCartItems, &row)
}

func (t *tx) UpdateCartItemQuantity(ctx context.Context, id int64, quantity int) error {
	item, err := t.GetCartItem(ctx, id)
	if err != nil {
		return err
	}
	item.Quantity = quantity
	item.UpdatedAt = t.s.now()
	return t.insert(tableCartItems, item)
}

func (t *tx) DeleteCartItem(ctx context.Context, id int64) error {
	raw, err := t.first(tableCartItems, "id", id)
	if err != nil {
		return err
	}
	return errors.Wrap(t.txn.Delete(tableCartItems, raw), "memstore: delete cart item")
}

func (t *tx) DeleteCartItems(ctx context.Context, cartID int64) (int, error) {
	n, err := t.txn.DeleteAll(tableCartItems, "cart", cartID)
	if err != nil {
		return 0, errors.Wrap(err, "memstore: delete cart items")
	}
	return n, nil
}

//
// --- Users ---
//

func (t *tx) GetUser(ctx context.Context, id int64) (*models.User, error) {
	raw, err := t.first(tableUsers, "id", id)
	if err != nil {
		return nil, err
	}
	u := *raw.(*models.User)
	return &u, nil
}

func (t *tx) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	raw, err := t.first(tableUsers, "email", email)
	if err != nil {
		return nil, err
	}
	u := *raw.(*models.User)
	return &u, nil
}

func (t *tx) ListUsers(ctx context.Context) ([]models.User, error) {
	it, err := t.txn.Get(tableUsers, "id")
	if err != nil {
		return nil, errors.Wrap(err, "memstore: list users")
	}
	users := []models.User{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		users = append(users, *raw.(*models.User))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (t *tx) InsertUser(ctx context.Context, u *models.User) error {
	if _, err := t.GetUserByEmail(ctx, u.Email); err == nil {
		return store.ErrDuplicate
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	now := t.s.now()
	u.ID = t.s.userSeq.Add(1)
	u.CreatedAt, u.UpdatedAt = now, now
	row := *u
	return t.insert(tableUsers, &row)
}

func (t *tx) UpdateUser(ctx context.Context, u *models.User) error {
	current, err := t.GetUser(ctx, u.ID)
	if err != nil {
		return err
	}
	if other, err := t.GetUserByEmail(ctx, u.Email); err == nil && other.ID != u.ID {
		return store.ErrDuplicate
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	u.CreatedAt = current.CreatedAt
	u.UpdatedAt = t.s.now()
	row := *u
	return t.insert(tableUsers, &row)
}

func (t *tx) DeleteUser(ctx context.Context, id int64) error {
	raw, err := t.first(tableUsers, "id", id)
	if err != nil {
		return err
	}
	return errors.Wrap(t.txn.Delete(tableUsers, raw), "memstore: delete user")
}

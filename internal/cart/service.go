// Package cart implements the cart reservation service. Every cart mutation
// moves stock through the inventory ledger inside the same transaction, so the
// units held by carts plus the units left on the shelf stay constant.
package cart

import (
	"context"
	"errors"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/01moynul/storefront-api/internal/apperr"
	"github.com/01moynul/storefront-api/internal/inventory"
	"github.com/01moynul/storefront-api/internal/models"
	"github.com/01moynul/storefront-api/internal/store"
)

// Recorder receives operation outcomes. *metrics.Metrics implements it.
type Recorder interface {
	CartOperation(operation, result string)
	StockDelta(delta int)
}

// Service owns cart state and reserves stock for it.
type Service struct {
	store   store.Store
	ledger  *inventory.Ledger
	log     *zap.Logger
	metrics Recorder
	tracer  trace.Tracer
}

func NewService(s store.Store, ledger *inventory.Ledger, log *zap.Logger, rec Recorder) *Service {
	return &Service{
		store:   s,
		ledger:  ledger,
		log:     log.Named("cart"),
		metrics: rec,
		tracer:  otel.Tracer("github.com/01moynul/storefront-api/internal/cart"),
	}
}

func validateQuantity(quantity int) error {
	if quantity < 1 {
		return apperr.InvalidArgument("quantity must be at least 1")
	}
	return nil
}

// AddItem reserves quantity units of the product for the user's cart, creating
// the cart on first use. A second add of the same product merges into the
// existing item.
func (s *Service) AddItem(ctx context.Context, userID, productID int64, quantity int) (*models.CartItem, error) {
	ctx, span := s.startSpan(ctx, "cart.AddItem", userID,
		attribute.Int64("product.id", productID), attribute.Int("quantity", quantity))

	var item *models.CartItem
	err := validateQuantity(quantity)
	if err == nil {
		err = s.store.Update(ctx, func(tx store.Tx) error {
			// 1. --- Get or create the cart (locked) ---
			cart, err := lockOrCreateCart(ctx, tx, userID)
			if err != nil {
				return err
			}

			// 2. --- Reserve stock ---
			if _, err := s.ledger.ApplyDelta(ctx, tx, productID, -quantity); err != nil {
				return err
			}

			// 3. --- Upsert the item ---
			existing, err := tx.FindCartItem(ctx, cart.ID, productID)
			switch {
			case err == nil:
				existing.Quantity += quantity
				if err := tx.UpdateCartItemQuantity(ctx, existing.ID, existing.Quantity); err != nil {
					return err
				}
				item = existing
			case errors.Is(err, store.ErrNotFound):
				item = &models.CartItem{CartID: cart.ID, ProductID: productID, Quantity: quantity}
				if err := tx.InsertCartItem(ctx, item); err != nil {
					return err
				}
			default:
				return err
			}
			return nil
		})
	}

	s.finish(span, "add_item", err, -quantity)
	if err != nil {
		return nil, err
	}
	s.log.Debug("item reserved",
		zap.Int64("user_id", userID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Int("item_quantity", item.Quantity),
	)
	return item, nil
}

// UpdateItem sets an item's quantity, reserving or releasing the difference.
func (s *Service) UpdateItem(ctx context.Context, userID, itemID int64, newQuantity int) (*models.CartItem, error) {
	ctx, span := s.startSpan(ctx, "cart.UpdateItem", userID,
		attribute.Int64("item.id", itemID), attribute.Int("quantity", newQuantity))

	var item *models.CartItem
	var diff int
	err := validateQuantity(newQuantity)
	if err == nil {
		err = s.store.Update(ctx, func(tx store.Tx) error {
			// 1. --- Verify ownership ---
			var err error
			item, err = lockOwnedItem(ctx, tx, userID, itemID)
			if err != nil {
				return err
			}

			// 2. --- Move the difference ---
			diff = newQuantity - item.Quantity
			if diff != 0 {
				if _, err := s.ledger.ApplyDelta(ctx, tx, item.ProductID, -diff); err != nil {
					return err
				}
			}

			// 3. --- Write the new quantity ---
			if err := tx.UpdateCartItemQuantity(ctx, item.ID, newQuantity); err != nil {
				return err
			}
			item.Quantity = newQuantity
			return nil
		})
	}

	s.finish(span, "update_item", err, -diff)
	if err != nil {
		return nil, err
	}
	s.log.Debug("item updated", zap.Int64("user_id", userID), zap.Int64("item_id", itemID), zap.Int("diff", diff))
	return item, nil
}

// RemoveItem deletes an item and releases everything it held.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID int64) (*models.CartItem, error) {
	ctx, span := s.startSpan(ctx, "cart.RemoveItem", userID, attribute.Int64("item.id", itemID))

	var item *models.CartItem
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		item, err = lockOwnedItem(ctx, tx, userID, itemID)
		if err != nil {
			return err
		}
		if _, err := s.ledger.ApplyDelta(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
		return tx.DeleteCartItem(ctx, item.ID)
	})

	released := 0
	if item != nil {
		released = item.Quantity
	}
	s.finish(span, "remove_item", err, released)
	if err != nil {
		return nil, err
	}
	s.log.Debug("item removed", zap.Int64("user_id", userID), zap.Int64("item_id", itemID), zap.Int("released", released))
	return item, nil
}

// ClearCart releases and deletes every item in the user's cart. The cart row is kept.
func (s *Service) ClearCart(ctx context.Context, userID int64) (*models.ClearResult, error) {
	ctx, span := s.startSpan(ctx, "cart.ClearCart", userID)

	var result *models.ClearResult
	err := s.store.Update(ctx, func(tx store.Tx) error {
		cart, err := tx.LockCartByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errCartNotFound()
			}
			return err
		}
		result, err = s.releaseItems(ctx, tx, cart.ID)
		return err
	})

	released := 0
	if result != nil {
		released = result.UnitsReleased
	}
	s.finish(span, "clear_cart", err, released)
	if err != nil {
		return nil, err
	}
	s.log.Debug("cart cleared", zap.Int64("user_id", userID), zap.Int("items", result.ItemsRemoved))
	return result, nil
}

// GetCart returns the user's cart with product snapshots. A user who never
// added anything gets an empty view.
func (s *Service) GetCart(ctx context.Context, userID int64) (*models.CartView, error) {
	ctx, span := s.startSpan(ctx, "cart.GetCart", userID)
	defer span.End()

	var view models.CartView
	err := s.store.View(ctx, func(tx store.Tx) error {
		cart, err := tx.FindCartByUser(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			view = models.NewCartView(0, userID, nil)
			return nil
		}
		if err != nil {
			return err
		}
		lines, err := tx.ListCartLines(ctx, cart.ID)
		if err != nil {
			return err
		}
		view = models.NewCartView(cart.ID, userID, lines)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &view, nil
}

// ReleaseCart returns all stock held by the user's cart and deletes the cart
// itself, using the caller's transaction. A user without a cart is a no-op.
func (s *Service) ReleaseCart(ctx context.Context, tx store.Tx, userID int64) (int, error) {
	cart, err := tx.LockCartByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	result, err := s.releaseItems(ctx, tx, cart.ID)
	if err != nil {
		return 0, err
	}
	if err := tx.DeleteCart(ctx, cart.ID); err != nil {
		return 0, err
	}
	return result.UnitsReleased, nil
}

// releaseItems gives back the stock of every item in the cart and deletes the items in one batch.
// Products are locked in id order so concurrent clears do not deadlock each other.
func (s *Service) releaseItems(ctx context.Context, tx store.Tx, cartID int64) (*models.ClearResult, error) {
	items, err := tx.ListCartItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	released := 0
	for _, item := range items {
		if _, err := s.ledger.ApplyDelta(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
		released += item.Quantity
	}

	removed, err := tx.DeleteCartItems(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return &models.ClearResult{Message: "cart cleared", ItemsRemoved: removed, UnitsReleased: released}, nil
}

//
// --- Helpers ---
//

func errCartNotFound() error {
	return apperr.NotFound("cart not found")
}

func errUserNotFound(userID int64) error {
	return apperr.NotFound("user %d not found", userID)
}

// lockOrCreateCart locks the user's cart row, inserting it on first use.
// A deleted account cannot get a new cart, even with a token that has not expired yet.
func lockOrCreateCart(ctx context.Context, tx store.Tx, userID int64) (*models.Cart, error) {
	cart, err := tx.LockCartByUser(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if _, err := tx.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errUserNotFound(userID)
		}
		return nil, err
	}

	cart = &models.Cart{UserID: userID}
	if err := tx.InsertCart(ctx, cart); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			// A concurrent request created it first.
			return tx.LockCartByUser(ctx, userID)
		case errors.Is(err, store.ErrNotFound):
			// The user row went away between the check and the insert.
			return nil, errUserNotFound(userID)
		}
		return nil, err
	}
	return cart, nil
}

// lockOwnedItem locks the user's cart and returns the item if it belongs to it.
// Someone else's item is reported as not found.
func lockOwnedItem(ctx context.Context, tx store.CartTx, userID, itemID int64) (*models.CartItem, error) {
	cart, err := tx.LockCartByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errCartNotFound()
		}
		return nil, err
	}

	item, err := tx.GetCartItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("cart item %d not found", itemID)
		}
		return nil, err
	}
	if item.CartID != cart.ID {
		return nil, apperr.NotFound("cart item %d not found", itemID)
	}
	return item, nil
}

func (s *Service) startSpan(ctx context.Context, name string, userID int64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.Int64("user.id", userID))
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// finish ends the span and records the outcome. stockDelta is only counted when the transaction committed.
func (s *Service) finish(span trace.Span, operation string, err error, stockDelta int) {
	defer span.End()

	if err == nil {
		s.metrics.CartOperation(operation, "ok")
		s.metrics.StockDelta(stockDelta)
		return
	}

	kind := apperr.KindOf(err)
	s.metrics.CartOperation(operation, kind.String())
	span.RecordError(err)
	span.SetStatus(codes.Error, kind.String())
	if kind == apperr.KindInternal {
		s.log.Error("cart operation failed", zap.String("operation", operation), zap.Error(err))
	}
}

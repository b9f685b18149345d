// Package inventory owns the per-product stock counter.
package inventory

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/01moynul/storefront-api/internal/apperr"
	"github.com/01moynul/storefront-api/internal/store"
)

// Ledger applies signed deltas to product stock. A negative delta reserves
// units, a positive one releases them.
type Ledger struct {
	log *zap.Logger
}

func NewLedger(log *zap.Logger) *Ledger {
	return &Ledger{log: log}
}

// ApplyDelta locks the product row, checks that stock stays non-negative and
// writes the new value. It runs inside the caller's transaction and never commits.
func (l *Ledger) ApplyDelta(ctx context.Context, tx store.ProductTx, productID int64, delta int) (int, error) {
	// 1. --- Lock the product row ---
	product, err := tx.LockProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, apperr.NotFound("product %d not found", productID)
		}
		return 0, err
	}

	// 2. --- Check availability ---
	newStock := product.StockQuantity + delta
	if newStock < 0 {
		return 0, apperr.InsufficientStock("insufficient stock for product %d: available %d, requested %d",
			productID, product.StockQuantity, -delta)
	}
	if delta == 0 {
		return product.StockQuantity, nil
	}

	// 3. --- Persist ---
	if err := tx.UpdateProductStock(ctx, productID, newStock); err != nil {
		return 0, err
	}

	l.log.Debug("stock adjusted",
		zap.Int64("product_id", productID),
		zap.Int("delta", delta),
		zap.Int("stock", newStock),
	)
	return newStock, nil
}

// Package products manages the product catalogue.
package products

import (
	"context"
	"errors"
	"strings"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/01moynul/storefront-api/internal/apperr"
	"github.com/01moynul/storefront-api/internal/inventory"
	"github.com/01moynul/storefront-api/internal/models"
	"github.com/01moynul/storefront-api/internal/store"
)

// StockRecorder receives committed stock adjustments.
type StockRecorder interface {
	StockDelta(delta int)
}

type Service struct {
	store   store.Store
	ledger  *inventory.Ledger
	log     *zap.Logger
	metrics StockRecorder
}

func NewService(s store.Store, ledger *inventory.Ledger, log *zap.Logger, rec StockRecorder) *Service {
	return &Service{store: s, ledger: ledger, log: log.Named("products"), metrics: rec}
}

// CreateInput is what an admin supplies for a new product.
type CreateInput struct {
	Name            string
	Description     string
	Price           decimal.Decimal
	IsConnectedOnly bool
	StockQuantity   int
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.InvalidArgument("name is required")
	}
	return nil
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return apperr.InvalidArgument("price must not be negative")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Product, error) {
	// 1. --- Validate ---
	if err := validateName(in.Name); err != nil {
		return nil, err
	}
	if err := validatePrice(in.Price); err != nil {
		return nil, err
	}
	if in.StockQuantity < 0 {
		return nil, apperr.InvalidArgument("stockQuantity must not be negative")
	}

	// 2. --- Insert ---
	p := &models.Product{
		Name:            strings.TrimSpace(in.Name),
		Slug:            slug.Make(in.Name),
		Description:     in.Description,
		Price:           in.Price,
		IsConnectedOnly: in.IsConnectedOnly,
		StockQuantity:   in.StockQuantity,
	}
	err := s.store.Update(ctx, func(tx store.Tx) error {
		return tx.InsertProduct(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("product created", zap.Int64("product_id", p.ID), zap.String("slug", p.Slug))
	return p, nil
}

// List returns the catalogue. Connected-only products are included only for authenticated callers.
func (s *Service) List(ctx context.Context, connected bool) ([]models.Product, error) {
	var out []models.Product
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListProducts(ctx, connected)
		return err
	})
	return out, err
}

func (s *Service) Get(ctx context.Context, id int64, connected bool) (*models.Product, error) {
	var p *models.Product
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		p, err = getProduct(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if p.IsConnectedOnly && !connected {
		return nil, apperr.Forbidden("product %d is only available to signed-in users", id)
	}
	return p, nil
}

// Update applies the non-nil changes. The slug follows the name.
func (s *Service) Update(ctx context.Context, id int64, changes models.ProductChanges) (*models.Product, error) {
	if changes.Name != nil {
		if err := validateName(*changes.Name); err != nil {
			return nil, err
		}
		trimmed := strings.TrimSpace(*changes.Name)
		changes.Name = &trimmed
	}
	if changes.Price != nil {
		if err := validatePrice(*changes.Price); err != nil {
			return nil, err
		}
	}

	var p *models.Product
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		p, err = getProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		changes.Apply(p)
		p.Slug = slug.Make(p.Name)
		return tx.UpdateProduct(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a product that no cart is holding.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.LockProduct(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("product %d not found", id)
			}
			return err
		}
		n, err := tx.CountReservations(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Newf(apperr.KindFailedPrecondition, "product %d is reserved by %d cart item(s)", id, n)
		}
		return tx.DeleteProduct(ctx, id)
	})
}

// AdjustStock restocks (positive delta) or writes off (negative delta) available units.
func (s *Service) AdjustStock(ctx context.Context, id int64, delta int) (*models.Product, error) {
	if delta == 0 {
		return nil, apperr.InvalidArgument("delta must not be zero")
	}

	var p *models.Product
	err := s.store.Update(ctx, func(tx store.Tx) error {
		if _, err := s.ledger.ApplyDelta(ctx, tx, id, delta); err != nil {
			return err
		}
		var err error
		p, err = tx.GetProduct(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.StockDelta(delta)
	s.log.Info("stock adjusted", zap.Int64("product_id", id), zap.Int("delta", delta), zap.Int("stock", p.StockQuantity))
	return p, nil
}

func getProduct(ctx context.Context, tx store.ProductTx, id int64) (*models.Product, error) {
	p, err := tx.GetProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("product %d not found", id)
	}
	return p, err
}

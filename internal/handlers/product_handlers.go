package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/01moynul/storefront-api/internal/middleware"
	"github.com/01moynul/storefront-api/internal/models"
	"github.com/01moynul/storefront-api/internal/products"
)

//
// --- Product Handlers ---
//

// CreateProductInput is the JSON for POST /v1/products (admin only).
type CreateProductInput struct {
	Name            string           `json:"name" binding:"required"`
	Description     string           `json:"description"`
	Price           *decimal.Decimal `json:"price" binding:"required"`
	IsConnectedOnly bool             `json:"isConnectedOnly"`
	StockQuantity   int              `json:"stockQuantity" binding:"gte=0"`
}

// UpdateProductInput uses pointers so we know which fields were sent.
// Stock is changed through PATCH /v1/products/:id/stock.
type UpdateProductInput struct {
	Name            *string          `json:"name"`
	Description     *string          `json:"description"`
	Price           *decimal.Decimal `json:"price"`
	IsConnectedOnly *bool            `json:"isConnectedOnly"`
}

// AdjustStockInput moves available stock up (restock) or down (write-off).
type AdjustStockInput struct {
	Delta int `json:"delta" binding:"required"`
}

// CreateProduct is the handler for POST /v1/products
func (h *Handlers) CreateProduct(c *gin.Context) {
	var input CreateProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	p, err := h.Products.Create(c.Request.Context(), products.CreateInput{
		Name:            input.Name,
		Description:     input.Description,
		Price:           *input.Price,
		IsConnectedOnly: input.IsConnectedOnly,
		StockQuantity:   input.StockQuantity,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, p)
}

// GetProducts is the handler for GET /v1/products
// Anonymous callers do not see connected-only products.
func (h *Handlers) GetProducts(c *gin.Context) {
	_, connected := middleware.Principal(c)

	list, err := h.Products.List(c.Request.Context(), connected)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetProduct is the handler for GET /v1/products/:id
func (h *Handlers) GetProduct(c *gin.Context) {
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}
	_, connected := middleware.Principal(c)

	p, err := h.Products.Get(c.Request.Context(), productID, connected)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdateProduct is the handler for PATCH /v1/products/:id
func (h *Handlers) UpdateProduct(c *gin.Context) {
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var input UpdateProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	var p *models.Product
	err := h.withRetry(c, func() error {
		var err error
		p, err = h.Products.Update(c.Request.Context(), productID, models.ProductChanges{
			Name:            input.Name,
			Description:     input.Description,
			Price:           input.Price,
			IsConnectedOnly: input.IsConnectedOnly,
		})
		return err
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DeleteProduct is the handler for DELETE /v1/products/:id
func (h *Handlers) DeleteProduct(c *gin.Context) {
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}

	err := h.withRetry(c, func() error {
		return h.Products.Delete(c.Request.Context(), productID)
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
}

// AdjustProductStock is the handler for PATCH /v1/products/:id/stock
func (h *Handlers) AdjustProductStock(c *gin.Context) {
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var input AdjustStockInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	var p *models.Product
	err := h.withRetry(c, func() error {
		var err error
		p, err = h.Products.AdjustStock(c.Request.Context(), productID, input.Delta)
		return err
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

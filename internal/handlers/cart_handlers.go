package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/storefront-api/internal/models"
)

//
// --- Cart Handlers ---
//

// AddToCartInput defines the JSON for adding an item to the cart.
// Quantity is checked by the cart service so every rule lives in one place.
type AddToCartInput struct {
	ProductID int64 `json:"productId" binding:"required,gt=0"`
	Quantity  int   `json:"quantity"`
}

// UpdateCartItemInput defines the JSON for PATCH /v1/carts/item/:id.
type UpdateCartItemInput struct {
	Quantity int `json:"quantity"`
}

// AddToCart is the handler for POST /v1/carts/add
func (h *Handlers) AddToCart(c *gin.Context) {
	// 1. --- Get User ID ---
	caller, ok := principal(c)
	if !ok {
		return
	}

	// 2. --- Bind Input ---
	var input AddToCartInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	// 3. --- Reserve ---
	var item *models.CartItem
	err := h.withRetry(c, func() error {
		var err error
		item, err = h.Carts.AddItem(c.Request.Context(), caller.UserID, input.ProductID, input.Quantity)
		return err
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

// GetCart is the handler for GET /v1/carts
// It retrieves the full contents of the user's cart.
func (h *Handlers) GetCart(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	h.writeCart(c, caller.UserID)
}

// GetCartAsAdmin is the handler for GET /v1/carts/admin/:userId
func (h *Handlers) GetCartAsAdmin(c *gin.Context) {
	userID, ok := paramID(c, "userId")
	if !ok {
		return
	}
	h.writeCart(c, userID)
}

func (h *Handlers) writeCart(c *gin.Context, userID int64) {
	view, err := h.Carts.GetCart(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// UpdateCartItem is the handler for PATCH /v1/carts/item/:id
func (h *Handlers) UpdateCartItem(c *gin.Context) {
	// 1. --- Get IDs ---
	caller, ok := principal(c)
	if !ok {
		return
	}
	itemID, ok := paramID(c, "id")
	if !ok {
		return
	}

	// 2. --- Bind Input ---
	var input UpdateCartItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	// 3. --- Move the difference ---
	var item *models.CartItem
	err := h.withRetry(c, func() error {
		var err error
		item, err = h.Carts.UpdateItem(c.Request.Context(), caller.UserID, itemID, input.Quantity)
		return err
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// DeleteCartItem is the handler for DELETE /v1/carts/item/:id
func (h *Handlers) DeleteCartItem(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	itemID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var item *models.CartItem
	err := h.withRetry(c, func() error {
		var err error
		item, err = h.Carts.RemoveItem(c.Request.Context(), caller.UserID, itemID)
		return err
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Item removed from cart", "item": item})
}

// ClearCart is the handler for DELETE /v1/carts/clear
func (h *Handlers) ClearCart(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	var result *models.ClearResult
	err := h.withRetry(c, func() error {
		var err error
		result, err = h.Carts.ClearCart(c.Request.Context(), caller.UserID)
		return err
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

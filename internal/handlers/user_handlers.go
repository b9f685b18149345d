package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/storefront-api/internal/models"
	"github.com/01moynul/storefront-api/internal/users"
)

// --- Authentication ---

// SignUpInput holds the *input* from the user. It is separate from
// models.User because we never accept an id or a hash from the client.
type SignUpInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"omitempty,oneof=USER ADMIN"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SignUp is the handler for POST /v1/authentication/signup
func (h *Handlers) SignUp(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input SignUpInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	// 2. --- Create the account (the service hashes the password) ---
	user, err := h.Users.SignUp(c.Request.Context(), users.SignUpInput{
		Email:    input.Email,
		Password: input.Password,
		Role:     input.Role,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	// 3. --- Send Success Response ---
	// The 'json:"-"' tag keeps the hash out of the body.
	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    user,
	})
}

// Login is the handler for POST /v1/authentication/login
func (h *Handlers) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	user, err := h.Users.Authenticate(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	token, err := h.Tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"accessToken": token, "user": user})
}

// --- Users ---

// UpdateUserInput uses pointers so only the fields sent are changed.
type UpdateUserInput struct {
	Email    *string `json:"email" binding:"omitempty,email"`
	Password *string `json:"password" binding:"omitempty,min=6"`
	Role     *string `json:"role" binding:"omitempty,oneof=USER ADMIN"`
}

// GetUsers is the handler for GET /v1/users (admin only).
func (h *Handlers) GetUsers(c *gin.Context) {
	list, err := h.Users.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetUser is the handler for GET /v1/users/:id
func (h *Handlers) GetUser(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}

	user, err := h.Users.Get(c.Request.Context(), caller, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateUser is the handler for PATCH /v1/users/:id
func (h *Handlers) UpdateUser(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var input UpdateUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	var user *models.User
	err := h.withRetry(c, func() error {
		var err error
		user, err = h.Users.Update(c.Request.Context(), caller, userID, users.UpdateInput{
			Email:    input.Email,
			Password: input.Password,
			Role:     input.Role,
		})
		return err
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser is the handler for DELETE /v1/users/:id
// Any stock held in the user's cart goes back on the shelf.
func (h *Handlers) DeleteUser(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var user *models.User
	err := h.withRetry(c, func() error {
		var err error
		user, err = h.Users.Delete(c.Request.Context(), caller, userID)
		return err
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

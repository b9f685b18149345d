package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/storefront-api/internal/auth"
	"github.com/01moynul/storefront-api/internal/models"
)

// Context keys set by the auth middleware.
const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"
)

// bearerToken extracts the token from "Authorization: Bearer <token>".
// ok is false when the header is absent.
func bearerToken(c *gin.Context) (token string, ok bool, errMsg string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false, ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", true, "Invalid token format (must be Bearer)"
	}
	return parts[1], true, ""
}

func setPrincipal(c *gin.Context, tokens *auth.TokenManager, tokenString string) bool {
	claims, err := tokens.ValidateToken(tokenString)
	if err != nil {
		return false
	}
	userID, err := claims.UserID()
	if err != nil {
		return false
	}
	c.Set(ContextUserID, userID)
	c.Set(ContextUserRole, claims.Role)
	return true
}

// AuthMiddleware is the "security guard" for protected routes: it requires a
// valid bearer token and stores the caller's id and role in the context.
func AuthMiddleware(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. --- Get Authorization Header ---
		tokenString, present, errMsg := bearerToken(c)
		if !present {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		if errMsg != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMsg})
			return
		}

		// 2. --- Validate Token ---
		if !setPrincipal(c, tokens, tokenString) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Next()
	}
}

// OptionalAuth identifies the caller when a token is sent and lets anonymous
// requests through. A malformed or expired token is still rejected.
func OptionalAuth(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, present, errMsg := bearerToken(c)
		if !present {
			c.Next()
			return
		}
		if errMsg != "" || !setPrincipal(c, tokens, tokenString) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Next()
	}
}

// RequireRole must run after AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextUserRole)
		if role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User role not found in context (AuthMiddleware must run first)"})
			return
		}
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied: " + strings.Join(roles, " or ") + " role required"})
	}
}

// Principal returns the authenticated caller, if any.
func Principal(c *gin.Context) (models.Principal, bool) {
	userID, ok := c.Get(ContextUserID)
	if !ok {
		return models.Principal{}, false
	}
	id, ok := userID.(int64)
	if !ok {
		return models.Principal{}, false
	}
	return models.Principal{UserID: id, Role: c.GetString(ContextUserRole)}, true
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/01moynul/storefront-api/internal/apperr"
	"github.com/01moynul/storefront-api/internal/auth"
	"github.com/01moynul/storefront-api/internal/cart"
	"github.com/01moynul/storefront-api/internal/middleware"
	"github.com/01moynul/storefront-api/internal/models"
	"github.com/01moynul/storefront-api/internal/products"
	"github.com/01moynul/storefront-api/internal/users"
)

// RetryRecorder counts transaction retries. *metrics.Metrics implements it.
type RetryRecorder interface {
	ConflictRetry()
}

// Handlers struct holds all dependencies for our handlers.
type Handlers struct {
	Carts    *cart.Service
	Products *products.Service
	Users    *users.Service
	Tokens   *auth.TokenManager
	Log      *zap.Logger
	Metrics  RetryRecorder

	// ConflictRetries is how many times a deadlocked transaction is re-run before answering 503.
	ConflictRetries int
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidArgument:
		return http.StatusBadRequest
	case apperr.KindInsufficientStock, apperr.KindAlreadyExists, apperr.KindFailedPrecondition:
		return http.StatusConflict
	case apperr.KindConflict:
		return http.StatusServiceUnavailable
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": ..., "code": ...}. Internal details never reach the client.
func (h *Handlers) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	_ = c.Error(err)
	if kind == apperr.KindInternal {
		h.Log.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("request_id", c.GetString(middleware.ContextRequestID)),
			zap.Error(err),
		)
	}
	c.JSON(statusFor(kind), gin.H{"error": apperr.Message(err), "code": kind.String()})
}

// withRetry re-runs op while it fails with a transient transaction conflict.
func (h *Handlers) withRetry(c *gin.Context, op func() error) error {
	err := op()
	for attempt := 0; attempt < h.ConflictRetries && apperr.Is(err, apperr.KindConflict); attempt++ {
		if c.Request.Context().Err() != nil {
			return err
		}
		h.Metrics.ConflictRetry()
		h.Log.Warn("retrying after transaction conflict", zap.Int("attempt", attempt+1), zap.Error(err))
		err = op()
	}
	return err
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error(), "code": apperr.KindInvalidArgument.String()})
}

// paramID parses a positive int64 path parameter.
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name, "code": apperr.KindInvalidArgument.String()})
		return 0, false
	}
	return id, true
}

// principal returns the authenticated caller. Routes using it sit behind AuthMiddleware.
func principal(c *gin.Context) (models.Principal, bool) {
	p, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User ID not found in context", "code": apperr.KindUnauthorized.String()})
	}
	return p, ok
}

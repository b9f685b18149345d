package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/01moynul/storefront-api/internal/handlers"
	"github.com/01moynul/storefront-api/internal/metrics"
	"github.com/01moynul/storefront-api/internal/middleware"
	"github.com/01moynul/storefront-api/internal/models"
)

// CORSMiddleware tells the browser which front-ends may call us with credentials.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept", "Accept-Encoding", "Authorization", "Cache-Control", "X-Requested-With", middleware.HeaderRequestID},
		ExposeHeaders:    []string{middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func SetupRouter(h *handlers.Handlers, m *metrics.Metrics, log *zap.Logger, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	// --- Global middleware ---
	// CORS goes first so preflight requests are answered before anything else runs.
	router.Use(
		CORSMiddleware(allowedOrigins),
		middleware.RequestID(),
		middleware.Logger(log, m),
		middleware.Recovery(log),
	)

	router.GET("/metrics", gin.WrapH(m.Handler()))

	requireAuth := middleware.AuthMiddleware(h.Tokens)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	v1 := router.Group("/v1")
	{
		// --- Ping Route (Public) ---
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "pong!"})
		})

		// --- Auth Routes (Public) ---
		authentication := v1.Group("/authentication")
		{
			authentication.POST("/signup", h.SignUp)
			authentication.POST("/login", h.Login)
		}

		// --- Product Routes ---
		productRoutes := v1.Group("/products")
		{
			productRoutes.GET("", middleware.OptionalAuth(h.Tokens), h.GetProducts)
			productRoutes.GET("/:id", middleware.OptionalAuth(h.Tokens), h.GetProduct)

			productRoutes.POST("", requireAuth, adminOnly, h.CreateProduct)
			productRoutes.PATCH("/:id", requireAuth, adminOnly, h.UpdateProduct)
			productRoutes.DELETE("/:id", requireAuth, adminOnly, h.DeleteProduct)
			productRoutes.PATCH("/:id/stock", requireAuth, adminOnly, h.AdjustProductStock)
		}

		// --- User Routes (Login Required) ---
		userRoutes := v1.Group("/users")
		userRoutes.Use(requireAuth)
		{
			userRoutes.GET("", adminOnly, h.GetUsers)
			userRoutes.GET("/:id", h.GetUser)
			userRoutes.PATCH("/:id", h.UpdateUser)
			userRoutes.DELETE("/:id", h.DeleteUser)
		}

		// --- Cart Routes (Login Required) ---
		cartRoutes := v1.Group("/carts")
		cartRoutes.Use(requireAuth)
		{
			cartRoutes.POST("/add", h.AddToCart)
			cartRoutes.GET("", h.GetCart)
			cartRoutes.PATCH("/item/:id", h.UpdateCartItem)
			cartRoutes.DELETE("/item/:id", h.DeleteCartItem)
			cartRoutes.DELETE("/clear", h.ClearCart)
			cartRoutes.GET("/admin/:userId", adminOnly, h.GetCartAsAdmin)
		}
	}

	return router
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/01moynul/storefront-api/internal/auth"
	"github.com/01moynul/storefront-api/internal/cart"
	"github.com/01moynul/storefront-api/internal/config"
	"github.com/01moynul/storefront-api/internal/database"
	"github.com/01moynul/storefront-api/internal/handlers"
	"github.com/01moynul/storefront-api/internal/inventory"
	"github.com/01moynul/storefront-api/internal/logger"
	"github.com/01moynul/storefront-api/internal/metrics"
	"github.com/01moynul/storefront-api/internal/products"
	"github.com/01moynul/storefront-api/internal/routes"
	"github.com/01moynul/storefront-api/internal/store"
	"github.com/01moynul/storefront-api/internal/store/memstore"
	"github.com/01moynul/storefront-api/internal/store/sqlstore"
	"github.com/01moynul/storefront-api/internal/tracing"
	"github.com/01moynul/storefront-api/internal/users"
)

const (
	serviceName     = "storefront-api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	// 0. --- Load Environment Variables (.env) ---
	dotenvErr := config.LoadDotEnv()

	cfg, err := config.FromEnv()
	if err != nil {
		// The logger is not configured yet.
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		zap.NewExample().Fatal("failed to build logger", zap.Error(err))
	}
	defer log.Sync()

	if dotenvErr != nil {
		log.Warn("could not load .env file, relying on system environment variables")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped with error", zap.Error(err))
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. --- Tracing ---
	shutdownTracing, err := tracing.InitTracerProvider(serviceName, cfg.JaegerEndpoint, log)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	// 2. --- Storage ---
	s, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// 3. --- Services ---
	m := metrics.New()
	ledger := inventory.NewLedger(log)
	carts := cart.NewService(s, ledger, log, m)

	app := &handlers.Handlers{
		Carts:           carts,
		Products:        products.NewService(s, ledger, log, m),
		Users:           users.NewService(s, carts, log),
		Tokens:          auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL),
		Log:             log,
		Metrics:         m,
		ConflictRetries: cfg.TxConflictRetries,
	}

	// --- Router Setup ---
	gin.SetMode(cfg.GinMode)
	router := routes.SetupRouter(app, m, log, cfg.CORSAllowedOrigins)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- Start Server ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting storefront API server",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("db_driver", cfg.DB.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStore picks the storage backend named by DB_DRIVER.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, func(), error) {
	if cfg.DB.Driver == config.DriverMemory {
		log.Warn("using in-memory store, data is lost on restart")
		s, err := memstore.New()
		return s, func() {}, err
	}

	db, err := database.OpenDB(ctx, cfg.DB, log)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
	if cfg.DB.AutoMigrate {
		if err := database.Migrate(ctx, db, log); err != nil {
			closeDB()
			return nil, nil, err
		}
	}
	return sqlstore.New(db), closeDB, nil
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/suteetoe/billing-service/internal/billing"
	"github.com/suteetoe/billing-service/internal/handler"
	mid "github.com/suteetoe/billing-service/internal/middleware"
	"github.com/suteetoe/billing-service/internal/store"
	"github.com/suteetoe/billing-service/pkg/config"
	"github.com/suteetoe/billing-service/pkg/database"
	"github.com/suteetoe/billing-service/pkg/jwtutil"
	"github.com/suteetoe/billing-service/pkg/logger"
	"github.com/suteetoe/billing-service/prometheus"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logger yet since it's not initialized
		panic("Failed to load configuration: " + err.Error())
	}

	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer log.Sync()

	log.Info("Starting billing-service", cfg.LogConfig()...)
	if cfg.Stripe.WebhookSecret == "" {
		log.Warn("STRIPE_WEBHOOK_SECRET is empty, webhook deliveries will be rejected")
	}

	prometheus.InitMetrics(cfg.Metrics.Prefix, promclient.DefaultRegisterer)
	log.Info("Prometheus metrics initialized", zap.String("metrics_prefix", cfg.Metrics.Prefix))

	tenantStore, err := openStore(cfg)
	if err != nil {
		log.Fatal("Failed to initialize store", zap.Error(err))
	}
	log.Info("Tenant store ready", zap.String("driver", cfg.Billing.StoreDriver))

	if cfg.Billing.PlanSeedFile != "" {
		if mem, ok := tenantStore.(*store.MemoryStore); ok {
			seed, err := store.LoadTenantSeed(cfg.Billing.PlanSeedFile)
			if err != nil {
				log.Fatal("Failed to load tenant seed", zap.Error(err))
			}
			store.SeedTenants(mem, seed)
			log.Info("Tenants seeded",
				zap.Int("organizations", len(seed.Organizations)),
				zap.Int("users", len(seed.Users)))
		}

		plans, err := store.LoadPlanSeed(cfg.Billing.PlanSeedFile)
		if err != nil {
			log.Fatal("Failed to load plan seed", zap.Error(err))
		}
		if err := store.SeedPlans(context.Background(), tenantStore, plans); err != nil {
			log.Fatal("Failed to seed plans", zap.Error(err))
		}
		log.Info("Plans seeded", zap.String("file", cfg.Billing.PlanSeedFile), zap.Int("count", len(plans)))
	}

	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:      cfg.JWT.SigningKey,
		ExpirationHours: cfg.JWT.ExpirationHours,
	})

	provider := openProvider(cfg)
	log.Info("Payment provider ready", zap.String("provider", cfg.Stripe.Provider))
	planDirectory := billing.NewPlanDirectory(tenantStore, cfg.Billing.PlanCacheSize, cfg.Billing.PlanCacheTTL)
	billingHandler := handler.NewBillingHandler(
		billing.NewVerifier(cfg.Stripe.WebhookSecret),
		billing.NewReconciler(tenantStore, planDirectory, provider, cfg.Stripe.Timeout),
		billing.NewCheckoutInitiator(tenantStore, planDirectory, provider, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL, cfg.Stripe.Timeout),
		billing.NewDetailReader(tenantStore, provider, cfg.Billing.InvoiceLimit, cfg.Stripe.Timeout),
		planDirectory,
		cfg.Stripe.WebhookBodyLimit,
	)

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(mid.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(mid.MetricsMiddleware)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	handler.RegisterRoutes(e, billingHandler, handler.NewUsageHandler(tenantStore), tenantStore, jwt)

	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}
	log.Info("Server stopped")
}

func openStore(cfg *config.Config) (store.TenantStore, error) {
	if cfg.Billing.StoreDriver == config.StoreDriverMemory {
		return store.NewMemoryStore(), nil
	}
	db, err := database.InitDB(cfg, store.Models()...)
	if err != nil {
		return nil, err
	}
	return store.NewGormStore(db), nil
}

func openProvider(cfg *config.Config) billing.Provider {
	if cfg.Stripe.Provider == config.ProviderMock {
		return billing.NewMockProvider()
	}
	return billing.NewStripeProvider(cfg.Stripe.SecretKey)
}

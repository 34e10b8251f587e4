package main

import (
	"context"
	"log"
	"os"
	"time"

	"go-inventory-agent/internal/ai"
	"go-inventory-agent/internal/auth"
	"go-inventory-agent/internal/catalog"
	"go-inventory-agent/internal/config"
	"go-inventory-agent/internal/database"
	"go-inventory-agent/internal/handlers"
	"go-inventory-agent/internal/logging"
	"go-inventory-agent/internal/lowstock"
	"go-inventory-agent/internal/middleware"
	"go-inventory-agent/internal/notify"
	"go-inventory-agent/internal/orders"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, envLoaded := config.Load()

	logger, err := logging.New(cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if !envLoaded {
		logger.Warn("no .env file found, using process environment")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := database.Connect(cfg, logger.Named("db"))
	if err != nil {
		return err
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret)
	if err != nil {
		return err
	}

	resolver := catalog.NewResolver(cfg.BundlePriceMultiplier)
	catalogSvc := catalog.NewService(db, resolver, logger.Named("catalog"))
	ordersSvc := orders.NewService(db, resolver, logger.Named("orders"))

	var notifier notify.Notifier = notify.NewLogNotifier(logger.Named("notify"))
	if cfg.SendGridAPIKey != "" {
		sg, err := notify.NewSendGridNotifier(cfg.SendGridAPIKey, cfg.AlertFromEmail, logger.Named("notify"))
		if err != nil {
			return err
		}
		notifier = sg
	} else {
		logger.Warn("SENDGRID_API_KEY not set, low-stock alerts are only logged")
	}

	monitor := lowstock.NewMonitor(db, catalogSvc, notifier, lowstock.Options{
		DefaultThreshold:  cfg.DefaultLowStockThreshold,
		FallbackRecipient: cfg.AlertFallbackEmail,
	}, logger.Named("lowstock"))

	ordersSvc.OnStockChanged(func(ctx context.Context, productIDs []uint) {
		if _, err := monitor.EvaluateAfterOrder(ctx, productIDs); err != nil {
			logger.Warn("low-stock check after order failed", zap.Error(err))
		}
	})

	deps := handlers.Deps{
		DB:      db,
		Catalog: catalogSvc,
		Orders:  ordersSvc,
		Monitor: monitor,
		Issuer:  issuer,
		Log:     logger.Named("http"),
	}
	if cfg.GeminiAPIKey != "" {
		deps.Assistant = ai.NewAgent(cfg.GeminiAPIKey, db, catalogSvc, monitor, logger.Named("ai"))
	} else {
		logger.Warn("GEMINI_API_KEY not set, /api/ask is disabled")
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(logger.Named("http")))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Registration is a feature flag; keep it off in production.
	if cfg.AllowRegistration {
		logger.Warn("registration route is OPEN, disable ALLOW_REGISTRATION in production")
	}
	handlers.New(deps).Register(r, handlers.Options{AllowRegistration: cfg.AllowRegistration})

	logger.Info("server starting", zap.String("base_url", cfg.BaseURL), zap.String("port", cfg.Port))
	return r.Run(":" + cfg.Port)
}

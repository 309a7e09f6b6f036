package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"transcomarapa/internal/config"
	handlers "transcomarapa/internal/handlers/shared"
	"transcomarapa/internal/middleware"
	"transcomarapa/internal/repositories/mongodb"
	"transcomarapa/internal/services"
	"transcomarapa/internal/utils"
	"transcomarapa/pkg/cache"
	"transcomarapa/pkg/database"
	"transcomarapa/pkg/logger"
	"transcomarapa/pkg/payment"
	"transcomarapa/routes"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(&logger.Config{
		Level:  logger.LogLevel(cfg.App.LogLevel),
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	db, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		appLogger.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := database.EnsureIndexes(ctx, db.Database); err != nil {
		appLogger.Fatalf("Failed to ensure indexes: %v", err)
	}

	redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		appLogger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisCache.Close()

	// Payment gateways
	qrGateway := payment.NewPagoFacilProvider(&payment.PagoFacilConfig{
		APIURL:      cfg.Payment.PagoFacil.APIURL,
		QueryURL:    cfg.Payment.PagoFacil.QueryURL,
		APIToken:    cfg.Payment.PagoFacil.APIToken,
		CallbackURL: cfg.Payment.PagoFacil.CallbackURL,
		Timeout:     cfg.Payment.GatewayTimeout,
	})
	cardGateway := payment.NewStripeProvider(
		cfg.Payment.Stripe.SecretKey,
		cfg.Payment.Stripe.WebhookSecret,
		cfg.Payment.Stripe.MinimumUSD,
	)

	// Repositories
	tripRepo := mongodb.NewTripRepository(db.Database)
	userRepo := mongodb.NewUserRepository(db.Database)
	saleRepo := mongodb.NewSaleRepository(db.Database)
	ticketRepo := mongodb.NewTicketRepository(db.Database)
	parcelRepo := mongodb.NewParcelRepository(db.Database)
	entryRepo := mongodb.NewPaymentEntryRepository(db.Database)

	// Services
	cacheService := services.NewCacheService(redisCache)
	seatLockService := services.NewSeatLockService(cacheService, cfg.Sales.SeatLockTTL, appLogger)
	inventoryService := services.NewInventoryService(tripRepo, ticketRepo, seatLockService, cacheService)
	paymentService := services.NewPaymentService(
		entryRepo, saleRepo, parcelRepo, ticketRepo,
		qrGateway, cardGateway, db, appLogger,
		cfg.Payment.PagoFacil.CorrelationPrefix, cfg.Payment.GatewayTimeout,
	)
	saleService := services.NewSaleService(
		tripRepo, userRepo, saleRepo, ticketRepo, parcelRepo, entryRepo,
		seatLockService, paymentService, db, appLogger,
		cfg.Sales.MaxSeatsPerSale,
	)
	reaperService := services.NewReaperService(
		entryRepo, saleRepo, ticketRepo, parcelRepo,
		paymentService, db, appLogger,
		cfg.Sales.ReaperInterval, cfg.Sales.ReaperGrace,
	)

	// Handlers
	saleHandler := handlers.NewSaleHandler(saleService)
	tripHandler := handlers.NewTripHandler(inventoryService)
	webhookHandler := handlers.NewWebhookHandler(paymentService)

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(appLogger))

	v1 := router.Group("/api/v1")
	{
		routes.SetupSaleRoutes(v1, saleHandler, tripHandler, cfg.Security.JWTSecret)
		routes.SetupWebhookRoutes(v1, webhookHandler)
	}

	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		checks := gin.H{"mongodb": "up", "redis": "up"}
		if err := db.Ping(); err != nil {
			checks["mongodb"] = "down"
			status = http.StatusServiceUnavailable
		}
		if err := cacheService.Ping(c.Request.Context()); err != nil {
			checks["redis"] = "down"
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status":  checks,
			"version": cfg.App.Version,
		})
	})

	// Background sweep for reservations whose payment never arrived.
	reaperCtx, cancelReaper := context.WithCancel(ctx)
	reaperService.Start(reaperCtx)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: router,
	}

	go func() {
		appLogger.Infof("Starting server on port %d", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	reaperService.Stop()
	cancelReaper()

	shutdownCtx, cancel := context.WithTimeout(ctx, utils.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Errorf("Forced shutdown: %v", err)
	}
}

package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crediexpress/corebanking/docs"
	"github.com/crediexpress/corebanking/internal/audit"
	"github.com/crediexpress/corebanking/internal/config"
	"github.com/crediexpress/corebanking/internal/database"
	"github.com/crediexpress/corebanking/internal/handlers"
	mW "github.com/crediexpress/corebanking/internal/middleware"
	"github.com/crediexpress/corebanking/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title CrediExpress Core Banking API
// @version 1.0
// @description Double-entry ledger for deposits, transfers and account reporting
// @host localhost:8080
// @BasePath /crediExpress/v1/core
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET")
	viper.BindEnv("jwt.issuer", "JWT_ISSUER")
	viper.BindEnv("jwt.audience", "JWT_AUDIENCE")

	viper.BindEnv("rabbitmq.url", "RABBITMQ_URL")
	viper.BindEnv("server.port", "PORT")
	viper.SetDefault("server.port", "8080")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	ledgerConfig := config.LoadLedgerConfig()
	port := viper.GetString("server.port")
	docs.SwaggerInfo.Host = "localhost:" + port

	// Initialize infrastructure
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	var events services.EventPublisher = &services.NoopEventPublisher{}
	if amqpURL := viper.GetString("rabbitmq.url"); amqpURL != "" {
		publisher, err := services.NewAMQPEventPublisher(amqpURL, ledgerConfig.EventsExchange)
		if err != nil {
			log.Printf("[EVENTS] RabbitMQ unavailable, ledger events disabled: %v", err)
		} else {
			events = publisher
		}
	}
	defer events.Close()

	// Initialize services
	auditLogger := audit.NewAuditLogger()
	ledger := services.NewDoubleLedgerService(db)
	favoriteService := services.NewFavoriteService(ledger)
	conversionClient := services.NewHTTPConversionClient(ledgerConfig.ConversionServiceURL, ledgerConfig.ConversionTimeout)
	depositService := services.NewDepositService(ledger, ledgerConfig, auditLogger, events)
	transferService := services.NewTransferService(ledger, favoriteService, conversionClient, ledgerConfig, auditLogger, events)
	reportingService := services.NewReportingService(ledger, ledgerConfig)
	qrService := services.NewQRService(ledger, transferService, redisClient, ledgerConfig.QRCodeTTL)
	iso20022Service := services.NewISO20022Service(ledger, ledgerConfig.BankBIC)

	coreHandler := handlers.NewCoreBankingHandler(ledger, depositService, transferService, favoriteService, reportingService)
	qrHandler := handlers.NewQRHandler(qrService)
	isoHandler := handlers.NewISO20022Handler(iso20022Service)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "x-token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/crediExpress/v1/core", func(r chi.Router) {
		r.Use(mW.AuthMiddleware)

		r.Get("/accounts/{accountNumber}", coreHandler.GetAccount)

		r.Post("/transfers", coreHandler.CreateTransfer)
		r.Post("/transfers/favorites/{favoriteId}", coreHandler.QuickTransfer)
		r.Post("/transfers/qr", qrHandler.TransferFromQR)
		r.Get("/transfers/usage/{accountNumber}/today", coreHandler.TransferUsageToday)
		r.Get("/transfers/{referenceId}/iso20022", isoHandler.TransferMessage)
		r.Get("/transactions/{transactionId}/iso20022/status", isoHandler.StatusReport)

		r.Post("/qr/generate", qrHandler.GenerateQR)

		r.Get("/favorites", coreHandler.ListFavorites)
		r.Post("/favorites", coreHandler.CreateFavorite)
		r.Patch("/favorites/{favoriteId}", coreHandler.UpdateFavorite)
		r.Delete("/favorites/{favoriteId}", coreHandler.DeleteFavorite)

		r.Get("/history/account/{accountNumber}", coreHandler.History)
		r.Get("/history/account/{accountNumber}/recent", coreHandler.RecentMovements)

		// Admin endpoints
		r.Group(func(r chi.Router) {
			r.Use(mW.RequireAdmin)

			r.Get("/accounts", coreHandler.ListAccounts)
			r.Post("/accounts/register", coreHandler.RegisterAccount)

			r.Post("/deposits", coreHandler.CreateDeposit)
			r.Patch("/deposits/{transactionId}/amount", coreHandler.UpdateDepositAmount)
			r.Patch("/deposits/{transactionId}/reverse", coreHandler.ReverseDeposit)

			r.Get("/admin/accounts/top-movements", coreHandler.TopAccountsByMovements)
			r.Get("/admin/accounts/{accountNumber}/overview", coreHandler.AccountOverview)
		})
	})

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}

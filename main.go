package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stake-escrow/config"
	"stake-escrow/escrow"
	"stake-escrow/handlers"
	"stake-escrow/middleware"
	"stake-escrow/models"
	"stake-escrow/services"
	"stake-escrow/utils"
	"stake-escrow/workers"

	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	custody := escrow.Address(cfg.CustodyAccount)
	assets := make(escrow.AssetAllowList, 0, len(cfg.AllowedAssets))
	for _, a := range cfg.AllowedAssets {
		assets = append(assets, escrow.Address(a))
	}

	// --- Backend ---
	var backend services.EscrowBackend
	var db *gorm.DB
	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Println("⚠️  STORE_BACKEND=memory, escrow state is lost on restart")
		backend = services.NewMemoryBackend(custody, escrow.WithAssets(assets...))
	default:
		db, err = gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			log.Fatal("failed to connect to database:", err)
		}
		if err := db.AutoMigrate(
			&models.KVEntry{},
			&models.AssetBalance{},
			&models.LedgerTransfer{},
			&models.EscrowEvent{},
			&models.DepositReceipt{},
		); err != nil {
			log.Fatal("failed to migrate database:", err)
		}
		backend = services.NewGormExecutor(db, custody, assets)
	}

	svc := services.NewEscrowService(backend)

	// --- Optional integrations ---
	if cfg.RedisURL != "" {
		rdb, err := services.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal("failed to connect to redis:", err)
		}
		defer rdb.Close()
		svc.Cache = services.NewRedisMatchCache(rdb, 24*time.Hour)
		log.Println("✅ Finalized-match cache enabled (redis)")
	}

	if cfg.R2.Enabled() {
		r2, err := utils.NewR2(ctx, cfg.R2)
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		svc.Archive = services.NewMatchArchive(r2)
		log.Println("✅ Match archive enabled (R2)")
	}

	var validator middleware.TokenValidator
	if cfg.AuthServiceURL != "" {
		validator = services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.GameServiceToken)
		log.Println("✅ Access-token authentication enabled")
	}

	// --- Background jobs ---
	if db != nil && cfg.SyncServiceURL != "" {
		depositClient := workers.NewDepositSyncClient(db, cfg.SyncServiceURL, cfg.GameServiceToken)
		go workers.PollDeposits(ctx, depositClient, cfg.DepositPollInterval)
		log.Printf("✅ Deposit polling running (every %s)", cfg.DepositPollInterval)
	}

	auditor := &services.CustodyAuditor{Backend: backend, Custody: custody, Assets: assets}
	if len(assets) > 0 {
		sched, err := services.StartCustodyAudit(auditor, cfg.AuditInterval)
		if err != nil {
			log.Fatal("failed to start custody audit:", err)
		}
		defer sched.Shutdown()
		log.Printf("✅ Custody audit running (every %s)", cfg.AuditInterval)
	} else {
		log.Println("⚠️  ALLOWED_ASSETS not set, custody audit disabled")
	}

	// --- HTTP ---
	app := handlers.NewApp()

	// 🔐❗ GLOBAL: Only Gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.GameServiceToken))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,OPTIONS,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, X-Access-Token, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupEscrowRoutes(app, svc, validator)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ Escrow backend: %s, custody account %s", cfg.StoreBackend, custody)
	log.Printf("✅ CORS configured for origins: %s", cfg.AllowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"tournament-escrow/config"
	"tournament-escrow/events"
	"tournament-escrow/handlers"
	"tournament-escrow/middleware"
	"tournament-escrow/registry"
	"tournament-escrow/services"
	"tournament-escrow/utils"
	"tournament-escrow/workers"
)

func serveCmd() *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			closer := utils.SetupLogging(cfg.LogFile)
			defer closer.Close()
			return serve(cfg, !skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not run schema migration at start-up")
	return cmd
}

func serve(cfg *config.Config, runMigrate bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	if runMigrate {
		if err := migrate(db, cfg.BadgeCode); err != nil {
			return err
		}
	}

	store := services.NewEventStore(db)
	lastSeq, err := store.LastSeq(ctx)
	if err != nil {
		return err
	}
	lastID, err := store.LastTournamentID(ctx)
	if err != nil {
		return err
	}
	history, err := store.Since(ctx, 0, 0)
	if err != nil {
		return err
	}
	queue := events.NewQueueAt(lastSeq)

	admin, err := cfg.Admin()
	if err != nil {
		return err
	}
	manager, err := cfg.Manager()
	if err != nil {
		return err
	}
	weights, err := cfg.Weights()
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	httpClient := utils.NewHTTPClient(cfg.TransferTimeout)
	reg, err := registry.New(registry.Config{
		Admin:           admin,
		Manager:         manager,
		Weights:         weights,
		Clock:           clock,
		LastID:          lastID,
		History:         history,
		TransferTimeout: cfg.TransferTimeout,
		Oracle:          services.NewBadgeOracle(db, cfg.BadgeCode),
		Transfer:        services.NewWalletTransferClient(cfg.WalletServiceURL, cfg.GatewayToken, httpClient),
	}, queue)
	if err != nil {
		return err
	}
	log.Printf("✅ Registry ready: replayed %d events, seq continues after %d, tournament ids after %d", len(history), lastSeq, lastID)

	var archive workers.Archiver
	if cfg.ArchiveEnabled() {
		r2, err := utils.NewR2Archive(ctx, cfg.CloudflareAccountID, cfg.R2AccessKeyID, cfg.R2AccessKeySecret, cfg.R2Bucket)
		if err != nil {
			return err
		}
		archive = r2
		log.Printf("✅ Closed tournaments archived to R2 bucket %s", cfg.R2Bucket)
	} else {
		log.Println("⚠️  R2 not configured, closed tournaments are not archived")
	}

	persister := workers.NewEventPersister(queue, store, reg, archive, lastSeq)
	persisted := make(chan struct{})
	go func() {
		defer close(persisted)
		persister.Run(ctx, cfg.EventFlushInterval)
	}()

	if cfg.SyncServiceURL != "" {
		walletSync := workers.NewWalletSyncClient(db, cfg.SyncServiceURL, cfg.GatewayToken, httpClient)
		go workers.PollWallets(ctx, walletSync, cfg.WalletPollInterval)
	} else {
		log.Println("⚠️  SYNC_SERVICE_URL not set, wallet mirror is not refreshed")
	}

	housekeeper := services.NewHousekeeper(reg, admin, cfg.TransferTimeout)
	sched, err := services.StartScheduler(ctx, housekeeper, clock, cfg.LobbySweepInterval, cfg.CreditRetryInterval)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 64 * 1024,
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,OPTIONS,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Service-Token, X-User-ID, Last-Event-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	// Only gateway requests are served.
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken))

	handlers.SetupTournamentRoutes(app, services.NewTournamentService(reg, store, cfg.TransferTimeout))
	handlers.SetupRoleRoutes(app, services.NewAccessService(reg.Access()))
	stream := services.NewEventStreamService(queue)
	stream.Store = store
	handlers.SetupEventRoutes(app, stream)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
			stop()
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ CORS configured for origins: %s", strings.Join(cfg.AllowedOrigins, ","))

	<-ctx.Done()
	log.Println("Shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := sched.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}
	<-persisted
	log.Println("✅ Shutdown complete")
	return nil
}

package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"game-rewards-system/config"
	"game-rewards-system/handlers"
	"game-rewards-system/logger"
	"game-rewards-system/middleware"
	"game-rewards-system/services"
	"game-rewards-system/store"
	"game-rewards-system/utils"
	"game-rewards-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("game-rewards-system", false)
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.Init("game-rewards-system", cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}
	defer kv.Close()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid claim timezone")
	}
	catalog, err := services.LoadFallbackCatalog(cfg.Claims.FallbackCatalogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load fallback catalog")
	}

	clock := clockwork.NewRealClock()
	client := services.NewRemoteRewardsClient(services.RewardsClientConfig{
		BaseURL:         cfg.RewardsBaseURL(),
		APIKey:          cfg.Rewards.APIKey,
		CoinID:          cfg.Rewards.CoinID,
		Language:        cfg.Rewards.Language,
		Timeout:         cfg.Rewards.Timeout,
		MaxAttempts:     cfg.Rewards.MaxAttempts,
		RetryBaseDelay:  cfg.Rewards.RetryBaseDelay,
		CacheTTL:        cfg.Rewards.CacheTTL,
		CacheMaxEntries: cfg.Rewards.CacheMaxEntries,
	}, utils.NewHTTPClient(cfg.Rewards.Timeout), clock)

	engine := services.NewRewardsEngine(services.EngineConfig{
		KeyPrefix:        cfg.Store.KeyPrefix,
		Window:           services.NewCalendarWindow(loc),
		LedgerMaxRecords: cfg.Claims.LedgerMaxRecords,
		WelcomeCoins:     services.DefaultWelcomeCoins,
		LevelBonusCoins:  cfg.Claims.LevelBonusCoins,
		Policies: services.DefaultPolicies(services.PolicyOptions{
			MaxClaims:             cfg.Claims.MaxPerWindow,
			PoolSize:              cfg.Claims.PoolSize,
			DeathDiscountCooldown: cfg.Claims.DeathDiscountCooldown,
			TreasureChestCooldown: cfg.Claims.TreasureChestCooldown,
			DailyGuaranteedBrand:  cfg.Claims.DailyGuaranteedBrand,
		}),
	}, client, kv, clock, catalog)

	identity, err := engine.Start(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start rewards engine")
	}

	var archiver *workers.LedgerArchiver
	if cfg.ArchiveEnabled() {
		uploader, err := utils.NewR2Uploader(ctx, utils.R2Config{
			AccountID:       cfg.Archive.AccountID,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			Bucket:          cfg.Archive.Bucket,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize R2 client")
		}
		archiver = workers.NewLedgerArchiver(engine, uploader, clock)
	} else {
		log.Warn().Msg("⚠️ R2 credentials not set, ledger archive disabled")
	}

	sched, err := workers.StartMaintenance(ctx, client, engine, archiver, workers.MaintenanceConfig{
		PurgeInterval:     time.Minute,
		ArchiveInterval:   cfg.Archive.Interval,
		CoinFlushInterval: cfg.Claims.CoinFlushInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start maintenance jobs")
	}

	app := fiber.New(fiber.Config{
		BodyLimit:             64 * 1024,
		DisableStartupMessage: true,
	})
	app.Use(middleware.RequestContextMiddleware())
	app.Use(middleware.RequestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.HTTP.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID, Retry-After",
		AllowCredentials: false,
		MaxAge:           86400,
	}))

	handlers.SetupClaimRoutes(app, engine, cfg.HTTP.ServiceToken)
	handlers.SetupClaimEventRoutes(app, engine.Events)

	go func() {
		if err := app.Listen(cfg.HTTP.Addr); err != nil {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	log.Info().
		Str("addr", cfg.HTTP.Addr).
		Str("store", cfg.Store.Driver).
		Str("player", identity.UUID).
		Strs("features", engine.Features()).
		Bool("rewards_configured", client.Configured()).
		Strs("origins", cfg.HTTP.AllowedOrigins).
		Msg("✅ rewards server running")

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if err := sched.Shutdown(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown")
	}
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 15*time.Second)
	if _, err := engine.FlushCoins(flushCtx); err != nil {
		log.Error().Err(err).Msg("final coin flush failed")
	}
	cancelFlush()
	if archiver != nil {
		archiveCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if _, err := archiver.Archive(archiveCtx); err != nil {
			log.Error().Err(err).Msg("final ledger archive failed")
		}
		cancel()
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.OpenPostgres(cfg.Store.DatabaseURL)
	case "redis":
		return store.OpenRedis(ctx, cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB)
	default:
		return store.NewMemoryStore(), nil
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	"github.com/chainpalette/art-auction/artauction"
	"github.com/chainpalette/art-auction/artauction/chain"
	"github.com/chainpalette/art-auction/artauction/database"
	"github.com/chainpalette/art-auction/artauction/database/repositories"
	"github.com/chainpalette/art-auction/artauction/logger"
	"github.com/chainpalette/art-auction/artauction/projector"
	"github.com/chainpalette/art-auction/artauction/services"
	"github.com/chainpalette/art-auction/web/handlers"
	"github.com/chainpalette/art-auction/web/middleware"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	customHandler := logger.NewHandler("ArtAuction")
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting Art Auction Backend",
		slog.String("version", version),
		slog.String("commit", commit))

	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := artauction.LoadConfig(*path)
	if err != nil {
		logger.LogError("Failed to load configuration", err)
		os.Exit(-1)
	}
	customHandler.Configure(cfg.Log.Level, cfg.Log.AddSource)
	slog.Info("Configuration loaded successfully")

	slog.Info("Connecting to read model store...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	db, err := database.New(ctx, database.DBConfig{
		URI:         cfg.DB.URI,
		Database:    cfg.DB.Database,
		OpTimeout:   cfg.DB.OpTimeout(),
		MinPoolSize: cfg.DB.MinPoolSize,
		MaxPoolSize: cfg.DB.MaxPoolSize,
	})
	if err != nil {
		cancel()
		logger.LogError("Read model store connection failed", err,
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	if err := db.EnsureIndexes(ctx); err != nil {
		cancel()
		logger.LogError("Failed to ensure read model indexes", err)
		os.Exit(-1)
	}
	cancel()

	slog.Info("Read model store connected",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	a := artauction.New(*cfg, version, commit)
	a.DB = db
	a.ArtifactRepository = repositories.NewArtifactRepository(db)
	a.AuctionRepository = repositories.NewAuctionRepository(db)
	a.CheckpointRepository = repositories.NewCheckpointRepository(db)

	a.ContentStore = services.NewContentStore(
		cfg.Spaces.Key,
		cfg.Spaces.Secret,
		cfg.Spaces.Region,
		cfg.Spaces.Bucket,
		cfg.Spaces.Root,
	)
	a.Ingestion = services.NewIngestionService(a.ContentStore, cfg.Ingest.TempDir, cfg.Ingest.MaxUploadBytes)
	a.Query = services.NewQueryService(a.AuctionRepository, a.ArtifactRepository)

	a.Projector = projector.New(projector.Config{
		Shards:    cfg.Chain.Shards,
		QueueSize: cfg.Chain.QueueSize,
	}, a.AuctionRepository, a.ArtifactRepository, a.CheckpointRepository)

	restoreCtx, restoreCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := a.Projector.Restore(restoreCtx); err != nil {
		slog.Warn("Could not restore projection checkpoint, starting from configured block",
			slog.String("error", err.Error()),
			slog.Uint64("start_block", cfg.Chain.StartBlock))
	}
	restoreCancel()

	a.Subscriber = chain.NewSubscriber(chain.SubscriberConfig{
		WSURL:      cfg.Chain.WSURL,
		Contract:   cfg.Chain.Contract,
		StartBlock: cfg.Chain.StartBlock,
		QueueSize:  cfg.Chain.QueueSize,
	}, a.Projector)

	router := fiber.New(fiber.Config{
		AppName:      "Art Auction Backend",
		ServerHeader: "ArtAuction",
		BodyLimit:    int(cfg.Ingest.MaxUploadBytes),
		ErrorHandler: middleware.ErrorHandler,
	})
	router.Use(recover.New())
	router.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	router.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000,http://127.0.0.1:3000",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Requested-With",
	}))
	router.Use(middleware.Logging())

	handlers.SetupRoutes(router, a)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)

	if cfg.Chain.WSURL != "" && cfg.Chain.Contract != "" {
		g.Go(func() error {
			return a.Subscriber.Run(gctx)
		})
		g.Go(func() error {
			return a.Projector.Run(gctx, a.Subscriber.Events())
		})
	} else {
		slog.Warn("Auction contract not configured, event subscription disabled",
			slog.String("type", "chain"))
	}

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	g.Go(func() error {
		slog.Info("Starting HTTP server", slog.String("address", address))
		return router.Listen(address)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		return router.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.LogError("Shutdown with error", err)
		os.Exit(-1)
	}

	logger.LogSystem("Shutdown complete",
		slog.Uint64("watermark_block", a.Projector.Watermark().Block))
}

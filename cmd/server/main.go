package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"fontshelf/internal/collection"
	"fontshelf/internal/config"
	"fontshelf/internal/fontcache"
	"fontshelf/internal/fontdec"
	"fontshelf/internal/grouping"
	"fontshelf/internal/handler"
	"fontshelf/internal/ingest"
	"fontshelf/internal/logger"
	zapmw "fontshelf/internal/middleware"
	"fontshelf/internal/persist"
	"fontshelf/internal/preview"
	"fontshelf/internal/session"
	"fontshelf/internal/snapshot"
	"fontshelf/internal/storage"
	"fontshelf/internal/version"
)

const uploadBatchFiles = 32

func main() {
	// 1. Load configuration and prepare the data directory
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fmt.Printf("Failed to create data directory: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	if err := logger.InitLogger(cfg.DataDir, cfg.Debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	zap.L().Info("Starting Fontshelf",
		zap.String("version", version.Version),
		zap.String("data_dir", cfg.DataDir),
		zap.Bool("directory_scan", cfg.ScanEnabled()),
	)

	// 3. Open the database and load the collection
	dsn := persist.DSN(cfg.DatabasePath())
	zap.L().Info("Using database", zap.String("path", cfg.DatabasePath()))

	ctx := context.Background()
	db, err := persist.Open(ctx, dsn)
	if err != nil {
		zap.L().Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	store := collection.NewStore()
	autoPersist := collection.NewAutoPersist(store, db, cfg.SaveDelay)
	if err := autoPersist.StartAutoLoad(ctx); err != nil {
		zap.L().Fatal("Failed to load font collection", zap.Error(err))
	}
	autoPersist.StartAutoSave()

	// 4. Decoding, ingestion and previews
	decoder := fontdec.NewDecoder()
	decoder.Prepare(ctx)
	registry := fontcache.NewRegistry(fontcache.StoreLoader(store, decoder))
	pipeline := ingest.New(decoder, store, registry, ingest.WithMaxFileSize(cfg.MaxFontSize))
	sampleText := session.New()
	board := preview.NewBoard(preview.DefaultRenderer(), registry, sampleText, preview.WithIdleTimeout(cfg.PreviewIdle))

	var fontRoot *storage.FileSystem
	if cfg.ScanEnabled() {
		fontRoot = storage.NewReadOnlyFileSystem(cfg.FontRoot)
		zap.L().Info("Directory scanning enabled", zap.String("root", cfg.FontRoot))
	}

	// 5. Scheduled snapshots
	snapshots := snapshot.NewManager(storage.NewFileSystem(cfg.DataDir), cfg.SnapshotDir(), store, cfg.SnapshotKeep)
	if err := snapshots.Start(cfg.SnapshotSchedule); err != nil {
		zap.L().Fatal("Invalid snapshot schedule", zap.String("schedule", cfg.SnapshotSchedule), zap.Error(err))
	}

	// 6. Initialize Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.StdLogger = log.New(logger.GetLogWriter(), "", 0)

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(zapmw.ZapLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.Secure())
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/api/events"
		},
	}))
	// Room for a batch of uploads at the per-file limit.
	e.Use(middleware.BodyLimit(strconv.FormatInt(cfg.MaxFontSize>>20*uploadBatchFiles, 10) + "M"))

	h := handler.NewHandler(handler.Deps{
		Store:        store,
		Persist:      autoPersist,
		Registry:     registry,
		Decoder:      decoder,
		Pipeline:     pipeline,
		Board:        board,
		SampleText:   sampleText,
		FontRoot:     fontRoot,
		ScanExcludes: cfg.ScanExcludes,
		Snapshots:    snapshots,
		Grouping: grouping.Options{
			Language:     cfg.Collation,
			UnnamedFirst: cfg.UnnamedFirst,
		},
		MaxFileSize: cfg.MaxFontSize,
	})

	// 7. Routes
	h.Routes(e.Group("/api"))

	// Start server
	go func() {
		zap.L().Info("Server starting", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	h.Close()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("Server shutdown failed", zap.Error(err))
	}
	board.Close()
	snapshots.Stop(shutdownCtx)
	if err := autoPersist.Stop(shutdownCtx); err != nil {
		zap.L().Error("Final save failed", zap.Error(err))
	}
}

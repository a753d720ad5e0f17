package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/zooml/survmarket/internal/config"
	"github.com/zooml/survmarket/internal/domain"
	"github.com/zooml/survmarket/internal/engine"
	"github.com/zooml/survmarket/internal/handler"
	"github.com/zooml/survmarket/internal/notify"
	"github.com/zooml/survmarket/internal/persist"
	"github.com/zooml/survmarket/internal/scan"
	"github.com/zooml/survmarket/internal/service"
	"github.com/zooml/survmarket/internal/store"
	"github.com/zooml/survmarket/internal/wallet"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Durable store.
	db, err := persist.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	// Discover the slot table. A zero-slot region runs the marketplace
	// disabled: escrow withdrawal still works, listing and purchasing do not.
	origin := domain.Point{X: cfg.RegionX, Y: cfg.RegionY}
	slots := scan.NewGridScanner(origin, cfg.SlotRows, cfg.SlotCols).Discover()
	if len(slots) == 0 {
		logger.Warn("no slots discovered, marketplace is disabled")
	}

	// Sign renderer.
	var renderer store.Renderer
	if cfg.RenderWebhookURL != "" {
		renderer = notify.NewWebhookRenderer(cfg.RenderWebhookURL, cfg.RenderTimeout, logger)
	} else {
		renderer = notify.NewLogRenderer(logger)
	}

	board := store.NewBoard(slots, renderer)
	bank := wallet.NewBank()
	mkt := engine.New(board, db, bank, bank, engine.Limits{
		SellerCap: cfg.SellerCap,
		QueueCap:  cfg.QueueCap,
	})

	// Replay persisted listings onto the board before serving traffic.
	if err := mkt.Replay(); err != nil {
		logger.Error("failed to replay listings", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("marketplace ready",
		slog.Int("slots", len(slots)),
		slog.Int("active", board.ActiveLen()),
		slog.Int("queued", board.QueueLen()),
	)

	// Router.
	router := handler.NewRouter(service.NewMarketService(mkt), bank, logger, cfg.AdminToken)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

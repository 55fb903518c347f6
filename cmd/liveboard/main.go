package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/skandyx/evscallpro-live/internal/aggregator"
	"github.com/skandyx/evscallpro-live/internal/api"
	"github.com/skandyx/evscallpro-live/internal/auth"
	"github.com/skandyx/evscallpro-live/internal/bootstrap"
	"github.com/skandyx/evscallpro-live/internal/config"
	"github.com/skandyx/evscallpro-live/internal/metrics"
	"github.com/skandyx/evscallpro-live/internal/storage"
	"github.com/skandyx/evscallpro-live/internal/store"
	"github.com/skandyx/evscallpro-live/internal/transport"
	"github.com/skandyx/evscallpro-live/internal/types"
	"github.com/skandyx/evscallpro-live/internal/websocket"
	"github.com/skandyx/evscallpro-live/pkg/middleware"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Str("bridge_url", cfg.BridgeURL).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Msg("starting liveboard server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Live-state store
	liveStore := store.New(log.Logger)

	// Call-history persistence, fed asynchronously on every hangup
	historyStore, err := storage.NewStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize call-history storage")
	}
	liveStore.SetCallSink(func(record types.CallRecord) {
		if err := historyStore.SaveCallRecord(record); err != nil {
			log.Error().Err(err).Str("call_id", record.CallID).Msg("failed to persist call record")
		}
	})
	liveStore.SetStatsSink(func(stats types.AgentDailyStats) {
		if err := historyStore.SaveAgentDailyStats(stats); err != nil {
			log.Error().Err(err).Str("agent_id", stats.AgentID).Msg("failed to persist agent daily stats")
		}
	})

	// Dashboard WebSocket hub
	hub := websocket.NewHub(log.Logger)
	go hub.Run()

	// Bootstrap snapshot: the baseline the event stream overlays
	bootClient := bootstrap.NewClient(cfg.BootstrapURL, cfg.BridgeToken)
	boot, err := bootClient.Fetch(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to fetch bootstrap snapshot")
	}
	liveStore.ApplyBootstrap(*boot)
	log.Info().
		Int("users", len(boot.Users)).
		Int("campaigns", len(boot.Campaigns)).
		Msg("bootstrap snapshot applied")

	// Bridge channel
	bridge := transport.New(transport.Options{
		URL:           cfg.BridgeURL,
		Token:         cfg.BridgeToken,
		ReconnectBase: cfg.ReconnectBase,
		ReconnectMax:  cfg.ReconnectMax,
		FallbackAfter: cfg.FallbackAfter,
		PollInterval:  cfg.PollInterval,
	}, liveStore, bootClient, log.Logger)
	go bridge.Run(ctx)

	// Snapshot broadcaster
	aggregatorService := aggregator.New(liveStore, hub, cfg.TickInterval, log.Logger)
	go aggregatorService.Start(ctx)

	// HTTP handlers
	wsHandler := websocket.NewHandler(hub, cfg, log.Logger)
	liveHandler := api.NewLiveHandler(liveStore, log.Logger)
	historyHandler := api.NewHistoryHandler(historyStore, log.Logger)
	eventReceiver := api.NewEventReceiver(liveStore, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Register public routes (no auth required)
	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())

	// Internal routes (no auth - for internal tooling and the simulator)
	r.Route("/internal", func(r chi.Router) {
		r.Post("/event", eventReceiver.HandleEvent)
		r.Get("/event/stats", eventReceiver.GetStats)
		r.Delete("/history", historyHandler.Truncate)
	})

	// Add auth middleware for protected routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Get("/ws", wsHandler.ServeHTTP)
		r.Get("/api/live", liveHandler.GetLive)
		r.Get("/api/bootstrap", liveHandler.GetBootstrap)
		r.Get("/api/notifications", liveHandler.GetNotifications)
		r.Delete("/api/notifications", liveHandler.ClearNotifications)
		r.Get("/api/history/calls", historyHandler.GetCallsByDate)
		r.Get("/api/agents/{agentId}/history", historyHandler.GetAgentHistory)
		r.Get("/api/agents/{agentId}/calls", historyHandler.GetAgentCalls)
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop the bridge channel and background services
	bridge.Close()
	cancel()
	liveStore.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"liveboard"}`)
}

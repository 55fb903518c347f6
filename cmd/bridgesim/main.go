package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/skandyx/evscallpro-live/internal/sim"
)

func main() {
	// CLI flags
	var (
		port         = flag.String("port", "9090", "Listen port")
		agentCount   = flag.Int("agents", 50, "Number of agents in the roster")
		eventsPerSec = flag.Float64("rate", 10, "Target frames per second")
		token        = flag.String("token", "", "Required WebSocket token (empty disables auth)")
		autoStart    = flag.Bool("auto-start", true, "Start the frame generator immediately")
		logLevel     = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	// Setup logger
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Str("service", "bridgesim").
		Logger()

	logger.Info().
		Int("agents", *agentCount).
		Float64("rate", *eventsPerSec).
		Msg("starting bridge simulator")

	roster := sim.GenerateRoster(*agentCount)
	server := sim.NewServer(roster, *eventsPerSec, *token, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		addr := fmt.Sprintf(":%s", *port)
		if err := server.Start(ctx, addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("bridge simulator stopped")
		}
	}()

	if *autoStart {
		// Kick the generator through its own control endpoint once the
		// listener is up
		go func() {
			time.Sleep(200 * time.Millisecond)
			resp, err := http.Post(fmt.Sprintf("http://localhost:%s/start", *port), "application/json", nil)
			if err != nil {
				logger.Error().Err(err).Msg("failed to auto-start generator")
				return
			}
			resp.Body.Close()
		}()
	}

	printUsage(*port)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down bridge simulator")
	cancel()
	time.Sleep(1 * time.Second)
}

func printUsage(port string) {
	fmt.Println()
	fmt.Println("Bridge simulator endpoints:")
	fmt.Printf("  GET  http://localhost:%s/health         - Health check\n", port)
	fmt.Printf("  GET  http://localhost:%s/status         - Generator status\n", port)
	fmt.Printf("  POST http://localhost:%s/start          - Start frame generator\n", port)
	fmt.Printf("  POST http://localhost:%s/stop           - Stop frame generator\n", port)
	fmt.Printf("  PUT  http://localhost:%s/rate           - Update frame rate\n", port)
	fmt.Printf("  GET  http://localhost:%s/api/bootstrap  - Roster snapshot\n", port)
	fmt.Printf("  WS   ws://localhost:%s/ws               - Frame stream\n", port)
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  curl http://localhost:%s/status\n", port)
	fmt.Printf("  curl -X PUT http://localhost:%s/rate -d '{\"eventsPerSec\":50}'\n", port)
	fmt.Println()
}

package sim

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/skandyx/evscallpro-live/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the simulated PBX bridge: a frame stream over WebSocket, the
// bootstrap snapshot over REST and a control API.
type Server struct {
	roster    types.Bootstrap
	generator *Generator
	token     string

	mu        sync.RWMutex
	conns     map[*websocket.Conn]bool
	running   bool
	startedAt *time.Time
	genCancel context.CancelFunc

	logger zerolog.Logger
}

// NewServer creates a bridge simulator over the given roster. If token is
// non-empty, WebSocket clients must present it as ?token=.
func NewServer(roster types.Bootstrap, eventsPerSec float64, token string, logger zerolog.Logger) *Server {
	s := &Server{
		roster: roster,
		token:  token,
		conns:  make(map[*websocket.Conn]bool),
		logger: logger.With().Str("component", "bridge_sim").Logger(),
	}
	s.generator = NewGenerator(roster, eventsPerSec, s.broadcast, logger)
	return s
}

// SetupRoutes configures HTTP routes
func (s *Server) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/health", s.healthHandler).Methods("GET")
	router.HandleFunc("/status", s.statusHandler).Methods("GET")
	router.HandleFunc("/start", s.startHandler).Methods("POST")
	router.HandleFunc("/stop", s.stopHandler).Methods("POST")
	router.HandleFunc("/rate", s.rateHandler).Methods("PUT")
	router.HandleFunc("/api/bootstrap", s.bootstrapHandler).Methods("GET")
	router.HandleFunc("/ws", s.wsHandler)
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start(ctx context.Context, addr string) error {
	router := mux.NewRouter()
	s.SetupRoutes(router)

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("shutting down bridge simulator")
		s.stopGenerator()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", addr).Msg("bridge simulator started")
	return server.ListenAndServe()
}

// broadcast sends a frame to every connected WebSocket client
func (s *Server) broadcast(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			s.logger.Debug().Err(err).Msg("dropping dead connection")
			conn.Close()
			delete(s.conns, conn)
		}
	}
}

// wsHandler upgrades and registers a frame-stream client
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	if s.token != "" && r.URL.Query().Get("token") != s.token {
		// The exact body matters: clients treat it as a terminal rejection
		http.Error(w, "token invalid", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	s.mu.Lock()
	s.conns[conn] = true
	total := len(s.conns)
	s.mu.Unlock()

	s.logger.Info().Int("total_clients", total).Msg("stream client connected")

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// bootstrapHandler serves the roster snapshot
func (s *Server) bootstrapHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.roster)
}

// healthHandler returns service health
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// statusHandler returns current simulation status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	status := map[string]interface{}{
		"running":        s.running,
		"started_at":     s.startedAt,
		"clients":        len(s.conns),
		"events_per_sec": s.generator.Rate(),
		"frames_emitted": s.generator.FramesEmitted(),
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// startHandler starts the frame generator
func (s *Server) startHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		http.Error(w, "simulation already running", http.StatusConflict)
		return
	}
	genCtx, cancel := context.WithCancel(context.Background())
	s.genCancel = cancel
	s.running = true
	now := time.Now()
	s.startedAt = &now
	s.mu.Unlock()

	go s.generator.Run(genCtx)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "simulation started",
	})
}

// stopHandler stops the frame generator
func (s *Server) stopHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		http.Error(w, "simulation not running", http.StatusConflict)
		return
	}
	s.mu.Unlock()

	s.stopGenerator()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "simulation stopped",
	})
}

// rateHandler updates the event rate
func (s *Server) rateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventsPerSec float64 `json:"eventsPerSec"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.EventsPerSec < 0 {
		http.Error(w, "eventsPerSec must be non-negative", http.StatusBadRequest)
		return
	}

	s.generator.SetRate(req.EventsPerSec)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":        "rate updated",
		"events_per_sec": req.EventsPerSec,
	})
}

func (s *Server) stopGenerator() {
	s.mu.Lock()
	if s.genCancel != nil {
		s.genCancel()
		s.genCancel = nil
	}
	s.running = false
	s.startedAt = nil
	s.mu.Unlock()
}

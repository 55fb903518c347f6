package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/skandyx/evscallpro-live/internal/metrics"
	"github.com/skandyx/evscallpro-live/internal/store"
	"github.com/skandyx/evscallpro-live/internal/types"
)

// EventReceiver accepts bridge frames over HTTP. It is the side door for
// tooling and the simulator; the normal path is the WebSocket channel.
type EventReceiver struct {
	store          *store.Store
	logger         zerolog.Logger
	eventsReceived int64
	lastReceived   time.Time
	mu             sync.RWMutex
}

// NewEventReceiver creates a new event receiver
func NewEventReceiver(st *store.Store, logger zerolog.Logger) *EventReceiver {
	return &EventReceiver{
		store:  st,
		logger: logger.With().Str("component", "event_receiver").Logger(),
	}
}

// HandleEvent decodes and dispatches a single frame
// POST /internal/event
func (r *EventReceiver) HandleEvent(w http.ResponseWriter, req *http.Request) {
	m := metrics.Get()

	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, 1<<16))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	ev, err := types.DecodeFrame(body)
	if err != nil {
		m.RecordFrameDropped()
		if errors.Is(err, types.ErrUnknownFrameType) {
			// Unknown types are dropped without failing the sender
			r.logger.Warn().Err(err).Msg("dropping unknown frame type")
			w.WriteHeader(http.StatusAccepted)
			return
		}
		r.logger.Error().Err(err).Msg("failed to decode frame")
		http.Error(w, "invalid frame", http.StatusBadRequest)
		return
	}

	m.RecordFrameDecoded()
	r.store.Dispatch(ev)
	m.RecordDispatch()

	atomic.AddInt64(&r.eventsReceived, 1)
	r.mu.Lock()
	r.lastReceived = time.Now()
	r.mu.Unlock()

	// Log periodically
	count := atomic.LoadInt64(&r.eventsReceived)
	if count%1000 == 0 {
		r.logger.Info().
			Int64("total_received", count).
			Msg("events received")
	}

	w.WriteHeader(http.StatusOK)
}

// GetStats returns receiver statistics
// GET /internal/event/stats
func (r *EventReceiver) GetStats(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	lastReceived := r.lastReceived
	r.mu.RUnlock()

	stats := map[string]interface{}{
		"events_received": atomic.LoadInt64(&r.eventsReceived),
		"last_received":   lastReceived,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

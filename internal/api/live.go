package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/skandyx/evscallpro-live/internal/store"
	"github.com/skandyx/evscallpro-live/internal/types"
)

// LiveHandler serves read-only views of the live supervision state
type LiveHandler struct {
	store  *store.Store
	logger zerolog.Logger
}

// NewLiveHandler creates a new LiveHandler
func NewLiveHandler(st *store.Store, logger zerolog.Logger) *LiveHandler {
	return &LiveHandler{
		store:  st,
		logger: logger.With().Str("component", "live_handler").Logger(),
	}
}

// GetLive returns the current live state as one JSON document
// GET /api/live
func (h *LiveHandler) GetLive(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Timestamp time.Time       `json:"timestamp"`
		State     types.LiveState `json:"state"`
	}{
		Timestamp: time.Now(),
		State:     snap,
	})
}

// GetBootstrap returns the roster and campaign definitions the dashboard
// needs before it can interpret live events
// GET /api/bootstrap
func (h *LiveHandler) GetBootstrap(w http.ResponseWriter, r *http.Request) {
	boot := types.Bootstrap{
		Users:     h.store.Users(),
		Campaigns: h.store.Campaigns(),
	}
	if boot.Users == nil {
		boot.Users = []types.User{}
	}
	if boot.Campaigns == nil {
		boot.Campaigns = []types.Campaign{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(boot)
}

// GetNotifications returns pending supervisor notifications
// GET /api/notifications
func (h *LiveHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	notifications := h.store.Notifications()
	if notifications == nil {
		notifications = []types.Notification{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notifications)
}

// ClearNotifications acknowledges and clears pending notifications
// DELETE /api/notifications
func (h *LiveHandler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	h.store.ClearNotifications()
	w.WriteHeader(http.StatusNoContent)
}

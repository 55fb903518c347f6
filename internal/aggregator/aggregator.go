package aggregator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/skandyx/evscallpro-live/internal/metrics"
	"github.com/skandyx/evscallpro-live/internal/store"
	"github.com/skandyx/evscallpro-live/internal/types"
	"github.com/skandyx/evscallpro-live/internal/websocket"
)

// Aggregator drives the wall clock of the live state. On every tick it
// advances all duration counters through the store and broadcasts one full
// snapshot to the dashboard clients.
type Aggregator struct {
	store    *store.Store
	hub      *websocket.Hub
	interval time.Duration
	logger   zerolog.Logger
}

// New creates a new aggregator
func New(st *store.Store, hub *websocket.Hub, interval time.Duration, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		store:    st,
		hub:      hub,
		interval: interval,
		logger:   logger.With().Str("component", "aggregator").Logger(),
	}
}

// Start begins ticking and broadcasting snapshots
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	m := metrics.Get()
	a.logger.Info().Dur("interval", a.interval).Msg("aggregator started")

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("aggregator stopped")
			return

		case now := <-ticker.C:
			cycleStart := time.Now()

			a.store.Dispatch(types.Tick{})
			snap := a.store.Snapshot()

			m.UpdateLiveStats(snap)

			msg := BuildSnapshot(snap, now)
			data, err := json.Marshal(msg)
			if err != nil {
				a.logger.Error().Err(err).Msg("failed to marshal snapshot")
				m.RecordBroadcastError()
				continue
			}

			a.hub.Broadcast(data)
			m.RecordBroadcastCycle(time.Since(cycleStart))

			a.logger.Debug().
				Int("agents", len(snap.AgentStates)).
				Int("calls", len(snap.ActiveCalls)).
				Int("clients", a.hub.ClientCount()).
				Msg("snapshot broadcasted")
		}
	}
}

// BuildSnapshot assembles the broadcast payload from a state clone
func BuildSnapshot(s types.LiveState, now time.Time) types.SnapshotMessage {
	summary := types.SnapshotSummary{
		TotalAgents:     len(s.AgentStates),
		StatusBreakdown: make(map[types.AgentStatus]int),
		ActiveCalls:     len(s.ActiveCalls),
	}
	for _, a := range s.AgentStates {
		summary.StatusBreakdown[a.Status]++
	}

	return types.SnapshotMessage{
		Type:      "snapshot",
		Timestamp: now,
		Summary:   summary,
		Agents:    s.AgentStates,
		Calls:     s.ActiveCalls,
		Campaigns: s.CampaignStates,
	}
}

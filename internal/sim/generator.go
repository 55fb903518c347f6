package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/skandyx/evscallpro-live/internal/types"
)

// Emitter receives encoded frames from the generator
type Emitter func(frame []byte)

// Generator drives a per-agent state machine and emits bridge frames at a
// configurable rate.
type Generator struct {
	mu            sync.RWMutex
	roster        types.Bootstrap
	eventsPerSec  float64
	running       bool
	framesEmitted int64

	agentStatus map[string]types.AgentStatus
	agentCall   map[string]string // agent id -> active call id
	campaigns   map[string]*campaignCounters

	emit   Emitter
	rng    *rand.Rand
	logger zerolog.Logger
}

type campaignCounters struct {
	offered  int
	answered int
}

// NewGenerator creates a generator over the given roster
func NewGenerator(roster types.Bootstrap, eventsPerSec float64, emit Emitter, logger zerolog.Logger) *Generator {
	g := &Generator{
		roster:       roster,
		eventsPerSec: eventsPerSec,
		agentStatus:  make(map[string]types.AgentStatus),
		agentCall:    make(map[string]string),
		campaigns:    make(map[string]*campaignCounters),
		emit:         emit,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:       logger.With().Str("component", "generator").Logger(),
	}
	for _, u := range roster.Users {
		if u.Role == types.RoleAgent {
			g.agentStatus[u.ID] = types.StatusDisconnected
		}
	}
	for _, c := range roster.Campaigns {
		g.campaigns[c.ID] = &campaignCounters{}
	}
	return g
}

// SetRate updates the target event rate
func (g *Generator) SetRate(eventsPerSec float64) {
	g.mu.Lock()
	g.eventsPerSec = eventsPerSec
	g.mu.Unlock()
}

// Rate returns the current target event rate
func (g *Generator) Rate() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.eventsPerSec
}

// FramesEmitted returns the number of frames emitted so far
func (g *Generator) FramesEmitted() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.framesEmitted
}

// Run emits frames until ctx is cancelled
func (g *Generator) Run(ctx context.Context) {
	g.mu.Lock()
	g.running = true
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.running = false
		g.mu.Unlock()
	}()

	g.logger.Info().Float64("events_per_sec", g.Rate()).Msg("generator started")

	for {
		rate := g.Rate()
		if rate <= 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
				continue
			}
		}

		// Base interval with +/-25% jitter so frames do not arrive in lockstep
		baseSleep := time.Duration(float64(time.Second) / rate)
		jitter := time.Duration(float64(baseSleep) * (g.rng.Float64()*0.5 - 0.25))
		sleep := baseSleep + jitter
		if sleep < time.Millisecond {
			sleep = time.Millisecond
		}

		select {
		case <-ctx.Done():
			g.logger.Info().Msg("generator stopped")
			return
		case <-time.After(sleep):
		}

		g.Step()
	}
}

// Step emits exactly one frame, advancing one agent or campaign
func (g *Generator) Step() {
	g.mu.Lock()
	frame, err := g.nextFrameLocked()
	if err == nil && frame != nil {
		g.framesEmitted++
	}
	g.mu.Unlock()

	if err != nil {
		g.logger.Error().Err(err).Msg("failed to encode frame")
		return
	}
	if frame != nil {
		g.emit(frame)
	}
}

func (g *Generator) nextFrameLocked() ([]byte, error) {
	// Occasionally emit campaign metrics or a raised hand instead of an
	// agent transition
	roll := g.rng.Float64()
	switch {
	case roll < 0.08:
		return g.campaignFrameLocked()
	case roll < 0.10:
		return g.raisedHandFrameLocked()
	default:
		return g.agentFrameLocked()
	}
}

func (g *Generator) agentFrameLocked() ([]byte, error) {
	agentID := g.pickAgentLocked()
	if agentID == "" {
		return nil, nil
	}

	status := g.agentStatus[agentID]

	switch status {
	case types.StatusDisconnected:
		g.agentStatus[agentID] = types.StatusAvailable
		return types.EncodeFrame(types.FrameAgentStatusUpdate, types.AgentStatusUpdate{
			AgentID: agentID,
			Status:  types.StatusAvailable,
		})

	case types.StatusAvailable:
		// Either receive a call, take a pause, or go to training
		roll := g.rng.Float64()
		switch {
		case roll < 0.6:
			callID := fmt.Sprintf("call-%06d", g.rng.Intn(1000000))
			campaignID := g.pickCampaignLocked()
			g.agentCall[agentID] = callID
			g.agentStatus[agentID] = types.StatusRinging
			if c := g.campaigns[campaignID]; c != nil {
				c.offered++
			}
			return types.EncodeFrame(types.FrameNewCall, types.ActiveCall{
				ID:         callID,
				From:       g.randomCallerLocked(),
				AgentID:    agentID,
				CampaignID: campaignID,
			})
		case roll < 0.8:
			g.agentStatus[agentID] = types.StatusOnPause
			return g.statusFrameLocked(agentID, types.StatusOnPause)
		default:
			g.agentStatus[agentID] = types.StatusTraining
			return g.statusFrameLocked(agentID, types.StatusTraining)
		}

	case types.StatusRinging:
		g.agentStatus[agentID] = types.StatusOnCall
		return g.statusFrameLocked(agentID, types.StatusOnCall)

	case types.StatusOnCall:
		if g.rng.Float64() < 0.3 {
			g.agentStatus[agentID] = types.StatusOnHold
			return g.statusFrameLocked(agentID, types.StatusOnHold)
		}
		callID := g.agentCall[agentID]
		delete(g.agentCall, agentID)
		g.agentStatus[agentID] = types.StatusWrapUp
		return types.EncodeFrame(types.FrameCallHangup, types.CallHangup{CallID: callID})

	case types.StatusOnHold:
		g.agentStatus[agentID] = types.StatusOnCall
		return g.statusFrameLocked(agentID, types.StatusOnCall)

	case types.StatusWrapUp, types.StatusOnPause, types.StatusTraining:
		g.agentStatus[agentID] = types.StatusAvailable
		return g.statusFrameLocked(agentID, types.StatusAvailable)

	default:
		g.agentStatus[agentID] = types.StatusAvailable
		return g.statusFrameLocked(agentID, types.StatusAvailable)
	}
}

func (g *Generator) statusFrameLocked(agentID string, status types.AgentStatus) ([]byte, error) {
	return types.EncodeFrame(types.FrameAgentStatusUpdate, types.AgentStatusUpdate{
		AgentID: agentID,
		Status:  status,
	})
}

func (g *Generator) campaignFrameLocked() ([]byte, error) {
	campaignID := g.pickCampaignLocked()
	c := g.campaigns[campaignID]
	if c == nil {
		return nil, nil
	}
	c.offered += g.rng.Intn(3)
	if c.answered < c.offered {
		c.answered += g.rng.Intn(2)
	}
	return types.EncodeFrame(types.FrameCampaignMetrics, types.CampaignMetrics{
		CampaignID: campaignID,
		RunStatus:  types.CampaignRunning,
		Offered:    c.offered,
		Answered:   c.answered,
		AgentCount: len(g.agentStatus),
	})
}

func (g *Generator) raisedHandFrameLocked() ([]byte, error) {
	agentID := g.pickAgentLocked()
	if agentID == "" {
		return nil, nil
	}
	return types.EncodeFrame(types.FrameAgentRaisedHand, types.AgentRaisedHand{
		AgentID:   agentID,
		Message:   "Besoin d'assistance superviseur",
		Timestamp: time.Now(),
	})
}

func (g *Generator) pickAgentLocked() string {
	if len(g.agentStatus) == 0 {
		return ""
	}
	n := g.rng.Intn(len(g.agentStatus))
	for id := range g.agentStatus {
		if n == 0 {
			return id
		}
		n--
	}
	return ""
}

func (g *Generator) pickCampaignLocked() string {
	if len(g.roster.Campaigns) == 0 {
		return ""
	}
	return g.roster.Campaigns[g.rng.Intn(len(g.roster.Campaigns))].ID
}

func (g *Generator) randomCallerLocked() string {
	return fmt.Sprintf("+336%08d", g.rng.Intn(100000000))
}

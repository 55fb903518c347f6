// Package live implements the pure event fold that produces the supervision
// state. Apply owns no I/O and never fails: events referring to unknown
// agents or calls are benign no-ops, because a dashboard showing slightly
// stale data beats one that crashes on a late hangup.
package live

import (
	"github.com/skandyx/evscallpro-live/internal/types"
)

// Apply returns the state that results from folding one event into s. The
// input is never mutated; replaying the same event sequence from the same
// starting state always produces the same result.
func Apply(s types.LiveState, ev types.Event) types.LiveState {
	next := s.Clone()

	switch e := ev.(type) {
	case types.InitState:
		next.AgentStates = buildAgentStates(e.Users)
		next.CampaignStates = buildCampaignStates(e.Campaigns)

	case types.Tick:
		for i := range next.AgentStates {
			a := &next.AgentStates[i]
			if a.Status == types.StatusDisconnected {
				continue
			}
			a.StatusDuration++
			a.ConnectedSeconds++
			switch a.Status {
			case types.StatusOnPause:
				a.PauseSeconds++
			case types.StatusTraining:
				a.TrainingSeconds++
			}
		}
		for i := range next.ActiveCalls {
			next.ActiveCalls[i].Duration++
		}

	case types.AgentStatusUpdate:
		for i := range next.AgentStates {
			a := &next.AgentStates[i]
			if a.AgentID != e.AgentID {
				continue
			}
			changed := a.Status != e.Status
			a.Status = e.Status
			// Duration resets even on a same-status update; the bridge may
			// emit redundant status frames and the counter restarts.
			a.StatusDuration = 0
			if changed {
				switch e.Status {
				case types.StatusOnPause:
					a.PauseCount++
				case types.StatusTraining:
					a.TrainingCount++
				}
			}
			break
		}

	case types.NewCall:
		next.ActiveCalls = append(next.ActiveCalls, e.Call)

	case types.CallHangup:
		kept := next.ActiveCalls[:0]
		for _, call := range next.ActiveCalls {
			if call.ID == e.CallID {
				creditAgent(next.AgentStates, call)
				continue
			}
			kept = append(kept, call)
		}
		next.ActiveCalls = kept

	case types.CampaignMetrics:
		for i := range next.CampaignStates {
			c := &next.CampaignStates[i]
			if c.ID != e.CampaignID {
				continue
			}
			if e.RunStatus != "" {
				c.RunStatus = e.RunStatus
			}
			c.Offered = e.Offered
			c.Answered = e.Answered
			c.AgentCount = e.AgentCount
			break
		}

	default:
		// Non-live kinds (roster upserts, notifications) are folded by the
		// store, not the reducer.
	}

	return next
}

// buildAgentStates creates one zeroed, disconnected entry per roster user
// with the Agent role. A full replace, so re-applying the same roster is
// idempotent and duplicate ids collapse to one entry.
func buildAgentStates(users []types.User) []types.AgentState {
	seen := make(map[string]bool, len(users))
	states := make([]types.AgentState, 0, len(users))
	for _, u := range users {
		if u.Role != types.RoleAgent || seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		states = append(states, types.AgentState{
			AgentID: u.ID,
			Status:  types.StatusDisconnected,
		})
	}
	return states
}

func buildCampaignStates(campaigns []types.Campaign) []types.CampaignState {
	seen := make(map[string]bool, len(campaigns))
	states := make([]types.CampaignState, 0, len(campaigns))
	for _, c := range campaigns {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		states = append(states, types.CampaignState{
			ID:        c.ID,
			Name:      c.Name,
			RunStatus: types.CampaignStopped,
		})
	}
	return states
}

// creditAgent folds a completed call into the handling agent's daily
// counters. Calls without an assigned agent leave the counters alone.
func creditAgent(agents []types.AgentState, call types.ActiveCall) {
	if call.AgentID == "" {
		return
	}
	for i := range agents {
		a := &agents[i]
		if a.AgentID != call.AgentID {
			continue
		}
		a.CallsHandled++
		n := float64(a.CallsHandled)
		a.AvgHandleTime += (float64(call.Duration) - a.AvgHandleTime) / n
		a.AvgTalkTime += (float64(call.Duration) - a.AvgTalkTime) / n
		return
	}
}

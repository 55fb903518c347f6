// Package store holds the single live supervision state and makes it
// observable. The store is explicitly constructed and injected; teardown is
// an explicit Close, not garbage collection.
package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skandyx/evscallpro-live/internal/live"
	"github.com/skandyx/evscallpro-live/internal/types"
)

// CallSink receives the record of every call removed by a hangup. Invoked
// asynchronously; implementations own their error handling.
type CallSink func(types.CallRecord)

// StatsSink receives the handling agent's daily rollup after a hangup has
// been folded in. Same contract as CallSink: asynchronous, errors are the
// implementation's problem.
type StatsSink func(types.AgentDailyStats)

// Store owns the LiveState plus the non-live collections (roster, campaigns,
// notifications). All mutation goes through Dispatch or the bulk setters;
// readers get deep copies.
type Store struct {
	mu sync.RWMutex

	liveState     types.LiveState
	users         []types.User
	campaigns     []types.Campaign
	notifications []types.Notification

	subscribers map[int]chan struct{}
	nextSubID   int
	closed      bool

	callSink  CallSink
	statsSink StatsSink
	logger    zerolog.Logger
}

// New creates an empty store.
func New(logger zerolog.Logger) *Store {
	return &Store{
		subscribers: make(map[int]chan struct{}),
		logger:      logger.With().Str("component", "store").Logger(),
	}
}

// SetCallSink installs the sink that receives completed-call records.
func (s *Store) SetCallSink(sink CallSink) {
	s.mu.Lock()
	s.callSink = sink
	s.mu.Unlock()
}

// SetStatsSink installs the sink that receives agent daily rollups. The
// rollup is taken from the live state right after each hangup, so the
// persisted row always matches what the dashboard showed.
func (s *Store) SetStatsSink(sink StatsSink) {
	s.mu.Lock()
	s.statsSink = sink
	s.mu.Unlock()
}

// Dispatch folds one event into the store and notifies subscribers exactly
// once, even when the event was a no-op. A redundant wake-up costs one
// snapshot rebuild; a missed one costs a stale dashboard.
func (s *Store) Dispatch(ev types.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	var ended []types.ActiveCall

	switch e := ev.(type) {
	case types.UserUpsert:
		s.users = upsertUser(s.users, e.User)

	case types.UserDelete:
		s.users = deleteUser(s.users, e.UserID)

	case types.CampaignUpsert:
		s.campaigns = upsertCampaign(s.campaigns, e.Campaign)

	case types.AgentRaisedHand:
		ts := e.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		s.notifications = append(s.notifications, types.Notification{
			ID:        uuid.New().String(),
			AgentID:   e.AgentID,
			Message:   e.Message,
			Timestamp: ts,
		})

	case types.CallHangup:
		ended = s.matchingCalls(e.CallID)
		s.liveState = live.Apply(s.liveState, ev)

	default:
		s.liveState = live.Apply(s.liveState, ev)
	}

	var rollups []types.AgentDailyStats
	if s.statsSink != nil && len(ended) > 0 {
		rollups = s.endedCallRollups(ended)
	}

	callSink := s.callSink
	statsSink := s.statsSink
	s.notifyLocked()
	s.mu.Unlock()

	if callSink != nil {
		for _, call := range ended {
			record := callToRecord(call)
			go callSink(record)
		}
	}
	if statsSink != nil {
		for _, rollup := range rollups {
			go statsSink(rollup)
		}
	}
}

// Snapshot returns a deep copy of the current live state for synchronous
// reads (first paint, REST handlers).
func (s *Store) Snapshot() types.LiveState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveState.Clone()
}

// Subscribe registers an observer. The returned channel receives one
// (coalesced) signal per dispatch; the cancel func removes the observer.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan struct{}, 1)
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
	return ch, cancel
}

// SetUsers replaces the roster collection. Last write wins; no merge with
// in-flight live updates is attempted. A live update for an agent absent
// from the new roster is retained until the next roster re-init.
func (s *Store) SetUsers(users []types.User) {
	s.mu.Lock()
	s.users = append([]types.User(nil), users...)
	s.notifyLocked()
	s.mu.Unlock()
}

// SetCampaigns replaces the campaign collection. Last write wins.
func (s *Store) SetCampaigns(campaigns []types.Campaign) {
	s.mu.Lock()
	s.campaigns = append([]types.Campaign(nil), campaigns...)
	s.notifyLocked()
	s.mu.Unlock()
}

// ApplyBootstrap replaces the roster collections and re-initializes the live
// state from them. Used at startup and by the polling fallback.
func (s *Store) ApplyBootstrap(boot types.Bootstrap) {
	s.SetUsers(boot.Users)
	s.SetCampaigns(boot.Campaigns)
	s.Dispatch(types.InitState{Users: boot.Users, Campaigns: boot.Campaigns})
}

// Users returns a copy of the roster collection.
func (s *Store) Users() []types.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.User(nil), s.users...)
}

// Campaigns returns a copy of the campaign collection.
func (s *Store) Campaigns() []types.Campaign {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Campaign(nil), s.campaigns...)
}

// Notifications returns a copy of the pending notifications.
func (s *Store) Notifications() []types.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Notification(nil), s.notifications...)
}

// ClearNotifications drops all pending notifications.
func (s *Store) ClearNotifications() {
	s.mu.Lock()
	s.notifications = nil
	s.notifyLocked()
	s.mu.Unlock()
}

// Close stops the store: further dispatches are ignored and all subscriber
// channels are released.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
}

// notifyLocked signals every subscriber without blocking. A subscriber with
// a pending signal is already going to re-read the snapshot.
func (s *Store) notifyLocked() {
	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// matchingCalls returns the active calls a hangup for callID will remove.
// Caller holds the lock.
func (s *Store) matchingCalls(callID string) []types.ActiveCall {
	var out []types.ActiveCall
	for _, call := range s.liveState.ActiveCalls {
		if call.ID == callID {
			out = append(out, call)
		}
	}
	return out
}

// endedCallRollups builds one daily rollup per distinct handling agent of
// the ended calls, from the post-hangup live state. Caller holds the lock.
func (s *Store) endedCallRollups(ended []types.ActiveCall) []types.AgentDailyStats {
	date := time.Now().Format("2006-01-02")
	seen := make(map[string]bool, len(ended))
	var rollups []types.AgentDailyStats

	for _, call := range ended {
		if call.AgentID == "" || seen[call.AgentID] {
			continue
		}
		seen[call.AgentID] = true
		for _, a := range s.liveState.AgentStates {
			if a.AgentID != call.AgentID {
				continue
			}
			rollups = append(rollups, types.AgentDailyStats{
				AgentID:          a.AgentID,
				Date:             date,
				CallsHandled:     a.CallsHandled,
				AvgHandleTime:    a.AvgHandleTime,
				AvgTalkTime:      a.AvgTalkTime,
				PauseSeconds:     a.PauseSeconds,
				TrainingSeconds:  a.TrainingSeconds,
				ConnectedSeconds: a.ConnectedSeconds,
			})
			break
		}
	}
	return rollups
}

func callToRecord(call types.ActiveCall) types.CallRecord {
	now := time.Now()
	return types.CallRecord{
		DateKey:    now.Format("2006-01-02"),
		CallID:     call.ID,
		From:       call.From,
		AgentID:    call.AgentID,
		CampaignID: call.CampaignID,
		Duration:   call.Duration,
		EndedAt:    now.Format(time.RFC3339),
	}
}

func upsertUser(users []types.User, u types.User) []types.User {
	for i := range users {
		if users[i].ID == u.ID {
			users[i] = u
			return users
		}
	}
	return append(users, u)
}

func deleteUser(users []types.User, id string) []types.User {
	for i := range users {
		if users[i].ID == id {
			return append(users[:i], users[i+1:]...)
		}
	}
	return users
}

func upsertCampaign(campaigns []types.Campaign, c types.Campaign) []types.Campaign {
	for i := range campaigns {
		if campaigns[i].ID == c.ID {
			campaigns[i] = c
			return campaigns
		}
	}
	return append(campaigns, c)
}

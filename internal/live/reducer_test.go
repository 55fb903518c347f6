package live

import (
	"reflect"
	"testing"

	"github.com/skandyx/evscallpro-live/internal/types"
)

func roster() []types.User {
	return []types.User{
		{ID: "a1", Role: types.RoleAgent},
		{ID: "a2", Role: types.RoleAgent},
		{ID: "sup1", Role: types.RoleSupervisor},
	}
}

func campaigns() []types.Campaign {
	return []types.Campaign{
		{ID: "c1", Name: "Ventes Q3"},
		{ID: "c2", Name: "Relance"},
	}
}

func TestInitStateBuildsAgentRoster(t *testing.T) {
	s := Apply(types.LiveState{}, types.InitState{Users: roster(), Campaigns: campaigns()})

	if len(s.AgentStates) != 2 {
		t.Fatalf("expected 2 agent states (supervisor excluded), got %d", len(s.AgentStates))
	}
	for _, a := range s.AgentStates {
		if a.Status != types.StatusDisconnected {
			t.Errorf("agent %s: expected status %q, got %q", a.AgentID, types.StatusDisconnected, a.Status)
		}
		if a.StatusDuration != 0 || a.CallsHandled != 0 {
			t.Errorf("agent %s: expected zeroed counters", a.AgentID)
		}
	}

	if len(s.CampaignStates) != 2 {
		t.Fatalf("expected 2 campaign states, got %d", len(s.CampaignStates))
	}
	for _, c := range s.CampaignStates {
		if c.RunStatus != types.CampaignStopped {
			t.Errorf("campaign %s: expected run status stopped, got %q", c.ID, c.RunStatus)
		}
	}
}

func TestInitStateIsIdempotent(t *testing.T) {
	// Start from a dirty state to prove init is a full replace, not a merge
	dirty := types.LiveState{
		AgentStates: []types.AgentState{{AgentID: "old", Status: types.StatusOnCall, StatusDuration: 99}},
		ActiveCalls: []types.ActiveCall{{ID: "stale", From: "+33100000000", Duration: 12}},
	}

	init := types.InitState{Users: roster(), Campaigns: campaigns()}
	once := Apply(dirty, init)
	twice := Apply(once, init)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("expected init to be idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestInitStateCollapsesDuplicateAgentIDs(t *testing.T) {
	users := []types.User{
		{ID: "a1", Role: types.RoleAgent},
		{ID: "a1", Role: types.RoleAgent},
	}
	s := Apply(types.LiveState{}, types.InitState{Users: users})
	if len(s.AgentStates) != 1 {
		t.Errorf("expected one state per agent id, got %d", len(s.AgentStates))
	}
}

func TestTickMonotonicity(t *testing.T) {
	s := Apply(types.LiveState{}, types.InitState{Users: roster()})
	s = Apply(s, types.AgentStatusUpdate{AgentID: "a1", Status: types.StatusAvailable})
	s = Apply(s, types.NewCall{Call: types.ActiveCall{ID: "call1", From: "+33612345678"}})
	s = Apply(s, types.NewCall{Call: types.ActiveCall{ID: "call2", From: "+33612345679"}})

	before := s.Clone()
	s = Apply(s, types.Tick{})

	for i, call := range s.ActiveCalls {
		if call.Duration != before.ActiveCalls[i].Duration+1 {
			t.Errorf("call %s: expected duration %d, got %d", call.ID, before.ActiveCalls[i].Duration+1, call.Duration)
		}
	}
	for i, a := range s.AgentStates {
		prev := before.AgentStates[i]
		if prev.Status == types.StatusDisconnected {
			if a.StatusDuration != prev.StatusDuration {
				t.Errorf("disconnected agent %s: duration must not advance", a.AgentID)
			}
			continue
		}
		if a.StatusDuration != prev.StatusDuration+1 {
			t.Errorf("agent %s: expected status duration %d, got %d", a.AgentID, prev.StatusDuration+1, a.StatusDuration)
		}
	}
}

func TestTickOnEmptyStateIsNoop(t *testing.T) {
	empty := types.LiveState{}
	out := Apply(empty, types.Tick{})
	if len(out.AgentStates) != 0 || len(out.ActiveCalls) != 0 {
		t.Error("expected tick on empty state to change nothing")
	}
}

func TestStatusUpdateResetsDuration(t *testing.T) {
	s := Apply(types.LiveState{}, types.InitState{Users: roster()})
	s = Apply(s, types.AgentStatusUpdate{AgentID: "a1", Status: types.StatusAvailable})
	s = Apply(s, types.Tick{})
	s = Apply(s, types.Tick{})

	s = Apply(s, types.AgentStatusUpdate{AgentID: "a1", Status: types.StatusOnCall})

	a := findAgent(t, s, "a1")
	if a.Status != types.StatusOnCall {
		t.Errorf("expected status %q, got %q", types.StatusOnCall, a.Status)
	}
	if a.StatusDuration != 0 {
		t.Errorf("expected status duration 0 after transition, got %d", a.StatusDuration)
	}
}

func TestSameStatusUpdateStillResetsDuration(t *testing.T) {
	s := Apply(types.LiveState{}, types.InitState{Users: roster()})
	s = Apply(s, types.AgentStatusUpdate{AgentID: "a1", Status: types.StatusOnPause})
	s = Apply(s, types.Tick{})
	s = Apply(s, types.Tick{})

	s = Apply(s, types.AgentStatusUpdate{AgentID: "a1", Status: types.StatusOnPause})

	a := findAgent(t, s, "a1")
	if a.StatusDuration != 0 {
		t.Errorf("expected duration reset on same-status update, got %d", a.StatusDuration)
	}
	if a.PauseCount != 1 {
		t.Errorf("expected redundant pause update not to inflate pause count, got %d", a.PauseCount)
	}
}

func TestUnknownIDsLeaveStateUnchanged(t *testing.T) {
	s := Apply(types.LiveState{}, types.InitState{Users: roster(), Campaigns: campaigns()})
	s = Apply(s, types.NewCall{Call: types.ActiveCall{ID: "call1", From: "+33612345678"}})

	for _, ev := range []types.Event{
		types.AgentStatusUpdate{AgentID: "ghost", Status: types.StatusOnCall},
		types.CallHangup{CallID: "ghost"},
		types.CampaignMetrics{CampaignID: "ghost", Offered: 10, Answered: 5},
	} {
		out := Apply(s, ev)
		if !reflect.DeepEqual(s, out) {
			t.Errorf("%s with unknown id: expected state unchanged", ev.Kind())
		}
	}
}

func TestHangupRemovesAllMatches(t *testing.T) {
	s := types.LiveState{}
	// Duplicate ids can coexist if the bridge misbehaves; hangup must clear both
	s = Apply(s, types.NewCall{Call: types.ActiveCall{ID: "dup", From: "+33611111111"}})
	s = Apply(s, types.NewCall{Call: types.ActiveCall{ID: "dup", From: "+33622222222"}})
	s = Apply(s, types.NewCall{Call: types.ActiveCall{ID: "other", From: "+33633333333"}})

	s = Apply(s, types.CallHangup{CallID: "dup"})

	if len(s.ActiveCalls) != 1 {
		t.Fatalf("expected 1 remaining call, got %d", len(s.ActiveCalls))
	}
	if s.ActiveCalls[0].ID != "other" {
		t.Errorf("expected remaining call %q, got %q", "other", s.ActiveCalls[0].ID)
	}
}

func TestHangupCreditsHandlingAgent(t *testing.T) {
	s := Apply(types.LiveState{}, types.InitState{Users: roster()})
	s = Apply(s, types.AgentStatusUpdate{AgentID: "a1", Status: types.StatusOnCall})
	s = Apply(s, types.NewCall{Call: types.ActiveCall{ID: "call1", From: "+33612345678", AgentID: "a1"}})
	for i := 0; i < 10; i++ {
		s = Apply(s, types.Tick{})
	}
	s = Apply(s, types.CallHangup{CallID: "call1"})

	a := findAgent(t, s, "a1")
	if a.CallsHandled != 1 {
		t.Errorf("expected 1 call handled, got %d", a.CallsHandled)
	}
	if a.AvgHandleTime != 10 {
		t.Errorf("expected avg handle time 10, got %v", a.AvgHandleTime)
	}
}

func TestCampaignMetricsAndHitRate(t *testing.T) {
	s := Apply(types.LiveState{}, types.InitState{Campaigns: campaigns()})
	s = Apply(s, types.CampaignMetrics{
		CampaignID: "c1",
		RunStatus:  types.CampaignRunning,
		Offered:    200,
		Answered:   50,
		AgentCount: 8,
	})

	var c types.CampaignState
	for _, cs := range s.CampaignStates {
		if cs.ID == "c1" {
			c = cs
		}
	}
	if c.RunStatus != types.CampaignRunning {
		t.Errorf("expected run status running, got %q", c.RunStatus)
	}
	if c.HitRate() != 25 {
		t.Errorf("expected hit rate 25, got %v", c.HitRate())
	}

	zero := types.CampaignState{ID: "z"}
	if zero.HitRate() != 0 {
		t.Errorf("expected hit rate 0 when nothing offered, got %v", zero.HitRate())
	}
}

func TestEventOrderDeterminism(t *testing.T) {
	seq := []types.Event{
		types.InitState{Users: roster(), Campaigns: campaigns()},
		types.NewCall{Call: types.ActiveCall{ID: "call1", From: "+33612345678", AgentID: "a1"}},
		types.AgentStatusUpdate{AgentID: "a1", Status: types.StatusOnCall},
		types.Tick{},
		types.Tick{},
		types.CallHangup{CallID: "call1"},
	}

	replay := func() types.LiveState {
		s := types.LiveState{}
		for _, ev := range seq {
			s = Apply(s, ev)
		}
		return s
	}

	first := replay()
	second := replay()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("replaying the same sequence produced different states:\n%+v\n%+v", first, second)
	}
}

func TestNewCallThenTicksScenario(t *testing.T) {
	s := Apply(types.LiveState{}, types.InitState{
		Users: []types.User{{ID: "a1", Role: types.RoleAgent}},
	})
	s = Apply(s, types.NewCall{Call: types.ActiveCall{ID: "call1", From: "+15551234567", AgentID: "a1"}})
	s = Apply(s, types.Tick{})
	s = Apply(s, types.Tick{})

	want := []types.ActiveCall{{ID: "call1", From: "+15551234567", AgentID: "a1", Duration: 2}}
	if !reflect.DeepEqual(s.ActiveCalls, want) {
		t.Errorf("active calls mismatch:\ngot:  %+v\nwant: %+v", s.ActiveCalls, want)
	}

	// No status update was ever sent, so the agent stays at the init default
	// and ticks must not advance its duration.
	a := findAgent(t, s, "a1")
	if a.Status != types.StatusDisconnected {
		t.Errorf("expected status %q, got %q", types.StatusDisconnected, a.Status)
	}
	if a.StatusDuration != 0 {
		t.Errorf("expected status duration 0 for disconnected agent, got %d", a.StatusDuration)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	s := Apply(types.LiveState{}, types.InitState{Users: roster()})
	s = Apply(s, types.NewCall{Call: types.ActiveCall{ID: "call1", From: "+33612345678"}})

	snapshot := s.Clone()
	_ = Apply(s, types.Tick{})
	_ = Apply(s, types.CallHangup{CallID: "call1"})

	if !reflect.DeepEqual(s, snapshot) {
		t.Error("Apply mutated its input state")
	}
}

func findAgent(t *testing.T, s types.LiveState, id string) types.AgentState {
	t.Helper()
	for _, a := range s.AgentStates {
		if a.AgentID == id {
			return a
		}
	}
	t.Fatalf("agent %s not found", id)
	return types.AgentState{}
}

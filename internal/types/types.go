package types

import "time"

// AgentStatus represents the current presence status of an agent.
// The wire values match the labels the PBX bridge emits.
type AgentStatus string

const (
	StatusAvailable    AgentStatus = "En Attente"
	StatusRinging      AgentStatus = "Sonnerie"
	StatusOnCall       AgentStatus = "En Appel"
	StatusWrapUp       AgentStatus = "En Post-Appel"
	StatusOnHold       AgentStatus = "En Garde"
	StatusOnPause      AgentStatus = "En Pause"
	StatusTraining     AgentStatus = "Formation"
	StatusDisconnected AgentStatus = "Déconnecté"
)

// UserRole represents the role assigned to a user account.
type UserRole string

const (
	RoleAgent      UserRole = "Agent"
	RoleSupervisor UserRole = "Superviseur"
	RoleAdmin      UserRole = "Administrateur"
)

// CampaignRunStatus represents the run state of a campaign.
type CampaignRunStatus string

const (
	CampaignRunning CampaignRunStatus = "running"
	CampaignPaused  CampaignRunStatus = "paused"
	CampaignStopped CampaignRunStatus = "stopped"
)

// User is a roster entry fetched from the bootstrap snapshot.
type User struct {
	ID        string   `json:"id"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Role      UserRole `json:"role"`
}

// Campaign is a campaign definition fetched from the bootstrap snapshot.
type Campaign struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AgentState is the live supervision view of a single agent.
type AgentState struct {
	AgentID        string      `json:"agentId"`
	Status         AgentStatus `json:"status"`
	StatusDuration int         `json:"statusDuration"` // seconds in current status

	// Cumulative daily counters, reset by a roster re-init
	CallsHandled     int     `json:"callsHandled"`
	AvgHandleTime    float64 `json:"avgHandleTime"` // seconds
	AvgTalkTime      float64 `json:"avgTalkTime"`   // seconds
	PauseCount       int     `json:"pauseCount"`
	TrainingCount    int     `json:"trainingCount"`
	PauseSeconds     int     `json:"pauseSeconds"`
	TrainingSeconds  int     `json:"trainingSeconds"`
	ConnectedSeconds int     `json:"connectedSeconds"`
}

// ActiveCall is a call currently in progress on the PBX.
type ActiveCall struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	AgentID    string `json:"agentId,omitempty"`
	CampaignID string `json:"campaignId,omitempty"`
	Duration   int    `json:"duration"` // seconds
}

// CampaignState is the live supervision view of a single campaign.
type CampaignState struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	RunStatus  CampaignRunStatus `json:"runStatus"`
	Offered    int               `json:"offered"`
	Answered   int               `json:"answered"`
	AgentCount int               `json:"agentCount"`
}

// HitRate returns the answered/offered ratio as a percentage. It is always
// derived from the counters, never stored, so it cannot drift from its inputs.
func (c CampaignState) HitRate() float64 {
	if c.Offered == 0 {
		return 0
	}
	return float64(c.Answered) / float64(c.Offered) * 100
}

// LiveState is the full in-memory supervision state. It has no durable
// backing; a bootstrap snapshot plus the event stream fully determine it.
type LiveState struct {
	AgentStates    []AgentState    `json:"agentStates"`
	ActiveCalls    []ActiveCall    `json:"activeCalls"`
	CampaignStates []CampaignState `json:"campaignStates"`
}

// Clone returns a deep copy of the state. Readers receive clones and must
// never see the store's own slices.
func (s LiveState) Clone() LiveState {
	out := LiveState{
		AgentStates:    make([]AgentState, len(s.AgentStates)),
		ActiveCalls:    make([]ActiveCall, len(s.ActiveCalls)),
		CampaignStates: make([]CampaignState, len(s.CampaignStates)),
	}
	copy(out.AgentStates, s.AgentStates)
	copy(out.ActiveCalls, s.ActiveCalls)
	copy(out.CampaignStates, s.CampaignStates)
	return out
}

// Notification is an out-of-band supervisor notification (e.g. an agent
// raising a hand). Appended, never reduced.
type Notification struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agentId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Bootstrap is the full application-data snapshot served over REST, consumed
// at startup and by the degraded polling fallback.
type Bootstrap struct {
	Users     []User     `json:"users"`
	Campaigns []Campaign `json:"campaigns"`
}

// CallRecord is the persisted trace of a completed call.
type CallRecord struct {
	DateKey    string `json:"dateKey"` // YYYY-MM-DD partition key
	CallID     string `json:"callId"`
	From       string `json:"from"`
	AgentID    string `json:"agentId,omitempty"`
	CampaignID string `json:"campaignId,omitempty"`
	Duration   int    `json:"duration"` // seconds
	EndedAt    string `json:"endedAt"`  // RFC3339
}

// AgentDailyStats is the persisted per-day rollup of an agent's counters.
type AgentDailyStats struct {
	AgentID          string  `json:"agentId"`
	Date             string  `json:"date"` // YYYY-MM-DD
	CallsHandled     int     `json:"callsHandled"`
	AvgHandleTime    float64 `json:"avgHandleTime"`
	AvgTalkTime      float64 `json:"avgTalkTime"`
	PauseSeconds     int     `json:"pauseSeconds"`
	TrainingSeconds  int     `json:"trainingSeconds"`
	ConnectedSeconds int     `json:"connectedSeconds"`
}

// SnapshotSummary contains aggregated counts for the dashboard header.
type SnapshotSummary struct {
	TotalAgents     int                 `json:"totalAgents"`
	StatusBreakdown map[AgentStatus]int `json:"statusBreakdown"`
	ActiveCalls     int                 `json:"activeCalls"`
}

// SnapshotMessage is the single payload broadcast to dashboard clients on
// every tick.
type SnapshotMessage struct {
	Type      string          `json:"type"` // always "snapshot"
	Timestamp time.Time       `json:"timestamp"`
	Summary   SnapshotSummary `json:"summary"`
	Agents    []AgentState    `json:"agents"`
	Calls     []ActiveCall    `json:"calls"`
	Campaigns []CampaignState `json:"campaigns"`
}

package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event is the tagged union of everything that can mutate the store. The
// unexported marker keeps the set closed so the reducer's type switch is
// exhaustive.
type Event interface {
	isEvent()
	Kind() string
}

// InitState replaces the live agent and campaign collections from a roster.
// Applying it twice with the same input yields the same output.
type InitState struct {
	Users     []User
	Campaigns []Campaign
}

// Tick advances every non-disconnected agent's status duration and every
// active call's duration by one second. Driven by the broadcast loop.
type Tick struct{}

// AgentStatusUpdate sets an agent's status and resets its status duration.
// Unknown agent ids are dropped.
type AgentStatusUpdate struct {
	AgentID string      `json:"agentId"`
	Status  AgentStatus `json:"status"`
}

// NewCall appends a call to the active set. De-duplication is the bridge's
// responsibility, not the reducer's.
type NewCall struct {
	Call ActiveCall
}

// CallHangup removes every active call with the given id.
type CallHangup struct {
	CallID string `json:"callId"`
}

// CampaignMetrics updates a campaign's live counters. Unknown campaign ids
// are dropped.
type CampaignMetrics struct {
	CampaignID string            `json:"campaignId"`
	RunStatus  CampaignRunStatus `json:"runStatus"`
	Offered    int               `json:"offered"`
	Answered   int               `json:"answered"`
	AgentCount int               `json:"agentCount"`
}

// UserUpsert adds or replaces a user in the non-live roster collection.
type UserUpsert struct {
	User User
}

// UserDelete removes a user from the non-live roster collection.
type UserDelete struct {
	UserID string `json:"userId"`
}

// CampaignUpsert adds or replaces a campaign in the non-live collection.
type CampaignUpsert struct {
	Campaign Campaign
}

// AgentRaisedHand appends a supervisor notification.
type AgentRaisedHand struct {
	AgentID   string    `json:"agentId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (InitState) isEvent()         {}
func (Tick) isEvent()              {}
func (AgentStatusUpdate) isEvent() {}
func (NewCall) isEvent()           {}
func (CallHangup) isEvent()        {}
func (CampaignMetrics) isEvent()   {}
func (UserUpsert) isEvent()        {}
func (UserDelete) isEvent()        {}
func (CampaignUpsert) isEvent()    {}
func (AgentRaisedHand) isEvent()   {}

func (InitState) Kind() string         { return "initState" }
func (Tick) Kind() string              { return "tick" }
func (AgentStatusUpdate) Kind() string { return FrameAgentStatusUpdate }
func (NewCall) Kind() string           { return FrameNewCall }
func (CallHangup) Kind() string        { return FrameCallHangup }
func (CampaignMetrics) Kind() string   { return FrameCampaignMetrics }
func (UserUpsert) Kind() string        { return FrameNewUser }
func (UserDelete) Kind() string        { return FrameUserDeleted }
func (CampaignUpsert) Kind() string    { return FrameCampaignUpdate }
func (AgentRaisedHand) Kind() string   { return FrameAgentRaisedHand }

// Frame type discriminators used on the bridge channel.
const (
	FrameAgentStatusUpdate = "agentStatusUpdate"
	FrameNewCall           = "newCall"
	FrameCallHangup        = "callHangup"
	FrameCampaignMetrics   = "campaignMetrics"
	FrameNewUser           = "newUser"
	FrameUserDeleted       = "userDeleted"
	FrameCampaignUpdate    = "campaignUpdate"
	FrameAgentRaisedHand   = "agentRaisedHand"
)

// ErrUnknownFrameType is returned for frame types this service does not
// handle. Callers drop and log, never fail.
var ErrUnknownFrameType = errors.New("unknown frame type")

// Frame is the envelope for every message on the bridge channel.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeFrame parses a raw bridge frame into a typed event.
func DecodeFrame(data []byte) (Event, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch frame.Type {
	case FrameAgentStatusUpdate:
		var ev AgentStatusUpdate
		if err := json.Unmarshal(frame.Payload, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", frame.Type, err)
		}
		return ev, nil

	case FrameNewCall:
		var call ActiveCall
		if err := json.Unmarshal(frame.Payload, &call); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", frame.Type, err)
		}
		return NewCall{Call: call}, nil

	case FrameCallHangup:
		var ev CallHangup
		if err := json.Unmarshal(frame.Payload, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", frame.Type, err)
		}
		return ev, nil

	case FrameCampaignMetrics:
		var ev CampaignMetrics
		if err := json.Unmarshal(frame.Payload, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", frame.Type, err)
		}
		return ev, nil

	case FrameNewUser:
		var user User
		if err := json.Unmarshal(frame.Payload, &user); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", frame.Type, err)
		}
		return UserUpsert{User: user}, nil

	case FrameUserDeleted:
		var ev UserDelete
		if err := json.Unmarshal(frame.Payload, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", frame.Type, err)
		}
		return ev, nil

	case FrameCampaignUpdate:
		var campaign Campaign
		if err := json.Unmarshal(frame.Payload, &campaign); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", frame.Type, err)
		}
		return CampaignUpsert{Campaign: campaign}, nil

	case FrameAgentRaisedHand:
		var ev AgentRaisedHand
		if err := json.Unmarshal(frame.Payload, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", frame.Type, err)
		}
		return ev, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrameType, frame.Type)
	}
}

// EncodeFrame builds the wire envelope for an event. The bridge simulator
// uses it; the service itself only decodes.
func EncodeFrame(frameType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: frameType, Payload: raw})
}

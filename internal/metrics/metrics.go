package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/skandyx/evscallpro-live/internal/types"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Bridge channel metrics
	FramesDecodedTotal    int64
	FramesDroppedTotal    int64
	DispatchesTotal       int64
	ReconnectsTotal       int64
	PollingFallbacksTotal int64
	PollCyclesTotal       int64

	// Dashboard WebSocket metrics
	WebSocketConnectionsTotal    int64
	WebSocketDisconnectionsTotal int64
	WebSocketErrorsTotal         int64
	activeConnections            int64

	// Broadcast metrics
	BroadcastCyclesTotal  int64
	BroadcastErrorsTotal  int64
	lastBroadcastDuration time.Duration

	// Live-state metrics
	agentsByStatus map[types.AgentStatus]int
	totalAgents    int
	activeCalls    int

	// HTTP metrics
	httpRequestsTotal map[string]map[int]int64 // endpoint -> status -> count

	// Timing
	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			agentsByStatus:    make(map[types.AgentStatus]int),
			httpRequestsTotal: make(map[string]map[int]int64),
			startTime:         time.Now(),
		}
	})
	return instance
}

// RecordFrameDecoded increments the decoded frame counter
func (m *Metrics) RecordFrameDecoded() {
	m.mu.Lock()
	m.FramesDecodedTotal++
	m.mu.Unlock()
}

// RecordFrameDropped increments the dropped frame counter
func (m *Metrics) RecordFrameDropped() {
	m.mu.Lock()
	m.FramesDroppedTotal++
	m.mu.Unlock()
}

// RecordDispatch increments the store dispatch counter
func (m *Metrics) RecordDispatch() {
	m.mu.Lock()
	m.DispatchesTotal++
	m.mu.Unlock()
}

// RecordReconnect increments the bridge reconnect counter
func (m *Metrics) RecordReconnect() {
	m.mu.Lock()
	m.ReconnectsTotal++
	m.mu.Unlock()
}

// RecordPollingFallback increments the fallback activation counter
func (m *Metrics) RecordPollingFallback() {
	m.mu.Lock()
	m.PollingFallbacksTotal++
	m.mu.Unlock()
}

// RecordPollCycle increments the snapshot poll counter
func (m *Metrics) RecordPollCycle() {
	m.mu.Lock()
	m.PollCyclesTotal++
	m.mu.Unlock()
}

// RecordWebSocketConnect increments connection counters
func (m *Metrics) RecordWebSocketConnect() {
	m.mu.Lock()
	m.WebSocketConnectionsTotal++
	m.activeConnections++
	m.mu.Unlock()
}

// RecordWebSocketDisconnect increments disconnection counter
func (m *Metrics) RecordWebSocketDisconnect() {
	m.mu.Lock()
	m.WebSocketDisconnectionsTotal++
	m.activeConnections--
	m.mu.Unlock()
}

// RecordWebSocketError increments WebSocket error counter
func (m *Metrics) RecordWebSocketError() {
	m.mu.Lock()
	m.WebSocketErrorsTotal++
	m.mu.Unlock()
}

// RecordBroadcastCycle records one snapshot broadcast cycle
func (m *Metrics) RecordBroadcastCycle(duration time.Duration) {
	m.mu.Lock()
	m.BroadcastCyclesTotal++
	m.lastBroadcastDuration = duration
	m.mu.Unlock()
}

// RecordBroadcastError increments broadcast error counter
func (m *Metrics) RecordBroadcastError() {
	m.mu.Lock()
	m.BroadcastErrorsTotal++
	m.mu.Unlock()
}

// UpdateLiveStats updates live-state distribution metrics
func (m *Metrics) UpdateLiveStats(state types.LiveState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.agentsByStatus = make(map[types.AgentStatus]int)
	m.totalAgents = len(state.AgentStates)
	m.activeCalls = len(state.ActiveCalls)

	for _, a := range state.AgentStates {
		m.agentsByStatus[a.Status]++
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint string, statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.httpRequestsTotal[endpoint] == nil {
		m.httpRequestsTotal[endpoint] = make(map[int]int64)
	}
	m.httpRequestsTotal[endpoint][statusCode]++
}

// GetActiveConnections returns current WebSocket connections
func (m *Metrics) GetActiveConnections() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeConnections
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// Helper to write metric
		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		// System metrics
		write("liveboard_uptime_seconds", time.Since(m.startTime).Seconds())

		// Bridge channel metrics
		write("liveboard_frames_decoded_total", m.FramesDecodedTotal)
		write("liveboard_frames_dropped_total", m.FramesDroppedTotal)
		write("liveboard_dispatches_total", m.DispatchesTotal)
		write("liveboard_reconnects_total", m.ReconnectsTotal)
		write("liveboard_polling_fallbacks_total", m.PollingFallbacksTotal)
		write("liveboard_poll_cycles_total", m.PollCyclesTotal)

		// Dashboard WebSocket metrics
		write("liveboard_websocket_connections_total", m.WebSocketConnectionsTotal)
		write("liveboard_websocket_disconnections_total", m.WebSocketDisconnectionsTotal)
		write("liveboard_websocket_active_connections", m.activeConnections)
		write("liveboard_websocket_errors_total", m.WebSocketErrorsTotal)

		// Broadcast metrics
		write("liveboard_broadcast_cycles_total", m.BroadcastCyclesTotal)
		write("liveboard_broadcast_errors_total", m.BroadcastErrorsTotal)
		write("liveboard_broadcast_duration_seconds", m.lastBroadcastDuration.Seconds())

		// Live-state metrics
		write("liveboard_agents_total", m.totalAgents)
		write("liveboard_active_calls", m.activeCalls)

		for status, count := range m.agentsByStatus {
			write("liveboard_agents_by_status", count, "status", string(status))
		}

		// HTTP metrics
		for endpoint, statusCodes := range m.httpRequestsTotal {
			for status, count := range statusCodes {
				write("liveboard_http_requests_total", count, "endpoint", endpoint, "status", strconv.Itoa(status))
			}
		}
	}
}

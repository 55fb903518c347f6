// Package transport owns the persistent WebSocket channel to the PBX bridge.
// It decodes incoming frames into typed events and feeds the store; when the
// channel cannot be held open it degrades to polling the bootstrap snapshot
// and restores live mode on reconnect.
package transport

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/skandyx/evscallpro-live/internal/bootstrap"
	"github.com/skandyx/evscallpro-live/internal/metrics"
	"github.com/skandyx/evscallpro-live/internal/store"
	"github.com/skandyx/evscallpro-live/internal/types"
)

// ConnState is the connection state of the bridge channel
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// Mode is the data-source mode, composed with the connection state. Polling
// is the degraded fallback after repeated connection failures.
type Mode string

const (
	ModeLive    Mode = "live"
	ModePolling Mode = "polling"
)

// Options configures the bridge client
type Options struct {
	URL           string
	Token         string
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	FallbackAfter int // consecutive failures before polling fallback
	PollInterval  time.Duration
}

// Client maintains the channel to the PBX bridge
type Client struct {
	opts   Options
	store  *store.Store
	boot   *bootstrap.Client
	logger zerolog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	state      ConnState
	mode       Mode
	closed     bool
	failures   int
	pollCancel context.CancelFunc
	onReauth   func()

	rng *rand.Rand
}

// New creates a bridge client. Run must be called to start it.
func New(opts Options, st *store.Store, boot *bootstrap.Client, logger zerolog.Logger) *Client {
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = time.Second
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30 * time.Second
	}
	if opts.FallbackAfter <= 0 {
		opts.FallbackAfter = 5
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	return &Client{
		opts:   opts,
		store:  st,
		boot:   boot,
		logger: logger.With().Str("component", "bridge").Logger(),
		state:  StateDisconnected,
		mode:   ModeLive,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetReauthHandler installs the callback invoked when the bridge rejects the
// token as invalid. Reconnection stops; re-authentication is external.
func (c *Client) SetReauthHandler(fn func()) {
	c.mu.Lock()
	c.onReauth = fn
	c.mu.Unlock()
}

// Run connects and maintains the channel until ctx is cancelled or Close is
// called.
func (c *Client) Run(ctx context.Context) {
	m := metrics.Get()

	for {
		if c.isClosed() {
			return
		}
		select {
		case <-ctx.Done():
			c.Close()
			return
		default:
		}

		c.setState(StateConnecting)
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.dialURL(), nil)
		if err != nil {
			c.setState(StateDisconnected)

			if tokenInvalid(resp) {
				c.logger.Error().Msg("bridge rejected token, stopping reconnects")
				c.mu.Lock()
				reauth := c.onReauth
				c.mu.Unlock()
				c.Close()
				if reauth != nil {
					reauth()
				}
				return
			}

			delay := c.recordFailure(ctx)
			c.logger.Debug().Err(err).Dur("retry_in", delay).Msg("bridge connection failed, retrying")
			select {
			case <-ctx.Done():
				c.Close()
				return
			case <-time.After(delay):
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.state = StateConnected
		wasDegraded := c.failures > 0
		c.failures = 0
		c.exitPollingLocked()
		c.mu.Unlock()

		if wasDegraded {
			m.RecordReconnect()
		}
		c.logger.Info().Str("url", c.opts.URL).Msg("bridge connected")

		c.readLoop(conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.state = StateDisconnected
		c.mu.Unlock()
		conn.Close()
	}
}

// Close permanently closes the client. Pending reconnect timers die with the
// next loop check and no further events are dispatched.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.state = StateDisconnected
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.exitPollingLocked()
}

// State returns the current connection state
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode returns the current data-source mode
func (c *Client) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// readLoop reads frames until the connection breaks
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			c.logger.Debug().Err(err).Msg("bridge read error")
			return
		}
		c.handleFrame(data)
	}
}

// handleFrame decodes and dispatches a single frame. Malformed frames are
// dropped; they must never take the dashboard down.
func (c *Client) handleFrame(data []byte) {
	m := metrics.Get()

	ev, err := types.DecodeFrame(data)
	if err != nil {
		m.RecordFrameDropped()
		c.logger.Warn().Err(err).Msg("dropping bridge frame")
		return
	}

	if c.isClosed() {
		return
	}

	m.RecordFrameDecoded()
	c.store.Dispatch(ev)
	m.RecordDispatch()
}

// recordFailure bumps the failure counter, enters polling mode past the
// threshold, and returns the next backoff delay.
func (c *Client) recordFailure(ctx context.Context) time.Duration {
	c.mu.Lock()
	c.failures++
	failures := c.failures
	enterPolling := failures >= c.opts.FallbackAfter && c.mode == ModeLive && !c.closed
	if enterPolling {
		c.mode = ModePolling
		pollCtx, cancel := context.WithCancel(ctx)
		c.pollCancel = cancel
		go c.pollLoop(pollCtx)
	}
	c.mu.Unlock()

	if enterPolling {
		metrics.Get().RecordPollingFallback()
		c.logger.Warn().Int("failures", failures).Msg("bridge unreachable, degrading to snapshot polling")
	}

	return c.jitter(backoffDelay(c.opts.ReconnectBase, c.opts.ReconnectMax, failures))
}

// pollLoop re-fetches the bootstrap snapshot while the channel is down so the
// dashboard keeps a coarse view of reality.
func (c *Client) pollLoop(ctx context.Context) {
	m := metrics.Get()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	c.poll(ctx, m)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx, m)
		}
	}
}

func (c *Client) poll(ctx context.Context, m *metrics.Metrics) {
	if c.boot == nil {
		return
	}
	boot, err := c.boot.Fetch(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("snapshot poll failed")
		return
	}
	c.store.ApplyBootstrap(*boot)
	m.RecordPollCycle()
	c.logger.Debug().Int("users", len(boot.Users)).Int("campaigns", len(boot.Campaigns)).Msg("snapshot poll applied")
}

// exitPollingLocked cancels the poll loop and restores live mode. Caller
// holds the lock.
func (c *Client) exitPollingLocked() {
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
	c.mode = ModeLive
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	if !c.closed {
		c.state = s
	}
	c.mu.Unlock()
}

func (c *Client) dialURL() string {
	if c.opts.Token == "" {
		return c.opts.URL
	}
	sep := "?"
	if strings.Contains(c.opts.URL, "?") {
		sep = "&"
	}
	return c.opts.URL + sep + "token=" + c.opts.Token
}

// jitter adds up to 20% random slack so a fleet of clients does not
// reconnect in lockstep.
func (c *Client) jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(c.rng.Int63n(int64(d)/5+1))
}

// backoffDelay returns the capped exponential delay for the nth consecutive
// failure (1-based), before jitter.
func backoffDelay(base, max time.Duration, failures int) time.Duration {
	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// tokenInvalid reports whether the handshake response is a terminal token
// rejection rather than a transient auth failure.
func tokenInvalid(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return false
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return strings.Contains(strings.ToLower(string(body)), "token invalid")
}

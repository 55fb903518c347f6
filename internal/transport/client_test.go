package transport

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/skandyx/evscallpro-live/internal/bootstrap"
	"github.com/skandyx/evscallpro-live/internal/store"
	"github.com/skandyx/evscallpro-live/internal/types"
)

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := backoffDelay(base, max, tt.failures); got != tt.want {
			t.Errorf("backoffDelay(failures=%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestJitterStaysWithinBounds(t *testing.T) {
	c := New(Options{URL: "ws://localhost"}, nil, nil, zerolog.New(&bytes.Buffer{}))

	base := 10 * time.Second
	for i := 0; i < 100; i++ {
		d := c.jitter(base)
		if d < base || d > base+base/5 {
			t.Fatalf("jittered delay %v outside [%v, %v]", d, base, base+base/5)
		}
	}
}

func TestDialURLAppendsToken(t *testing.T) {
	c := New(Options{URL: "ws://bridge/ws", Token: "abc"}, nil, nil, zerolog.New(&bytes.Buffer{}))
	if got := c.dialURL(); got != "ws://bridge/ws?token=abc" {
		t.Errorf("unexpected dial url %q", got)
	}

	c = New(Options{URL: "ws://bridge/ws?v=2", Token: "abc"}, nil, nil, zerolog.New(&bytes.Buffer{}))
	if got := c.dialURL(); got != "ws://bridge/ws?v=2&token=abc" {
		t.Errorf("unexpected dial url %q", got)
	}

	c = New(Options{URL: "ws://bridge/ws"}, nil, nil, zerolog.New(&bytes.Buffer{}))
	if got := c.dialURL(); got != "ws://bridge/ws" {
		t.Errorf("expected untouched url without token, got %q", got)
	}
}

func TestTokenInvalidDetection(t *testing.T) {
	if tokenInvalid(nil) {
		t.Error("nil response must not be a token rejection")
	}

	resp := httptest.NewRecorder()
	resp.WriteHeader(http.StatusUnauthorized)
	resp.WriteString("token invalid")
	if !tokenInvalid(resp.Result()) {
		t.Error("expected 401 'token invalid' body to be terminal")
	}

	resp = httptest.NewRecorder()
	resp.WriteHeader(http.StatusUnauthorized)
	resp.WriteString("session expired")
	if tokenInvalid(resp.Result()) {
		t.Error("other auth failures must keep retrying")
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// wsServer serves one upgrade and passes the connection to fn
func wsServer(t *testing.T, fn func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		fn(conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestClientDispatchesDecodedFrames(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	st := store.New(logger)
	st.Dispatch(types.InitState{Users: []types.User{{ID: "a1", Role: types.RoleAgent}}})

	srv := wsServer(t, func(conn *websocket.Conn) {
		defer conn.Close()

		// A malformed frame must be dropped, not kill the connection
		conn.WriteMessage(websocket.TextMessage, []byte("{not json"))

		frame, _ := types.EncodeFrame(types.FrameAgentStatusUpdate, types.AgentStatusUpdate{
			AgentID: "a1",
			Status:  types.StatusAvailable,
		})
		conn.WriteMessage(websocket.TextMessage, frame)

		// Keep the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	client := New(Options{URL: wsURL(srv)}, st, nil, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	waitFor(t, 2*time.Second, func() bool {
		snap := st.Snapshot()
		return len(snap.AgentStates) == 1 && snap.AgentStates[0].Status == types.StatusAvailable
	})

	if client.State() != StateConnected {
		t.Errorf("expected state connected, got %s", client.State())
	}
	if client.Mode() != ModeLive {
		t.Errorf("expected live mode, got %s", client.Mode())
	}

	client.Close()
}

func TestCloseStopsDispatchAndReconnects(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	st := store.New(logger)

	frames := make(chan struct{})
	srv := wsServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		<-frames
		frame, _ := types.EncodeFrame(types.FrameNewCall, types.ActiveCall{ID: "late", From: "+33100000000"})
		conn.WriteMessage(websocket.TextMessage, frame)
	})
	defer srv.Close()

	client := New(Options{URL: wsURL(srv)}, st, nil, logger)
	go client.Run(context.Background())

	waitFor(t, 2*time.Second, func() bool { return client.State() == StateConnected })

	client.Close()
	close(frames)
	time.Sleep(100 * time.Millisecond)

	if client.State() != StateDisconnected {
		t.Errorf("expected disconnected after close, got %s", client.State())
	}
	if calls := st.Snapshot().ActiveCalls; len(calls) != 0 {
		t.Errorf("expected no dispatch after close, got %+v", calls)
	}
}

func TestPollingFallbackAndRecovery(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	st := store.New(logger)

	bootSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"users":[{"id":"a1","role":"Agent"}],"campaigns":[]}`))
	}))
	defer bootSrv.Close()

	client := New(Options{
		URL:           "ws://127.0.0.1:1/ws", // nothing listens here
		ReconnectBase: 10 * time.Millisecond,
		ReconnectMax:  20 * time.Millisecond,
		FallbackAfter: 2,
		PollInterval:  25 * time.Millisecond,
	}, st, bootstrap.NewClient(bootSrv.URL, ""), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	waitFor(t, 3*time.Second, func() bool { return client.Mode() == ModePolling })
	waitFor(t, 3*time.Second, func() bool {
		snap := st.Snapshot()
		return len(snap.AgentStates) == 1 && snap.AgentStates[0].AgentID == "a1"
	})

	client.Close()
	if client.Mode() != ModeLive {
		t.Errorf("expected polling cancelled on close, got mode %s", client.Mode())
	}
}

func TestTokenInvalidStopsClientAndTriggersReauth(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	st := store.New(logger)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token invalid", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := New(Options{
		URL:           wsURL(srv),
		Token:         "stale",
		ReconnectBase: 10 * time.Millisecond,
	}, st, nil, logger)

	reauth := make(chan struct{}, 1)
	client.SetReauthHandler(func() { reauth <- struct{}{} })

	done := make(chan struct{})
	go func() {
		client.Run(context.Background())
		close(done)
	}()

	select {
	case <-reauth:
	case <-time.After(2 * time.Second):
		t.Fatal("reauth handler not invoked")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client kept running after token rejection")
	}
}

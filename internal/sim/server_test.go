package sim

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/skandyx/evscallpro-live/internal/types"
)

func newTestServer(t *testing.T, token string) (*Server, *mux.Router) {
	t.Helper()
	logger := zerolog.New(&bytes.Buffer{})
	srv := NewServer(GenerateRoster(5), 10, token, logger)
	router := mux.NewRouter()
	srv.SetupRoutes(router)
	return srv, router
}

func TestGenerateRoster(t *testing.T) {
	roster := GenerateRoster(10)

	agents := 0
	for _, u := range roster.Users {
		if u.Role == types.RoleAgent {
			agents++
		}
	}
	if agents != 10 {
		t.Errorf("expected 10 agents, got %d", agents)
	}
	if len(roster.Users) != 11 {
		t.Errorf("expected 10 agents plus 1 supervisor, got %d users", len(roster.Users))
	}
	if len(roster.Campaigns) == 0 {
		t.Error("expected campaigns in roster")
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, router := newTestServer(t, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("unexpected health body: %s", w.Body.String())
	}
}

func TestBootstrapEndpoint(t *testing.T) {
	_, router := newTestServer(t, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/bootstrap", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var boot types.Bootstrap
	if err := json.Unmarshal(w.Body.Bytes(), &boot); err != nil {
		t.Fatalf("invalid bootstrap body: %v", err)
	}
	if len(boot.Users) != 6 {
		t.Errorf("expected 6 users, got %d", len(boot.Users))
	}
}

func TestStartStopLifecycle(t *testing.T) {
	_, router := newTestServer(t, "")

	// Stop without start conflicts
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/stop", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 stopping idle simulation, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/start", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 starting simulation, got %d", w.Code)
	}

	// Double start conflicts
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/start", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 on double start, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if !strings.Contains(w.Body.String(), `"running":true`) {
		t.Errorf("expected running status, got %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/stop", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 stopping simulation, got %d", w.Code)
	}
}

func TestRateEndpointValidation(t *testing.T) {
	srv, router := newTestServer(t, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/rate", strings.NewReader(`{"eventsPerSec":-1}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative rate, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/rate", strings.NewReader(`{"eventsPerSec":50}`)))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for valid rate, got %d", w.Code)
	}
	if srv.generator.Rate() != 50 {
		t.Errorf("expected rate 50, got %f", srv.generator.Rate())
	}
}

func TestWSRejectsBadToken(t *testing.T) {
	_, router := newTestServer(t, "secret")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token=wrong", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "token invalid") {
		t.Errorf("rejection body must say token invalid, got %q", w.Body.String())
	}
}

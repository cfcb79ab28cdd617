package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"rsibot/internal/engine"
	"rsibot/internal/execution"
	"rsibot/internal/model"
)

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	paper := execution.NewPaperExecutor(0)
	eng := engine.New(engine.Config{
		Epic:           "BTCUSD",
		Strategy:       model.DefaultStrategyConfig(),
		InitialBalance: 10000,
		Executor:       paper,
		Syncer:         paper,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go eng.Run(ctx)
	return NewServer(eng, nil), eng
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Router()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st engine.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Epic != "BTCUSD" {
		t.Errorf("expected epic BTCUSD, got %s", st.Epic)
	}
	if st.Active {
		t.Error("expected inactive before start")
	}
}

func TestControlEndpoints(t *testing.T) {
	srv, eng := newTestServer(t)
	mux := srv.Router()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/control/start", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", rec.Code)
	}
	if !eng.Status().Active {
		t.Error("expected engine active after start")
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/control/pause", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("pause: expected 200, got %d", rec.Code)
	}
	if eng.Status().Active {
		t.Error("expected engine paused")
	}
}

func TestControlEndpoints_RequirePOST(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Router()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/control/start", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET on a control endpoint, got %d", rec.Code)
	}
}

func TestConfigEndpoint_RoundTrip(t *testing.T) {
	srv, eng := newTestServer(t)
	mux := srv.Router()

	next := model.DefaultStrategyConfig()
	next.Oversold = 25
	next.Overbought = 75
	body, _ := json.Marshal(next)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/config", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	got := eng.Status().Config
	if got.Oversold != 25 || got.Overbought != 75 {
		t.Errorf("expected thresholds applied, got %v/%v", got.Oversold, got.Overbought)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil))
	var fetched model.StrategyConfig
	if err := json.Unmarshal(rec.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fetched.Oversold != 25 {
		t.Errorf("expected oversold 25 echoed back, got %v", fetched.Oversold)
	}
}

func TestConfigEndpoint_RejectsInvalid(t *testing.T) {
	srv, eng := newTestServer(t)
	mux := srv.Router()

	bad := model.DefaultStrategyConfig()
	bad.Period = 1
	body, _ := json.Marshal(bad)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/config", bytes.NewReader(body)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
	if eng.Status().Config.Period == 1 {
		t.Error("invalid config must not be applied")
	}
}

func TestRiskEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Router()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/risk", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st["initial_balance"].(float64) != 10000 {
		t.Errorf("expected initial balance 10000, got %v", st["initial_balance"])
	}
}

func TestDealsEndpoint_WithoutJournal(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Router()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 when journal disabled, got %d", rec.Code)
	}
}

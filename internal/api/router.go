// Package api exposes the operator control surface over HTTP. All
// mutating endpoints route through the engine's command channel, so the
// decision loop stays the only writer of trading state.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"rsibot/internal/engine"
	"rsibot/internal/execution"
	"rsibot/internal/model"
)

// Server binds the control endpoints to an engine instance.
type Server struct {
	eng     *engine.Engine
	journal *execution.Journal // optional
}

// NewServer creates the control server. journal may be nil; the deals
// endpoint then returns 404.
func NewServer(eng *engine.Engine, journal *execution.Journal) *Server {
	return &Server{eng: eng, journal: journal}
}

// Router sets up the HTTP routes.
func (s *Server) Router() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/v1/control/start", s.command("start", s.eng.Start))
	mux.HandleFunc("/api/v1/control/pause", s.command("pause", s.eng.Pause))
	mux.HandleFunc("/api/v1/control/stopall", s.command("stopall", s.eng.StopAll))
	mux.HandleFunc("/api/v1/control/sync", s.command("sync", s.eng.SyncPositions))

	mux.HandleFunc("/api/v1/config", s.handleConfig)
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/risk", s.handleRisk)
	mux.HandleFunc("/api/v1/deals", s.handleDeals)

	return mux
}

func (s *Server) command(name string, fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "POST required")
			return
		}
		if err := fn(); err != nil {
			slog.Warn("control command failed",
				slog.String("command", name),
				slog.Any("error", err))
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		slog.Info("control command applied", slog.String("command", name))
		writeJSON(w, http.StatusOK, map[string]string{"result": "ok", "command": name})
	}
}

// handleConfig returns the active strategy parameters on GET and applies
// a full replacement set on POST. Partial updates are not supported: the
// operator submits the complete config every time.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.eng.Status().Config)
	case http.MethodPost:
		var cfg model.StrategyConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid config payload: "+err.Error())
			return
		}
		if err := s.eng.Reconfigure(cfg); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.Info("strategy reconfigured",
			slog.Int("period", cfg.Period),
			slog.Float64("oversold", cfg.Oversold),
			slog.Float64("overbought", cfg.Overbought))
		writeJSON(w, http.StatusOK, cfg)
	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or POST required")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	writeJSON(w, http.StatusOK, s.eng.Status())
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	writeJSON(w, http.StatusOK, s.eng.Guard().Status())
}

func (s *Server) handleDeals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "deal journal not enabled")
		return
	}
	deals, err := s.journal.Recent(50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deals": deals})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

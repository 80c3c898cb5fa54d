package gateapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kubegate/kubegate/status"
)

// router returns a chi router with the diagnostics routes and appropriate
// middlewares mounted
func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	if s.debug {
		r.Use(s.loggerMiddleware)
	}
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.getHealth)
	r.Get("/readyz", s.getReady)
	r.Get("/status", s.getStatus)
	r.Get("/statusz", status.Handle)
	r.Method(http.MethodGet, "/metrics", s.metrics)

	return r
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getReady reports 503 until the wait phase has observed the target status,
// so CI tooling can gate on the gate.
func (s *Server) getReady(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	if !snap.Ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready":  false,
			"phase":  snap.Phase,
			"probes": snap.Probes,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

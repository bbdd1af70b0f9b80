package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const readyTimeout = 3 * time.Second

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

type readyBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleReadyz runs every configured check and reports 503 if any fails.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	body := readyBody{Status: "ready"}
	status := http.StatusOK
	for _, name := range names {
		if body.Checks == nil {
			body.Checks = make(map[string]string, len(names))
		}
		if err := s.checks[name](ctx); err != nil {
			body.Checks[name] = err.Error()
			body.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		body.Checks[name] = "ok"
	}
	writeJSON(w, status, body)
}

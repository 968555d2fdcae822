package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
)

type runResponse struct {
	RunID    string     `json:"run_id"`
	Started  time.Time  `json:"started"`
	Finished *time.Time `json:"finished,omitempty"`
	Sites    []siteRow  `json:"sites"`
}

type siteRow struct {
	Site        string `json:"site"`
	Emitted     int    `json:"emitted"`
	Pages       int    `json:"pages"`
	FailedPages int    `json:"failed_pages"`
	State       string `json:"state"`
	DoneReason  string `json:"done_reason,omitempty"`
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.runs.Current()
	if !ok {
		s.respondWithError(w, http.StatusNotFound, "no run started")
		return
	}

	resp := runResponse{RunID: sum.RunID, Started: sum.Started, Sites: []siteRow{}}
	if !sum.Finished.IsZero() {
		resp.Finished = &sum.Finished
	}
	for name, site := range sum.Sites {
		resp.Sites = append(resp.Sites, siteRow{
			Site:        name,
			Emitted:     site.Emitted,
			Pages:       site.Pages,
			FailedPages: site.FailedPages,
			State:       site.State,
			DoneReason:  site.DoneReason,
		})
	}
	sort.Slice(resp.Sites, func(i, j int) bool { return resp.Sites[i].Site < resp.Sites[j].Site })

	s.respondWithJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	healthStatus := map[string]string{"crawler": "healthy"}
	healthy := true
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			healthStatus[name] = "unhealthy"
			healthy = false
			s.logger.Error("health check failed", zap.String("dependency", name), zap.Error(err))
			continue
		}
		healthStatus[name] = "healthy"
	}

	if !healthy {
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

// --- Helper Functions ---

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Live team
	mux.HandleFunc("GET /api/team", s.getTeam)
	mux.HandleFunc("GET /api/team/agents/{id}", s.getAgent)
	mux.HandleFunc("POST /api/team/agents/{id}/kill", s.killAgent)

	// Journal
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.getRun)
	mux.HandleFunc("GET /api/runs/{id}/events", s.listRunEvents)
	mux.HandleFunc("GET /api/runs/{id}/summary", s.getRunSummary)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) getTeam(w http.ResponseWriter, r *http.Request) {
	if s.team == nil {
		jsonError(w, "no team running", http.StatusServiceUnavailable)
		return
	}
	jsonResponse(w, s.team.Status())
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	if s.team == nil {
		jsonError(w, "no team running", http.StatusServiceUnavailable)
		return
	}
	id := r.PathValue("id")
	for _, a := range s.team.Status().Agents {
		if a.Agent == id {
			jsonResponse(w, a)
			return
		}
	}
	jsonError(w, "agent not found", http.StatusNotFound)
}

func (s *Server) killAgent(w http.ResponseWriter, r *http.Request) {
	if s.team == nil {
		jsonError(w, "no team running", http.StatusServiceUnavailable)
		return
	}
	id := r.PathValue("id")
	if err := s.team.Kill(id); err != nil {
		code := http.StatusConflict
		if strings.Contains(err.Error(), "unknown") {
			code = http.StatusNotFound
		}
		jsonError(w, err.Error(), code)
		return
	}
	jsonResponse(w, map[string]string{"status": "scheduled", "agent": id})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	runs, err := s.store.ListRuns(limit)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(runs))
	for _, run := range runs {
		out = append(out, map[string]any{
			"id":          run.ID,
			"team":        run.Team,
			"seed":        run.Seed,
			"members":     run.Members,
			"status":      run.Status,
			"ticks":       run.Ticks,
			"started_at":  run.StartedAt,
			"finished_at": run.FinishedAt,
			"started":     formatRunTime(run.StartedAt),
		})
	}
	jsonResponse(w, out)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, run)
}

func (s *Server) listRunEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	after, err := queryInt(r, "after", 0)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, err := s.store.GetRun(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}

	events, err := s.store.ListEvents(id, int64(after), limit)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		m := map[string]any{
			"id":    e.ID,
			"tick":  e.Tick,
			"agent": e.AgentID,
			"type":  e.Type,
			"time":  e.CreatedAt,
		}
		if len(e.Data) > 0 {
			m["data"] = json.RawMessage(e.Data)
		}
		out = append(out, m)
	}
	jsonResponse(w, out)
}

func (s *Server) getRunSummary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.store.GetRun(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	counts, err := s.store.CountEvents(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]any{
		"run":    run,
		"events": counts,
	})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":    "ok",
		"uptime":    formatUptime(time.Since(s.startedAt)),
		"timestamp": time.Now().UTC(),
		"version":   s.version,
		"ws":        s.hub.Len(),
	}
	if s.team != nil {
		st := s.team.Status()
		alive := 0
		for _, a := range st.Agents {
			if a.Alive {
				alive++
			}
		}
		status["team"] = st.Team
		status["run_id"] = st.RunID
		status["tick"] = st.Tick
		status["alive"] = alive
		status["members"] = len(st.Agents)
	}
	if s.bus != nil {
		status["nats_clients"] = s.bus.NumClients()
	}
	jsonResponse(w, status)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

func formatRunTime(t time.Time) string {
	local := t.Local()
	now := time.Now()
	if local.Year() == now.Year() && local.YearDay() == now.YearDay() {
		return local.Format("15:04")
	}
	return local.Format("Jan 2 15:04")
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

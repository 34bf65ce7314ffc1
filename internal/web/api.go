package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/superdisco-agents/moai-flow-sub004/internal/registry"
	"github.com/superdisco-agents/moai-flow-sub004/internal/swarm"
	"github.com/superdisco-agents/moai-flow-sub004/internal/topology"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Topology
	mux.HandleFunc("GET /api/topology", s.getTopology)
	mux.HandleFunc("POST /api/topology/switch", s.switchTopology)
	mux.HandleFunc("POST /api/topology/hub", s.designateHub)
	mux.HandleFunc("POST /api/topology/hint", s.setWorkloadHint)

	// Agents
	mux.HandleFunc("GET /api/agents", s.listAgents)
	mux.HandleFunc("POST /api/agents/{id}/ping", s.pingAgent)

	// History
	mux.HandleFunc("GET /api/transitions", s.listTransitions)
	mux.HandleFunc("GET /api/samples", s.listSamples)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) getTopology(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.coord.TopologyInfo())
}

func (s *Server) switchTopology(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.coord.SwitchTopology(r.Context(), topology.Type(body.Type)); err != nil {
		switch {
		case errors.Is(err, topology.ErrInvalidConfiguration):
			jsonError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, swarm.ErrTransitionInProgress):
			jsonError(w, err.Error(), http.StatusConflict)
		default:
			jsonError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	jsonResponse(w, map[string]string{"status": "ok", "type": body.Type})
}

func (s *Server) designateHub(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Agent string `json:"agent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.coord.DesignateHub(r.Context(), body.Agent); err != nil {
		if errors.Is(err, topology.ErrUnknownAgent) {
			jsonError(w, err.Error(), http.StatusNotFound)
			return
		}
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	jsonResponse(w, map[string]string{"status": "ok", "hub": body.Agent})
}

func (s *Server) setWorkloadHint(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Hint string `json:"hint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.coord.SetWorkloadHint(r.Context(), swarm.WorkloadHint(body.Hint)); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	jsonResponse(w, map[string]string{"status": "ok", "hint": body.Hint})
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.coord.Agents()
	out := make([]map[string]any, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentToAPI(a))
	}
	jsonResponse(w, out)
}

func (s *Server) pingAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	latency, err := s.coord.Ping(id, 2*time.Second)
	if err != nil {
		if errors.Is(err, topology.ErrUnknownAgent) {
			jsonError(w, err.Error(), http.StatusNotFound)
			return
		}
		jsonError(w, err.Error(), http.StatusGatewayTimeout)
		return
	}
	jsonResponse(w, map[string]any{
		"agent":      id,
		"latency_ms": float64(latency.Microseconds()) / 1000,
	})
}

func (s *Server) listTransitions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonResponse(w, []any{})
		return
	}
	transitions, err := s.store.ListTransitions(queryLimit(r, 50))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, transitions)
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonResponse(w, []any{})
		return
	}
	samples, err := s.store.ListSamples(queryLimit(r, 100))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, samples)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	info := s.coord.TopologyInfo()
	jsonResponse(w, map[string]any{
		"version":    s.version,
		"uptime":     formatUptime(time.Since(s.startedAt)),
		"topology":   info.Type,
		"adaptive":   info.Adaptive,
		"health":     info.Health,
		"agents":     info.AgentCount,
		"nats_conns": s.bus.NumClients(),
	})
}

func agentToAPI(a registry.Agent) map[string]any {
	return map[string]any{
		"id":            a.ID,
		"role":          a.Role,
		"capabilities":  a.Capabilities,
		"parent":        a.Parent,
		"state":         a.State,
		"seq":           a.Seq,
		"registered_at": a.RegisteredAt,
	}
}

func queryLimit(r *http.Request, fallback int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func formatUptime(d time.Duration) string {
	return d.Round(time.Second).String()
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

package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hollisdev/ember/pkg/logger"
	"github.com/hollisdev/ember/pkg/spark"
	"github.com/hollisdev/ember/pkg/state"
)

// AgentStatus is the slice of the orchestrator the server reports on.
type AgentStatus interface {
	Active() bool
}

// Server exposes the local status surface: liveness, readiness, and a small
// reminders API for UIs and scripts. It binds to loopback by default.
type Server struct {
	httpServer *http.Server
	startedAt  time.Time

	agent  AgentStatus
	state  *state.Manager
	engine *spark.Engine
}

func NewServer(host string, port int, agent AgentStatus, st *state.Manager, engine *spark.Engine) *Server {
	s := &Server{
		startedAt: time.Now(),
		agent:     agent,
		state:     st,
		engine:    engine,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/reminders", s.handleReminders)
	mux.HandleFunc("/reminders/", s.handleReminderByID)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start blocks serving until Stop is called.
func (s *Server) Start() error {
	logger.InfoCF("health", "status server listening", map[string]interface{}{"addr": s.httpServer.Addr})
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WarnCF("health", "shutdown error", map[string]interface{}{"error": err.Error()})
	}
}

// Handler returns the underlying handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type healthPayload struct {
	Status        string              `json:"status"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	AgentActive   bool                `json:"agent_active"`
	State         *state.SessionState `json:"state,omitempty"`
	Scheduler     *spark.Summary      `json:"scheduler,omitempty"`
	Parasitic     []string            `json:"parasitic,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload := healthPayload{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	if s.agent != nil {
		payload.AgentActive = s.agent.Active()
	}
	if s.state != nil {
		snap := s.state.Snapshot()
		payload.State = &snap
		payload.Parasitic = s.state.Parasitic()
	}
	if s.engine != nil {
		summary := s.engine.Summary()
		payload.Scheduler = &summary
	}

	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createReminderRequest struct {
	Message        string `json:"message"`
	DueAt          string `json:"due_at,omitempty"`
	CronExpression string `json:"cron_expression,omitempty"`
	AutoExecute    bool   `json:"auto_execute,omitempty"`
	TaskPrompt     string `json:"task_prompt,omitempty"`
}

func (s *Server) handleReminders(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "scheduler not running", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		includeCompleted := r.URL.Query().Get("all") == "true"
		writeJSON(w, http.StatusOK, s.engine.ListReminders(includeCompleted))

	case http.MethodPost:
		var req createReminderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		opts := spark.CreateOptions{
			Message:        req.Message,
			CronExpression: req.CronExpression,
			AutoExecute:    req.AutoExecute,
			TaskPrompt:     req.TaskPrompt,
		}
		if req.DueAt != "" {
			at, err := time.Parse(time.RFC3339, req.DueAt)
			if err != nil {
				http.Error(w, "due_at must be RFC3339", http.StatusBadRequest)
				return
			}
			opts.DueAt = &at
		}

		job, err := s.engine.CreateReminder(opts)
		if spark.IsDuplicate(err) {
			writeJSON(w, http.StatusConflict, job)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, job)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleReminderByID(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "scheduler not running", http.StatusServiceUnavailable)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/reminders/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, ok := s.engine.Get(id)
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, job)

	case http.MethodDelete:
		if !s.engine.DeleteReminder(id) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnCF("health", "encode response failed", map[string]interface{}{"error": err.Error()})
	}
}

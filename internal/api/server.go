// Package api exposes the orchestrator's control surface over HTTP: workflow
// control, validation and feedback calls, derived stats, and a WebSocket
// stream of event log entries.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	crewerrors "github.com/crewkit/crewkit/internal/errors"
	"github.com/crewkit/crewkit/internal/team"
)

// Server serves the control API for one team.
type Server struct {
	team   *team.Team
	mux    *http.ServeMux
	logger *slog.Logger
	ws     *wsHandler
	http   *http.Server
}

// New creates a server for the given team.
func New(tm *team.Team, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		team:   tm,
		mux:    http.NewServeMux(),
		logger: logger,
	}
	s.ws = newWSHandler(tm, logger)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/workflow", s.handleWorkflow)
	s.mux.HandleFunc("POST /api/workflow/start", s.handleStart)
	s.mux.HandleFunc("POST /api/workflow/pause", s.handlePause)
	s.mux.HandleFunc("POST /api/workflow/resume", s.handleResume)
	s.mux.HandleFunc("POST /api/workflow/stop", s.handleStop)
	s.mux.HandleFunc("GET /api/workflow/stats", s.handleWorkflowStats)
	s.mux.HandleFunc("GET /api/workflow/log", s.handleEventLog)
	s.mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	s.mux.HandleFunc("GET /api/tasks/{id}/stats", s.handleTaskStats)
	s.mux.HandleFunc("POST /api/tasks/{id}/validate", s.handleValidateTask)
	s.mux.HandleFunc("POST /api/tasks/{id}/reject", s.handleRejectTask)
	s.mux.HandleFunc("POST /api/tasks/{id}/feedback", s.handleFeedback)
	s.mux.HandleFunc("GET /api/events", s.ws.handleConnect)
}

// Handler returns the route mux, usable directly in tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts serving on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()
	s.logger.Info("api server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"name":   s.team.Name(),
		"status": s.team.Status(),
		"result": s.team.Result(),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.team.Start(context.Background()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"status": s.team.Status()})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.team.Pause(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"status": s.team.Status()})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.team.Resume(context.Background()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"status": s.team.Status()})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := s.team.Stop(body.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"status": s.team.Status()})
}

func (s *Server) handleWorkflowStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.team.WorkflowStats())
}

func (s *Server) handleEventLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.team.EventLog())
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	tk, err := s.team.Task(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, tk)
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.team.TaskStats(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleValidateTask(w http.ResponseWriter, r *http.Request) {
	if err := s.team.ValidateTask(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"status": s.team.Status()})
}

func (s *Server) handleRejectTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Feedback string `json:"feedback"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := s.team.RejectTask(r.PathValue("id"), body.Feedback); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"status": s.team.Status()})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Content == "" {
		writeJSONError(w, "feedback content is required", http.StatusBadRequest)
		return
	}

	if err := s.team.ProvideFeedback(r.PathValue("id"), body.Content); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"status": s.team.Status()})
}

// apiError is the standard error response format.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Error: message})
}

// writeError maps coded workflow errors to their HTTP status.
func writeError(w http.ResponseWriter, err error) {
	if we := crewerrors.AsWorkflowError(err); we != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(we.HTTPStatus())
		_ = json.NewEncoder(w).Encode(apiError{Error: we.What, Code: string(we.Code)})
		return
	}
	writeJSONError(w, err.Error(), http.StatusInternalServerError)
}

package daemon

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"murmur/internal/config"
	"murmur/internal/logging"
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logging.WithComponent(logger, "api"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", srv.handleHealth)
	mux.HandleFunc("/api/status", srv.requireAuth(srv.handleStatus))
	mux.HandleFunc("/api/process", srv.requireAuth(srv.handleProcess))
	mux.HandleFunc("/api/webhook/drive", srv.handleDriveWebhook)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// requireAuth enforces the configured bearer token. With no token configured
// the endpoints are open; the default bind is loopback-only.
func (s *apiServer) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			provided, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(s.token)) != 1 {
				s.writeError(w, http.StatusUnauthorized, "invalid or missing token")
				return
			}
		}
		next(w, r)
	}
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": s.daemon.running.Load(),
	})
}

type statusPayload struct {
	Running    bool              `json:"running"`
	LastPoll   string            `json:"last_poll,omitempty"`
	InProgress []claimPayload    `json:"in_progress"`
	State      statePayload      `json:"state"`
	Backends   []backendPayload  `json:"backends"`
	LastBatch  *lastBatchPayload `json:"last_batch,omitempty"`
}

type claimPayload struct {
	InputID   string `json:"input_id"`
	InputName string `json:"input_name"`
	RunID     string `json:"run_id"`
	ClaimedAt string `json:"claimed_at"`
}

type statePayload struct {
	Completed   int `json:"completed"`
	InProgress  int `json:"in_progress"`
	Transcripts int `json:"transcripts"`
}

type backendPayload struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Forced    bool   `json:"forced"`
	Detail    string `json:"detail,omitempty"`
}

type lastBatchPayload struct {
	Claimable int    `json:"claimable"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Duration  string `json:"duration"`
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status := s.daemon.Status(r.Context())
	payload := statusPayload{
		Running: status.Running,
		State: statePayload{
			Completed:   status.StateHealth.Completed,
			InProgress:  status.StateHealth.InProgress,
			Transcripts: status.StateHealth.Transcripts,
		},
		InProgress: make([]claimPayload, 0, len(status.InProgress)),
		Backends:   make([]backendPayload, 0, len(status.Backends)),
	}
	if !status.LastPoll.IsZero() {
		payload.LastPoll = status.LastPoll.UTC().Format(time.RFC3339)
	}
	for _, claim := range status.InProgress {
		payload.InProgress = append(payload.InProgress, claimPayload{
			InputID:   claim.InputID,
			InputName: claim.InputName,
			RunID:     claim.RunID,
			ClaimedAt: claim.ClaimedAt.UTC().Format(time.RFC3339),
		})
	}
	for _, backend := range status.Backends {
		payload.Backends = append(payload.Backends, backendPayload{
			Name:      backend.Name,
			Available: backend.Available,
			Forced:    backend.Forced,
			Detail:    backend.Detail,
		})
	}
	if status.LastBatch != nil {
		payload.LastBatch = &lastBatchPayload{
			Claimable: status.LastBatch.Claimable,
			Processed: status.LastBatch.Processed,
			Failed:    status.LastBatch.Failed,
			Duration:  status.LastBatch.Duration().Round(time.Millisecond).String(),
		}
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// handleProcess triggers an immediate poll. Processing happens in the poll
// loop; the response only acknowledges the trigger.
func (s *apiServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.daemon.Wake()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

// handleDriveWebhook receives Drive change notifications. The payload is not
// trusted or parsed beyond existence; a change in the watched folder simply
// wakes the poll loop, which re-lists the folder itself.
func (s *apiServer) handleDriveWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.logger.Info("drive webhook received",
		logging.String("resource_state", r.Header.Get("X-Goog-Resource-State")))
	s.daemon.Wake()
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("write api response failed", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

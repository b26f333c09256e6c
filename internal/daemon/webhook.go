package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nunotfc/amelie/internal/config"
	"github.com/nunotfc/amelie/internal/logging"
	"github.com/nunotfc/amelie/internal/pipeline"
)

// webhookServer receives inbound media submissions from the transport bridge
// and exposes the status snapshot. An empty bind address disables it.
type webhookServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

// SubmissionRequest is the inbound webhook payload. ContentPath points at a
// media file the bridge already fetched to local disk.
type SubmissionRequest struct {
	SubmissionID   string `json:"submission_id"`
	ConversationID string `json:"conversation_id"`
	OriginID       string `json:"origin_id,omitempty"`
	ContentPath    string `json:"content_path"`
	MimeType       string `json:"mime_type"`
	UserPrompt     string `json:"user_prompt,omitempty"`
}

// SubmissionResponse acknowledges an accepted submission.
type SubmissionResponse struct {
	TransactionID string `json:"transaction_id"`
}

func newWebhookServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *webhookServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Server.Bind)
	if bind == "" {
		return nil
	}

	srv := &webhookServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := strings.TrimSpace(cfg.Server.WebhookToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/submissions", authMiddleware(token, srv.handleSubmission))
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *webhookServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("webhook listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("webhook server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("webhook server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *webhookServer) stop() {
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

// Addr returns the bound address, empty before start.
func (s *webhookServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *webhookServer) handleSubmission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req SubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(req.SubmissionID) == "" ||
		strings.TrimSpace(req.ConversationID) == "" ||
		strings.TrimSpace(req.ContentPath) == "" {
		s.writeError(w, http.StatusBadRequest, "submission_id, conversation_id and content_path are required")
		return
	}

	id, err := s.daemon.manager.Submit(r.Context(), pipeline.InboundEvent{
		SubmissionID:   req.SubmissionID,
		ConversationID: req.ConversationID,
		OriginID:       req.OriginID,
		ContentRef:     req.ContentPath,
		MimeType:       req.MimeType,
		UserPrompt:     req.UserPrompt,
	})
	switch {
	case errors.Is(err, pipeline.ErrDuplicate):
		s.writeError(w, http.StatusConflict, "duplicate submission")
	case errors.Is(err, pipeline.ErrUnsupportedKind):
		s.writeError(w, http.StatusUnsupportedMediaType, "unsupported media kind")
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.writeJSON(w, http.StatusAccepted, SubmissionResponse{TransactionID: id})
	}
}

func (s *webhookServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *webhookServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *webhookServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *webhookServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "webhook")
	}
	return logging.NewNop()
}

// authMiddleware validates bearer tokens. An empty token disables
// authentication.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		if strings.TrimPrefix(auth, "Bearer ") != token {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// Package server exposes the chat endpoints. Authentication and the legal
// prompt itself live elsewhere; the account identity arrives as a header
// set by the auth layer in front of this service.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/SLZMWLMJY/Legal-ai/internal/agent"
	"github.com/SLZMWLMJY/Legal-ai/internal/config"
	"github.com/SLZMWLMJY/Legal-ai/internal/logger"
)

// allowedImageExtensions whitelists upload file types.
var allowedImageExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "bmp": true, "webp": true,
}

const accountHeader = "X-Account-Id"

// maxUploadBytes caps multipart parsing memory.
const maxUploadBytes = 20 << 20

// Server is the HTTP front of the conversational backend.
type Server struct {
	orch *agent.Orchestrator
	cfg  config.ServerConfig
	fs   afero.Fs
	mux  *http.ServeMux
	hsrv *http.Server
}

// New creates a server. A nil fs defaults to the OS filesystem; tests pass
// a memory-backed one.
func New(orch *agent.Orchestrator, cfg config.ServerConfig, fs afero.Fs) *Server {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	s := &Server{
		orch: orch,
		cfg:  cfg,
		fs:   fs,
		mux:  http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)
	s.mux.HandleFunc("POST /api/chat/image_analysis", s.handleImageChat)

	return s
}

// Handler returns the route handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled, then drains detached turn maintenance
// before returning.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.hsrv = &http.Server{Addr: addr, Handler: s.mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", addr)
		errCh <- s.hsrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.hsrv.Shutdown(shutdownCtx)
		s.orch.Wait()
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

// handleChatStream streams a turn for a JSON chat request.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(r.Header.Get(accountHeader))
	if accountID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing account id")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "missing message")
		return
	}

	logger.Info("chat stream started: account=%s", accountID)
	s.streamTurn(w, r, accountID, req.Message)
}

// handleImageChat streams a turn for a multipart request with an optional
// image upload. The saved path is appended to the message in the marker
// format the agent prompt recognizes.
func (s *Server) handleImageChat(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	message := strings.TrimSpace(r.FormValue("message"))
	if message == "" {
		writeJSONError(w, http.StatusBadRequest, "missing message")
		return
	}

	accountID := strings.TrimSpace(r.FormValue("account_id"))
	if accountID == "" {
		accountID = strings.TrimSpace(r.Header.Get(accountHeader))
	}
	if accountID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing account id")
		return
	}

	file, header, err := r.FormFile("image")
	if err == nil {
		defer file.Close()

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
		if !allowedImageExtensions[ext] {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type: %s", ext))
			return
		}

		filename := uuid.New().String()
		filename = strings.ReplaceAll(filename, "-", "") + "." + ext
		imagePath := filepath.Join(s.cfg.UploadDir, filename)

		if err := s.fs.MkdirAll(s.cfg.UploadDir, 0755); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to store image")
			return
		}
		if err := afero.WriteReader(s.fs, imagePath, file); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to store image")
			return
		}

		logger.Info("image stored: account=%s path=%s", accountID, imagePath)
		message = fmt.Sprintf("%s\n\n[图像文件: %s]", message, imagePath)
	}

	logger.Info("image chat started: account=%s", accountID)
	s.streamTurn(w, r, accountID, message)
}

// streamTurn drives one turn over an SSE response.
func (s *Server) streamTurn(w http.ResponseWriter, r *http.Request, accountID, message string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	cw := NewChunkWriter(w)
	s.orch.Turn(r.Context(), accountID, message, cw.Write, nil)
	cw.Done()
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorFrame(msg))
}

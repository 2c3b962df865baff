// Package server is the Generation Backend: it asks the language model for
// either a Manim script or an explanation, renders scripts to video and
// answers with the tagged reply the chat client expects.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/manimchat/manimchat/internal/backend"
	"github.com/manimchat/manimchat/internal/logging"
	"github.com/manimchat/manimchat/internal/provider"
	"github.com/manimchat/manimchat/internal/render"
)

const maxRequestBytes = 1 << 20

// Renderer produces a video from a Manim script. *render.Renderer
// satisfies it.
type Renderer interface {
	Render(ctx context.Context, code string) (render.Video, error)
}

// Options configures a Server.
type Options struct {
	SystemPrompt   string // empty = DefaultSystemPrompt
	Model          string
	MaxTokens      int
	Temperature    float64
	MediaDir       string // served under /media; empty disables it
	AllowedOrigins []string
	Logger         logrus.FieldLogger
}

// Server handles /api/generate.
type Server struct {
	llm    provider.Provider
	render Renderer
	opts   Options
	log    logrus.FieldLogger
}

// New creates a Server.
func New(llm provider.Provider, r Renderer, opts Options) *Server {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Server{llm: llm, render: r, opts: opts, log: log}
}

// Handler returns the routed, logged, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "provider": s.llm.Name()})
	})
	if s.opts.MediaDir != "" {
		mux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(http.Dir(s.opts.MediaDir))))
	}
	return withRequestLog(s.log, withCORS(s.opts.AllowedOrigins, mux))
}

// Generate runs one request through the model and, for scripts, the
// renderer. Errors are *HTTPError values carrying the status to answer with.
func (s *Server) Generate(ctx context.Context, messages []backend.Message) (backend.Reply, error) {
	log := loggerFrom(ctx)

	req := &provider.ChatRequest{
		Model:        s.opts.Model,
		SystemPrompt: s.opts.SystemPrompt,
		MaxTokens:    s.opts.MaxTokens,
		Messages:     make([]provider.Message, 0, len(messages)),
	}
	if s.opts.Temperature > 0 {
		t := s.opts.Temperature
		req.Temperature = &t
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, provider.Message{Role: provider.Role(m.Role), Content: m.Content})
	}

	start := time.Now()
	raw, usage, err := provider.Collect(ctx, s.llm, req)
	if err != nil {
		return backend.Reply{}, &HTTPError{Status: http.StatusBadGateway, Detail: fmt.Sprintf("language model request failed: %v", err), Err: err}
	}
	fields := logrus.Fields{"elapsed": time.Since(start).Round(time.Millisecond)}
	if usage != nil {
		fields["input_tokens"] = usage.InputTokens
		fields["output_tokens"] = usage.OutputTokens
	}
	log.WithFields(fields).Debug("model replied")

	if !render.IsAnimation(raw) {
		return backend.TextReply(raw), nil
	}

	video, err := s.render.Render(ctx, render.ExtractCode(raw))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, render.ErrNoScene) {
			status = http.StatusUnprocessableEntity
		}
		return backend.Reply{}, &HTTPError{Status: status, Detail: err.Error(), Err: err}
	}
	return backend.AnimationReply(video.URL, video.SceneName), nil
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, &HTTPError{Status: http.StatusBadRequest, Detail: "could not read request body"})
		return
	}
	messages, err := backend.DecodeRequest(data)
	if err != nil {
		writeError(w, &HTTPError{Status: http.StatusBadRequest, Detail: err.Error()})
		return
	}

	reply, err := s.Generate(r.Context(), messages)
	if err != nil {
		loggerFrom(r.Context()).WithError(err).Warn("generate failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// HTTPError is a failure with the status code and the detail the client
// should see.
type HTTPError struct {
	Status int
	Detail string
	Err    error
}

func (e *HTTPError) Error() string { return e.Detail }
func (e *HTTPError) Unwrap() error { return e.Err }

func writeError(w http.ResponseWriter, err error) {
	var he *HTTPError
	if !errors.As(err, &he) {
		he = &HTTPError{Status: http.StatusInternalServerError, Detail: err.Error()}
	}
	writeJSON(w, he.Status, backend.ErrorBody{Detail: he.Detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("generation backend listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/threadfold/internal/processor"
	"github.com/MikeSquared-Agency/threadfold/internal/thread"
)

const maxBatchBytes = 64 << 20

// StatsSource reports counters for batches received over the bus.
type StatsSource interface {
	Stats() processor.Stats
}

type Server struct {
	router  *chi.Mux
	port    int
	engine  *thread.Engine
	stats   StatsSource
	logger  *slog.Logger
	started time.Time
	maxBody int64
}

// NewServer builds the HTTP API. stats may be nil when the bus is disabled.
func NewServer(port int, apiToken string, engine *thread.Engine, stats StatsSource, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)

	s := &Server{
		router:  router,
		port:    port,
		engine:  engine,
		stats:   stats,
		logger:  logger,
		started: time.Now().UTC(),
		maxBody: maxBatchBytes,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Get("/threadfold/status", s.status)
		r.Post("/fold", s.fold)
	})

	return s
}

// Handler exposes the router for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("API server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"service": "threadfold",
		"status":  "ready",
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	}
	if s.stats != nil {
		body["bus"] = s.stats.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

// fold handles POST /api/v1/fold?path_id=&batch_id= with a JSON array of
// records as the body.
func (s *Server) fold(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "batch too large")
			return
		}
		s.logger.Warn("failed to read request body", "error", err)
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	records, err := thread.ParseBatch(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON array of records")
		return
	}

	batch := thread.Batch{
		PathID:  r.URL.Query().Get("path_id"),
		BatchID: r.URL.Query().Get("batch_id"),
		Records: records,
	}
	if batch.BatchID == "" {
		batch.BatchID = uuid.NewString()
	}

	conv, rep, err := s.engine.Process(batch)
	if errors.Is(err, thread.ErrStrictViolation) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":       "records left out of traversal",
			"diagnostics": rep.Diagnostics,
		})
		return
	}
	if err != nil {
		s.logger.Error("fold failed", "batch_id", batch.BatchID, "error", err)
		writeError(w, http.StatusInternalServerError, "fold failed")
		return
	}
	if conv == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if n := rep.Structural(); n > 0 {
		w.Header().Set("X-Dropped-Records", fmt.Sprint(n))
	}
	writeJSON(w, http.StatusOK, conv)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

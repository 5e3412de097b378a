// Package server is the thin HTTP read surface over the snapshot cache. All
// correctness lives below it; it only encodes snapshots and cache headers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GoJackzi/zamauction/internal/model"
	"github.com/GoJackzi/zamauction/internal/snapshot"
)

type Server struct {
	cache  *snapshot.Cache
	mux    *http.ServeMux
	logger *zap.Logger
}

func New(cache *snapshot.Cache, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cache:  cache,
		mux:    http.NewServeMux(),
		logger: logger,
	}
	s.mux.Handle("/api/data", http.HandlerFunc(s.handleData))
	s.mux.Handle("/healthz", http.HandlerFunc(s.handleHealth))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.Info("http server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	force := r.URL.Query().Get("refresh") == "1"
	snap, status, err := s.cache.Get(r.Context(), force)
	if err != nil {
		s.logger.Error("snapshot unavailable", zap.Error(err))
		code := http.StatusInternalServerError
		if errors.Is(err, model.ErrNoData) {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]string{"error": "failed to fetch data"})
		return
	}

	age := int(time.Since(snap.CapturedAt).Seconds())
	if age < 0 {
		age = 0
	}
	w.Header().Set("Cache-Control", "public, max-age=30")
	w.Header().Set("X-Cache", strings.ToUpper(string(status)))
	w.Header().Set("X-Cache-Age", strconv.Itoa(age))
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"time": time.Now().UTC()})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

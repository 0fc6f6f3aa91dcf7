package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	stdsync "sync"
	"time"

	"sitesync/internal/config"
	"sitesync/internal/lifecycle"
	"sitesync/internal/store"
	syncengine "sitesync/internal/sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// HTTPServer is the query surface the excluded CRUD layer consumes. It runs
// only in the foreground agent.
type HTTPServer struct {
	cfg       config.APIConfig
	store     *store.Store
	scheduler *syncengine.Scheduler
	announcer *lifecycle.Announcer
	exportDir string
	logger    zerolog.Logger
	server    *http.Server
	limiters  stdsync.Map // map[string]*rate.Limiter
}

func NewHTTPServer(cfg config.APIConfig, st *store.Store, scheduler *syncengine.Scheduler, announcer *lifecycle.Announcer, exportDir string, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:       cfg,
		store:     st,
		scheduler: scheduler,
		announcer: announcer,
		exportDir: exportDir,
		logger:    logger.With().Str("component", "http").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/mutations", srv.handleMutations)
	mux.HandleFunc("/v1/entities/", srv.handleEntities)
	mux.HandleFunc("/v1/sync", srv.handleSync)
	mux.HandleFunc("/v1/sync/state", srv.handleSyncState)
	mux.HandleFunc("/v1/visibility", srv.handleVisibility)
	mux.HandleFunc("/v1/session", srv.handleSession)
	mux.HandleFunc("/v1/background", srv.handleBackground)
	mux.HandleFunc("/v1/remote", srv.handleRemote)
	mux.HandleFunc("/v1/report/failed", srv.handleFailedReport)
	mux.HandleFunc("/healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.rateLimitMiddleware(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.RateLimit.RPS > 0 {
			if !s.getLimiter(clientKey(r)).Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (s *HTTPServer) getLimiter(key string) *rate.Limiter {
	if v, ok := s.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := s.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(s.cfg.RateLimit.RPS), burst)
	actual, loaded := s.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("dur", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

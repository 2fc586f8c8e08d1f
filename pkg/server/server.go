package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"botsim/pkg/config"
	"botsim/pkg/engine"
	"botsim/pkg/fleet"
	"botsim/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	server   *http.Server
	config   *config.Config
	fleet    *fleet.Manager
	engines  *engine.Set
	limiters *limiterPool
	gatherer prometheus.Gatherer
	started  time.Time
}

// NewServer builds the HTTP API over a fleet. A nil gatherer serves the
// default prometheus registry.
func NewServer(cfg *config.Config, fm *fleet.Manager, engines *engine.Set, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		config:   cfg,
		fleet:    fm,
		engines:  engines,
		limiters: newLimiterPool(cfg.Gateway.MessageRate, cfg.Gateway.MessageBurst),
		gatherer: gatherer,
		started:  time.Now(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.withCORS)
	r.Use(withRequestLog)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/simulate", s.handleSimulate)
		r.Get("/templates/{language}", s.handleTemplate)

		r.Route("/bots", func(r chi.Router) {
			r.Get("/", s.handleBotsList)
			r.Post("/", s.handleBotsCreate)
			r.Route("/{botID}", func(r chi.Router) {
				r.Get("/", s.handleBotGet)
				r.Put("/", s.handleBotUpdate)
				r.Delete("/", s.handleBotDelete)
				r.Post("/stop", s.handleBotStop)
				r.Post("/restart", s.handleBotRestart)
				r.Get("/messages", s.handleBotTranscript)
				r.Post("/messages", s.handleBotMessage)
				r.Post("/buttons", s.handleBotButton)
				r.Get("/logs", s.handleBotLogsTail)
				r.Get("/logs/stream", s.handleBotLogsStream)
				r.Get("/download", s.handleBotDownload)
				r.Get("/ws", s.handleBotSocket)
			})
		})
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.ListenAddr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.InfoCF("server", "Starting HTTP server", map[string]interface{}{
		"addr": addr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.ErrorCF("server", "HTTP server failed", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.InfoC("server", "Stopping HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.fleet.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"bots":    st.Total,
		"running": st.Running,
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.DebugCF("server", "Request served", map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
		})
	})
}

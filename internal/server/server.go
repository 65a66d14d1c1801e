// Package server exposes a repository over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matsen/bibnorm/internal/config"
	"github.com/matsen/bibnorm/internal/repo"
)

// Server serves one repository.
type Server struct {
	repo    *repo.Repository
	cfg     *config.ServiceConfig
	log     *zap.Logger
	metrics *Metrics
	gather  prometheus.Gatherer

	details    *gocache.Cache
	generation atomic.Uint64
	writes     *rate.Limiter
	dirty      atomic.Bool
	router     *gin.Engine
}

// New builds the router. Metrics must be the observer registered on the
// repository's pipeline so ingested papers are counted; gather serves /metrics.
func New(r *repo.Repository, cfg *config.ServiceConfig, m *Metrics, gather prometheus.Gatherer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		repo:    r,
		cfg:     cfg,
		log:     log,
		metrics: m,
		gather:  gather,
		details: gocache.New(cfg.DetailsCacheTTL, 2*cfg.DetailsCacheTTL),
		writes:  rate.NewLimiter(rate.Limit(cfg.WriteRatePerSec), cfg.WriteBurst),
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.log, s.metrics))

	router.GET("/healthz", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{})))

	router.GET("/papers", s.searchPapers)
	router.GET("/papers/:id", s.getPaper)
	router.GET("/papers/:id/details", s.getPaperDetails)
	router.GET("/authors/:id", s.getAuthor)
	router.GET("/venues/:id", s.getVenue)
	router.GET("/stats", s.stats)

	write := router.Group("/", apiKeyAuth(s.cfg.APIKey), rateLimit(s.writes))
	write.POST("/papers", s.addPaper)
	write.POST("/authors", s.addAuthor)
	write.POST("/save", s.save)

	return router
}

// Run serves on the configured port and runs the autosave schedule until ctx
// is cancelled, then shuts down and saves pending changes.
func (s *Server) Run(ctx context.Context) error {
	scheduler := cron.New()
	if s.cfg.AutosaveSchedule != "" {
		if _, err := scheduler.AddFunc(s.cfg.AutosaveSchedule, s.autosave); err != nil {
			return err
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := &http.Server{
		Addr:              ":" + s.cfg.HTTPPort,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", zap.String("port", s.cfg.HTTPPort))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("shutdown", zap.Error(err))
		}
	}

	s.autosave()
	return nil
}

// autosave writes the repository when a write happened since the last save.
func (s *Server) autosave() {
	if !s.dirty.Swap(false) {
		return
	}
	if err := s.repo.Save(); err != nil {
		s.dirty.Store(true)
		s.metrics.autosaves.WithLabelValues("error").Inc()
		s.log.Error("autosave failed", zap.Error(err))
		return
	}
	s.metrics.autosaves.WithLabelValues("ok").Inc()
	s.log.Info("repository autosaved")
}

// written records a committed write: the write generation advances, the details
// cache is dropped and the next autosave will run.
func (s *Server) written() {
	s.generation.Add(1)
	s.details.Flush()
	s.dirty.Store(true)
}

func detailsKey(generation uint64, id string) string {
	return strconv.FormatUint(generation, 10) + "/" + id
}

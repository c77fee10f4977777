// Package status serves a small JSON API describing the running push session:
// its state, event channel occupancy, recent metrics, recent warnings and
// host resource usage.
package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	appconfig "pushflow/config"
	"pushflow/internal/channel"
	"pushflow/internal/metrics"
	"pushflow/logger"
	"pushflow/push"
)

// Session is the part of push.Client the status API reads.
type Session interface {
	ID() string
	State() push.State
}

// EventBuffer is the part of channel.Events the status API reads.
type EventBuffer interface {
	GetStats() channel.ChannelStats
	Len() int
	Cap() int
}

// Server hosts the status API.
type Server struct {
	cfg           appconfig.StatusConfig
	log           *logger.Log
	session       Session
	events        EventBuffer
	started       time.Time
	metricStore   *metricStore
	metricHandler metrics.MetricHandlerID
	logStore      *logStore
	sampler       *sampler
	httpServer    *http.Server
}

// NewServer returns nil when the status API is disabled.
func NewServer(cfg appconfig.StatusConfig, log *logger.Log, session Session, events EventBuffer) *Server {
	if !cfg.Enabled {
		return nil
	}
	cfg.Address = normalizeAddress(cfg.Address)

	s := &Server{
		cfg:         cfg,
		log:         log,
		session:     session,
		events:      events,
		started:     time.Now(),
		metricStore: newMetricStore(cfg.MetricsHistory),
		logStore:    newLogStore(cfg.LogHistory),
		sampler:     newSampler(cfg.MetricsHistory, cfg.SampleInterval, "/"),
	}
	s.metricHandler = metrics.RegisterMetricHandler(s.metricStore.handle)
	log.AddHook(s.logStore)
	return s
}

// Address reports the listen address.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}
	defer s.cleanup()

	s.sampler.start(ctx)
	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithComponent("status").WithFields(logger.Fields{"addr": s.cfg.Address}).Info("status api listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	s.logStore.close()
	s.sampler.stop()
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)
	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"metrics": s.metricStore.snapshot()})
	})
	api.GET("/logs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot()})
	})
	api.GET("/resources", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"resources": s.sampler.samples.snapshot()})
	})
	return r
}

// handleHealth answers 200 while the session is connected and 503 otherwise.
func (s *Server) handleHealth(c *gin.Context) {
	state := s.session.State()
	code := http.StatusOK
	if state != push.StateConnected {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"state": state.String()})
}

func (s *Server) handleStatus(c *gin.Context) {
	stats := s.events.GetStats()
	c.JSON(http.StatusOK, gin.H{
		"session_id": s.session.ID(),
		"state":      s.session.State().String(),
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"events": gin.H{
			"sent":     stats.Sent,
			"dropped":  stats.Dropped,
			"buffered": s.events.Len(),
			"capacity": s.events.Cap(),
		},
		"log_counts": logger.Counts(),
	})
}

// normalizeAddress fills in a missing host or port.
func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "0.0.0.0:8080"
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// bare host or IP
		return net.JoinHostPort(strings.Trim(addr, "[]"), "8080")
	}
	if host == "" || host == "*" {
		host = "0.0.0.0"
	}
	if port == "" {
		port = "8080"
	}
	return net.JoinHostPort(host, port)
}

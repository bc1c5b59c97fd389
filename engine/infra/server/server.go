package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/compozy/docqa/engine/infra/monitoring"
	"github.com/compozy/docqa/engine/infra/server/middleware/ratelimit"
	"github.com/compozy/docqa/engine/infra/server/middleware/size"
	"github.com/compozy/docqa/engine/infra/server/routes"
	"github.com/compozy/docqa/pkg/config"
	"github.com/compozy/docqa/pkg/logger"
)

const (
	statusNotReady        = "not_ready"
	statusReady           = "ready"
	serverShutdownTimeout = 5 * time.Second
	healthCheckTimeout    = 2 * time.Second
	modeSingle            = "single"
	hostAny               = "0.0.0.0"
	hostLoopback          = "127.0.0.1"
)

// Dependencies are the long-lived handles the server routes requests to.
type Dependencies struct {
	Asker      Asker
	Index      IndexCounter
	Monitoring *monitoring.Service
	// RedisClient backs the rate limiter when set; nil keeps counters in memory.
	RedisClient *redis.Client
}

type Server struct {
	cfg        *config.Config
	asker      Asker
	index      IndexCounter
	monitoring *monitoring.Service
	redis      *redis.Client
	router     *gin.Engine
	ctx        context.Context
}

// NewServer builds the router for cfg. The logger in ctx becomes the request logger.
func NewServer(ctx context.Context, cfg *config.Config, deps Dependencies) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server configuration is required")
	}
	if deps.Asker == nil {
		return nil, errors.New("server requires a question answering service")
	}
	s := &Server{
		cfg:        cfg,
		asker:      deps.Asker,
		index:      deps.Index,
		monitoring: deps.Monitoring,
		redis:      deps.RedisClient,
		ctx:        ctx,
	}
	if err := s.buildRouter(); err != nil {
		return nil, fmt.Errorf("failed to build router: %w", err)
	}
	return s, nil
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() error {
	log := logger.FromContext(s.ctx)
	r := gin.New()
	r.Use(gin.Recovery())
	monitored := s.monitoring != nil && s.monitoring.IsInitialized()
	if monitored {
		r.Use(s.monitoring.GinMiddleware())
	}
	r.Use(LoggerMiddleware(log))
	if s.cfg.Server.CORSEnabled {
		r.Use(CORSMiddleware(s.cfg.Server.CORS))
	}
	if monitored {
		r.GET(s.monitoring.Path(), gin.WrapH(s.monitoring.ExporterHandler()))
	}
	r.GET(routes.Health(), s.health)
	r.GET(routes.HealthVersioned(), s.health)

	questions := r.Group("")
	questions.Use(size.BodySizeLimiter(s.cfg.Server.BodyLimit))
	if s.cfg.RateLimit.Enabled {
		manager, err := s.rateLimiter(monitored)
		if err != nil {
			return err
		}
		questions.Use(manager.Middleware())
		log.Info("Rate limiter initialized",
			"driver", manager.Driver(),
			"limit", s.cfg.RateLimit.Limit,
			"period", s.cfg.RateLimit.Period)
	}
	if s.cfg.Server.Mode == modeSingle {
		questions.POST(routes.Ask(), s.askSingle)
	} else {
		questions.POST(routes.Ask(), s.askConversational)
	}
	questions.POST(routes.SingleAsk(), s.askSingle)
	questions.POST(routes.ChatAsk(), s.askConversational)
	s.router = r
	return nil
}

func (s *Server) rateLimiter(monitored bool) (*ratelimit.Manager, error) {
	cfg := ratelimit.FromAppConfig(s.cfg.RateLimit)
	client := s.redis
	if client == nil && s.cfg.RateLimit.RedisURL != "" {
		opts, err := redis.ParseURL(s.cfg.RateLimit.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid rate limit redis url: %w", err)
		}
		client = redis.NewClient(opts)
		s.redis = client
	}
	if monitored {
		return ratelimit.NewManagerWithMetrics(cfg, client, s.monitoring.Meter())
	}
	return ratelimit.NewManager(cfg, client)
}

// Run serves until ctx is canceled or SIGINT/SIGTERM arrives, then drains
// in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := logger.FromContext(ctx)
	srv := s.createHTTPServer()
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logStartupBanner()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Debug("Received shutdown signal, initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.closeRedis()
	log.Info("Server shutdown completed successfully")
	return nil
}

func (s *Server) createHTTPServer() *http.Server {
	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
	return &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return s.ctx },
	}
}

func (s *Server) closeRedis() {
	if s.redis == nil {
		return
	}
	if err := s.redis.Close(); err != nil {
		logger.FromContext(s.ctx).Warn("Failed to close rate limit redis client", "error", err)
	}
}

func (s *Server) logStartupBanner() {
	httpURL := fmt.Sprintf("http://%s:%d", friendlyHost(s.cfg.Server.Host), s.cfg.Server.Port)
	lines := []string{
		strings.TrimRight(figure.NewFigure("docqa", "standard", true).String(), "\n"),
		fmt.Sprintf("  Ask (%s) > %s%s", s.cfg.Server.Mode, httpURL, routes.Ask()),
		fmt.Sprintf("  Single turn    > %s%s", httpURL, routes.SingleAsk()),
		fmt.Sprintf("  Conversational > %s%s", httpURL, routes.ChatAsk()),
		fmt.Sprintf("  Health         > %s%s", httpURL, routes.Health()),
	}
	if s.monitoring != nil && s.monitoring.IsInitialized() {
		lines = append(lines, fmt.Sprintf("  Metrics        > %s%s", httpURL, s.monitoring.Path()))
	}
	logger.FromContext(s.ctx).Info("\n" + strings.Join(lines, "\n"))
}

func friendlyHost(h string) string {
	if h == hostAny || h == "::" || h == "" {
		return hostLoopback
	}
	return h
}

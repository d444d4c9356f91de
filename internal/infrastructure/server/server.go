package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/xweng-opaida/agent-viewer/internal/api/http"
	"github.com/xweng-opaida/agent-viewer/internal/api/middleware"
	"github.com/xweng-opaida/agent-viewer/internal/api/ws"
	"github.com/xweng-opaida/agent-viewer/internal/domain/session"
	"github.com/xweng-opaida/agent-viewer/internal/infrastructure/config"
	"github.com/xweng-opaida/agent-viewer/internal/infrastructure/logging"
	"github.com/xweng-opaida/agent-viewer/internal/infrastructure/monitoring"
	"github.com/xweng-opaida/agent-viewer/internal/infrastructure/resilience"
	"github.com/xweng-opaida/agent-viewer/internal/infrastructure/tracing"
	"github.com/xweng-opaida/agent-viewer/internal/runtime"
)

// Server wires the session manager, bridge, and HTTP API together.
type Server struct {
	router  *gin.Engine
	manager *session.Manager
	docker  *runtime.Docker
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a server instance from configuration.
func NewServer(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("initializing agent-viewer",
		zap.String("port", cfg.Server.Port),
		zap.String("image", cfg.Runtime.Image),
		zap.String("launch_script", cfg.Launcher.Script),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("agent-viewer", logger.Logger)

	docker, err := runtime.NewDocker(cfg.Runtime.Image)
	if err != nil {
		return nil, fmt.Errorf("connect to docker: %w", err)
	}

	allocator := session.NewAllocator(
		session.Range{Start: cfg.Ports.DebugStart, Size: cfg.Ports.DebugSize},
		session.Range{Start: cfg.Ports.VNCStart, Size: cfg.Ports.VNCSize},
		session.Range{Start: cfg.Ports.DisplayStart, Size: cfg.Ports.DisplaySize},
	)
	registry := session.NewRegistry(allocator)
	launcher := runtime.NewScriptLauncher(cfg.Launcher.Script)

	breaker := resilience.New("docker-query", resilience.Settings{
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	manager := session.NewManager(registry, docker, launcher, session.Config{
		ReadyTimeout: cfg.Launcher.ReadyTimeout,
		ReadyPoll:    cfg.Launcher.ReadyPoll,
		QueryTimeout: cfg.Runtime.QueryTimeout,
	}, logger.Named("session")).
		WithMetrics(metrics).
		WithBreaker(breaker)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(manager, logger.Named("api"))
	bridge := ws.NewHandler(manager, cfg.Runtime.VNCHost, cfg.Runtime.VNCDialTimeout, logger.Named("bridge")).
		WithMetrics(metrics)

	router.GET("/health", handlers.Health)
	router.GET("/api/sessions", handlers.ListSessions)
	router.POST("/api/sessions", handlers.CreateSession)
	router.POST("/api/sessions/:id/stop", handlers.StopSession)
	router.POST("/api/sessions/cleanup", handlers.CleanupSessions)
	router.POST("/api/sessions/discover", handlers.DiscoverSessions)

	router.GET("/vnc/:id", bridge.Bridge)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The viewer UI (noVNC client and session list) is plain static files.
	router.Static("/ui", cfg.Server.StaticDir)

	logger.Info("server initialized")

	return &Server{
		router:  router,
		manager: manager,
		docker:  docker,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Bootstrap rebuilds the registry from the runtime's current state. The
// registry has no persistence; discovery is how state survives restarts.
func (s *Server) Bootstrap(ctx context.Context) {
	result, err := s.manager.Discover(ctx)
	if err != nil {
		s.logger.Warn("initial discovery failed, starting empty", zap.Error(err))
		return
	}
	s.logger.Info("recovered sessions from runtime",
		zap.Int("sessions", len(result.Added)),
	)
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("starting HTTP server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Close releases the server's runtime connection.
func (s *Server) Close() error {
	s.logger.Info("shutting down")
	err := s.docker.Close()
	s.logger.Sync()
	return err
}

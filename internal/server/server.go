package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webboot/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webboot/internal/infrastructure/tracing"
)

// Options configures the dev server.
type Options struct {
	Addr string
	Root string
	// WorkerScope is sent as Service-Worker-Allowed on scripts. Defaults to "/".
	WorkerScope string
	Development bool
	CORS        *CORSConfig
	RateLimit   RateLimitConfig
	Logger      *zap.Logger
	Metrics     *monitoring.Metrics
}

// Server wraps the HTTP server and its dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	root    string
	tracer  *tracing.Tracer
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New creates a dev server for the site at opts.Root.
func New(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("serve")

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve site root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open site root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("site root %s is not a directory", root)
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	scope := opts.WorkerScope
	if scope == "" {
		scope = "/"
	}
	corsCfg := DefaultCORSConfig()
	if opts.CORS != nil {
		corsCfg = *opts.CORS
	}

	if !opts.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	tracer := tracing.New("webboot-serve", logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(CORS(corsCfg))
	router.Use(RateLimit(opts.RateLimit))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))

	files := http.FileServer(gin.Dir(root, false))
	router.NoRoute(bootHeaders(scope), func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead:
			files.ServeHTTP(c.Writer, c.Request)
		default:
			c.AbortWithStatus(http.StatusMethodNotAllowed)
		}
	})

	s := &Server{
		router:  router,
		root:    root,
		tracer:  tracer,
		logger:  logger,
		metrics: metrics,
	}
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("server initialized", zap.String("root", root))
	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Root returns the absolute site root.
func (s *Server) Root() string {
	return s.root
}

// Run listens on the configured address until Shutdown.
func (s *Server) Run() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the span collector.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	err := s.http.Shutdown(ctx)
	s.tracer.Close()
	if err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

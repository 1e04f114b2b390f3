package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"emacross-core/internal/events"
	"emacross-core/internal/monitor"
	"emacross-core/internal/strategy"
	"emacross-core/pkg/db"
)

// SignalReader lists persisted signals.
type SignalReader interface {
	RecentSignals(ctx context.Context, pair string, limit int) ([]db.Signal, error)
}

// Server wires HTTP endpoints around the analysis engine.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	Engine    *strategy.Engine
	Signals   SignalReader
	Metrics   *monitor.SystemMetrics
	Limiter   *IPRateLimiter
	JWTSecret string
	Meta      SystemMeta
	log       zerolog.Logger

	// closed when Start begins shutting down; ends websocket streams
	closing   chan struct{}
	closeOnce sync.Once
}

// SystemMeta describes runtime status exposed by /health.
type SystemMeta struct {
	Pairs       []string `json:"pairs"`
	UseMockFeed bool     `json:"use_mock_feed"`
	Version     string   `json:"version"`
}

const defaultRequestTimeout = 30 * time.Second

// ServerOptions groups NewServer dependencies. Signals, Metrics and Bus may be nil.
// RequestTimeout bounds plain requests and defaults to 30s; websocket
// streams are not subject to it.
type ServerOptions struct {
	Bus            *events.Bus
	Engine         *strategy.Engine
	Signals        SignalReader
	Metrics        *monitor.SystemMetrics
	Logger         zerolog.Logger
	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
	RequestTimeout time.Duration
	Meta           SystemMeta
}

func NewServer(opts ServerOptions) *Server {
	r := gin.New()
	limiter := NewIPRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
	log := opts.Logger.With().Str("component", "api").Logger()
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())                      // Panic recovery (first)
	r.Use(RequestIDMiddleware())               // Request ID tracking
	r.Use(RequestLogger(log))                  // Request logging (after ID is set)
	r.Use(RateLimitMiddleware(limiter, log))   // Rate limiting
	r.Use(TimeoutMiddleware(timeout))          // Request timeout (skips websocket upgrades)
	r.Use(CORSMiddleware(opts.AllowedOrigins)) // CORS (last before routes)

	s := &Server{
		Router:    r,
		Bus:       opts.Bus,
		Engine:    opts.Engine,
		Signals:   opts.Signals,
		Metrics:   opts.Metrics,
		Limiter:   limiter,
		JWTSecret: opts.JWTSecret,
		Meta:      opts.Meta,
		log:       log,
		closing:   make(chan struct{}),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	api := s.Router.Group("/api")
	if s.JWTSecret != "" {
		api.Use(AuthMiddleware(s.JWTSecret))
	}
	{
		api.GET("/strategy", s.getStrategy)
		api.GET("/strategy/informative-pairs", s.getInformativePairs)
		api.POST("/analyze", s.analyze)
		api.GET("/pairs", s.listPairs)
		api.GET("/pairs/:pair/latest", s.getLatest)
		api.GET("/pairs/:pair/signals", s.getSignals)
		api.GET("/metrics", s.getMetrics)
		api.GET("/ws", s.websocket)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "meta": s.Meta})
}

// Start serves HTTP on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router}
	go s.Limiter.RunCleanup(ctx, 5*time.Minute)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		s.closeOnce.Do(func() { close(s.closing) })
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

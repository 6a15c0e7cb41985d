package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/notipushq/notipus/internal/activity"
	"github.com/notipushq/notipus/internal/config"
	"github.com/notipushq/notipus/internal/pipeline"
	"github.com/notipushq/notipus/internal/tenant"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// WebhookProcessor is the surface the webhook handler needs from the
// pipeline.
type WebhookProcessor interface {
	Process(ctx context.Context, token, provider string, payload []byte, headers http.Header) error
}

var _ WebhookProcessor = (*pipeline.Pipeline)(nil)

type Server struct {
	engine    *gin.Engine
	processor WebhookProcessor
	tenants   tenant.Repository
	recorder  *activity.Recorder
	log       *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Pipeline *pipeline.Pipeline
	Tenants  tenant.Repository
	Recorder *activity.Recorder
	Logger   *zap.Logger
}

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggerMiddleware(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:    p.Gin,
		processor: p.Pipeline,
		tenants:   p.Tenants,
		recorder:  p.Recorder,
		log:       p.Logger.Named("server"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// Providers differ on whether they keep a trailing slash when calling
	// back, so both spellings are routed.
	s.engine.POST("/webhook/customer/:token/:provider", s.handleWebhook)
	s.engine.POST("/webhook/customer/:token/:provider/", s.handleWebhook)

	api := s.engine.Group("/api/v1")
	api.GET("/activity/:token", s.handleActivity)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

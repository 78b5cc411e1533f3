package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	chargedomain "github.com/franqio/royaltyd/internal/charge/domain"
	"github.com/franqio/royaltyd/internal/config"
	"github.com/franqio/royaltyd/internal/reconciler"
	royaltydomain "github.com/franqio/royaltyd/internal/royalty/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	royaltySvc royaltydomain.Service
	chargeSvc  chargedomain.Service
	webhookSvc chargedomain.WebhookService
	reconciler *reconciler.Reconciler
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	RoyaltySvc royaltydomain.Service
	ChargeSvc  chargedomain.Service
	WebhookSvc chargedomain.WebhookService
	Reconciler *reconciler.Reconciler
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("server"),
		royaltySvc: p.RoyaltySvc,
		chargeSvc:  p.ChargeSvc,
		webhookSvc: p.WebhookSvc,
		reconciler: p.Reconciler,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()
	svc.registerInternalRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.POST("/royalties", s.CreateRoyalty)
	api.GET("/royalties", s.ListRoyalties)
	api.GET("/royalties/:id", s.GetRoyalty)
	api.DELETE("/royalties/:id", s.DeleteRoyalty)
	api.POST("/royalties/:id/charge", s.IssueCharge)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:gateway", s.HandleGatewayWebhook)
}

func (s *Server) registerInternalRoutes() {
	s.engine.POST("/internal/reconcile", s.TriggerReconcile)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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

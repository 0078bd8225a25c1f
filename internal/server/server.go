package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/natebag/MLG-BETA/internal/catalog"
	"github.com/natebag/MLG-BETA/internal/config"
	gatedomain "github.com/natebag/MLG-BETA/internal/gate/domain"
	"github.com/natebag/MLG-BETA/internal/gate/events"
	ledgerdomain "github.com/natebag/MLG-BETA/internal/ledger/domain"
	"github.com/natebag/MLG-BETA/internal/observability"
	obslogger "github.com/natebag/MLG-BETA/internal/observability/logger"
	obsmetrics "github.com/natebag/MLG-BETA/internal/observability/metrics"
	obstracing "github.com/natebag/MLG-BETA/internal/observability/tracing"
	"github.com/natebag/MLG-BETA/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(MetricsMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
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

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	gate       gatedomain.Engine
	catalog    *catalog.Catalog
	ledger     ledgerdomain.Store
	events     *events.Hub
	limiter    *ratelimit.AuthorizeLimiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	Gate       gatedomain.Engine
	Catalog    *catalog.Catalog
	Ledger     ledgerdomain.Store
	Events     *events.Hub                 `optional:"true"`
	Limiter    *ratelimit.AuthorizeLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics         `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        log.Named("http"),
		gate:       p.Gate,
		catalog:    p.Catalog,
		ledger:     p.Ledger,
		events:     p.Events,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerGateRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerGateRoutes() {
	s.engine.POST("/authorize", s.AuthorizeRateLimit(), s.Authorize)
	s.engine.GET("/quota/:principal/:actionKind", s.GetQuota)
	s.engine.GET("/ledger/:principal/:actionKind", s.ListLedger)
	s.engine.GET("/balance/:principal", s.GetBalance)
	s.engine.GET("/actions", s.ListActions)
	s.engine.GET("/events/:actionKind", s.StreamAuthorizationEvents)
	s.engine.GET("/incidents", s.ListIncidents)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/BantawigP/TBI-marian-sub001/internal/config"
	"github.com/BantawigP/TBI-marian-sub001/internal/database"
	"github.com/BantawigP/TBI-marian-sub001/internal/middleware"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/bridge"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/dispatch"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/identity"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/reverify"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/tokens"
	pkgcron "github.com/BantawigP/TBI-marian-sub001/internal/pkg/cron"
	pkgmail "github.com/BantawigP/TBI-marian-sub001/internal/pkg/mail"
	pkgredis "github.com/BantawigP/TBI-marian-sub001/internal/pkg/redis"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	logger *zap.Logger
	cancel context.CancelFunc
	sched  *pkgcron.Scheduler
}

// New initializes the application: config → DB → Redis → services → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(buildCORSConfig(cfg)))

	mailer := pkgmail.New(pkgmail.BuildMailConfig(cfg))
	provider := identity.NewAdminClient(cfg.Identity.URL, cfg.Identity.ServiceKey)

	tokenSvc := tokens.NewService(db)
	dispatchSvc := dispatch.NewService(db, tokenSvc, mailer, cfg, logger.Named("dispatch"))
	reverifySvc := reverify.NewService(db, dispatchSvc, logger.Named("reverify"))
	bridgeSvc := bridge.NewService(db, provider, logger.Named("bridge"))

	ctx, cancel := context.WithCancel(context.Background())

	sched := pkgcron.New()
	registerCronJobs(sched, db, tokenSvc, reverifySvc, logger)
	go sched.Start(ctx)

	app := &App{cfg: cfg, router: router, db: db, logger: logger, cancel: cancel, sched: sched}
	app.registerRoutes(rc, mailer, provider, tokenSvc, dispatchSvc, reverifySvc, bridgeSvc)

	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background goroutines.
func (a *App) Shutdown() { a.cancel() }

package app

import (
	"net/http"

	"github.com/BantawigP/TBI-marian-sub001/internal/middleware"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/alumni"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/bridge"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/dispatch"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/events"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/grant"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/health"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/identity"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/reverify"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/team"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/tokens"
	pkgmail "github.com/BantawigP/TBI-marian-sub001/internal/pkg/mail"
	pkgredis "github.com/BantawigP/TBI-marian-sub001/internal/pkg/redis"
	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(
	rc *pkgredis.Client,
	mailer *pkgmail.Sender,
	provider identity.Provider,
	tokenSvc *tokens.Service,
	dispatchSvc *dispatch.Service,
	reverifySvc *reverify.Service,
	bridgeSvc *bridge.Service,
) {
	rdb := rc.Raw()

	api := a.router.Group("/api/v1")
	api.Use(middleware.RateLimit(rdb))
	api.Use(middleware.Idempotence(rdb))

	authMW := middleware.ProviderAuth(bridgeSvc)

	health.RegisterRoutes(api, a.db, rc, a.sched, mailer, authMW)
	tokens.NewHandler(tokenSvc).RegisterRoutes(api, authMW)
	bridge.NewHandler(bridgeSvc).RegisterRoutes(api, authMW)
	reverify.NewHandler(reverifySvc).RegisterRoutes(api, authMW)

	alumni.NewHandler(alumni.NewService(a.db), dispatchSvc).RegisterRoutes(api, authMW)
	team.NewHandler(team.NewService(a.db)).RegisterRoutes(api, authMW)

	grantSvc := grant.NewService(a.db, provider, mailer, a.cfg, a.logger.Named("grant"))
	grant.NewHandler(grantSvc).RegisterRoutes(api, authMW)

	eventsSvc := events.NewService(a.db, tokenSvc, mailer, a.cfg, a.logger.Named("events"))
	events.NewHandler(eventsSvc).RegisterRoutes(api, authMW)

	a.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"ok": 0, "code": http.StatusNotFound, "message": "not found"})
	})
	a.router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"ok": 0, "code": http.StatusMethodNotAllowed, "message": "method not allowed"})
	})
}

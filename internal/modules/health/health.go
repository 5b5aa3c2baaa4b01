package health

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BantawigP/TBI-marian-sub001/internal/middleware"
	"github.com/BantawigP/TBI-marian-sub001/internal/models"
	"github.com/BantawigP/TBI-marian-sub001/internal/pkg/cron"
	pkgmail "github.com/BantawigP/TBI-marian-sub001/internal/pkg/mail"
	"github.com/BantawigP/TBI-marian-sub001/internal/pkg/nativelog"
	pkgredis "github.com/BantawigP/TBI-marian-sub001/internal/pkg/redis"
	"github.com/BantawigP/TBI-marian-sub001/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type logItem struct {
	Size     int64  `json:"size"`
	Filename string `json:"filename"`
	Created  int64  `json:"created"`
}

func RegisterRoutes(rg *gin.RouterGroup, db *gorm.DB, rdb *pkgredis.Client, sched *cron.Scheduler, mailer *pkgmail.Sender, authMW gin.HandlerFunc) {
	rg.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		dbOK := err == nil && sqlDB.Ping() == nil
		redisOK := rdb.Raw().Ping(c.Request.Context()).Err() == nil

		status := "ok"
		code := http.StatusOK
		if !dbOK || !redisOK {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":   status,
			"database": dbOK,
			"redis":    redisOK,
		})
	})

	admin := rg.Group("/health", authMW, middleware.RequireRole(models.RoleAdmin))

	cronGroup := admin.Group("/cron")
	{
		cronGroup.GET("", func(c *gin.Context) {
			items := sched.List()
			byName := make(map[string]cron.ListItem, len(items))
			for _, item := range items {
				byName[item.Name] = item
			}
			response.OK(c, byName)
		})

		cronGroup.POST("/run/:name", func(c *gin.Context) {
			if err := sched.Run(c.Request.Context(), c.Param("name")); err != nil {
				response.NotFoundMsg(c, err.Error())
				return
			}
			response.OK(c, gin.H{"message": "job triggered"})
		})
	}

	admin.GET("/email/test", func(c *gin.Context) {
		to := middleware.CurrentMemberEmail(c)
		if to == "" {
			response.UnprocessableEntity(c, "no email for current member")
			return
		}
		err := mailer.Send(pkgmail.Message{
			To:      []string{to},
			Subject: "Mail configuration test",
			HTML:    "<h1>Mail works.</h1><p>If you received this, the mail provider is configured correctly.</p>",
		})
		if err != nil {
			response.UnprocessableEntity(c, err.Error())
			return
		}
		response.OK(c, gin.H{"message": "test email sent", "to": to})
	})

	admin.GET("/logs", func(c *gin.Context) {
		dir := nativelog.ResolveDir()
		entries, err := os.ReadDir(dir)
		if err != nil {
			response.OK(c, []logItem{})
			return
		}

		items := make([]logItem, 0, len(entries))
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			items = append(items, logItem{
				Size:     info.Size(),
				Filename: entry.Name(),
				Created:  info.ModTime().Unix(),
			})
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Created > items[j].Created })
		response.OK(c, items)
	})

	admin.GET("/logs/:filename", func(c *gin.Context) {
		name := filepath.Base(c.Param("filename"))
		if !strings.HasSuffix(name, ".log") {
			response.BadRequest(c, "not a log file")
			return
		}
		path := filepath.Join(nativelog.ResolveDir(), name)
		if _, err := os.Stat(path); err != nil {
			response.NotFound(c)
			return
		}
		c.File(path)
	})
}

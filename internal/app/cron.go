package app

import (
	"context"
	"time"

	"github.com/BantawigP/TBI-marian-sub001/internal/modules/reverify"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/tokens"
	pkgcron "github.com/BantawigP/TBI-marian-sub001/internal/pkg/cron"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tokenRetention = 30 * 24 * time.Hour

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, db *gorm.DB, tokenSvc *tokens.Service, reverifySvc *reverify.Service, logger *zap.Logger) {
	cronLogger := logger.Named("cron")

	sched.Register(pkgcron.Job{
		Name:        "reverification_sweep",
		Description: "escalate re-verification campaigns for unverified alumni",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			report, err := reverifySvc.Sweep(ctx, false)
			if err != nil {
				cronLogger.Warn("sweep failed", zap.Error(err))
				return err
			}
			cronLogger.Info("sweep done",
				zap.Int("scanned", report.Scanned),
				zap.Int("sent", report.Sent),
				zap.Int("failures", report.Failures))
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "cleanup_expired_tokens",
		Description: "delete token rows expired for more than 30 days",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			deleted, err := tokenSvc.CleanupExpired(tokenRetention)
			if err != nil {
				cronLogger.Warn("token cleanup failed", zap.Error(err))
				return err
			}
			cronLogger.Info("token cleanup done", zap.Int64("deleted", deleted))
			return nil
		},
	})
}

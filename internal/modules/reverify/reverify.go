package reverify

import (
	"context"
	"errors"
	"time"

	"github.com/BantawigP/TBI-marian-sub001/internal/middleware"
	"github.com/BantawigP/TBI-marian-sub001/internal/models"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/dispatch"
	"github.com/BantawigP/TBI-marian-sub001/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Escalation intervals in months since first contact. A contact gets at most
// one campaign email per sweep: the highest interval already reached that has
// no log entry yet.
var escalationIntervals = []int{12, 6, 3, 1}

const hoursPerMonth = 30.44 * 24

// Report summarizes one sweep run.
type Report struct {
	StartedAt          time.Time `json:"started_at"`
	DryRun             bool      `json:"dry_run"`
	Scanned            int       `json:"scanned"`
	Sent               int       `json:"sent"`
	UpToDate           int       `json:"up_to_date"`
	SkippedNoAnchor    int       `json:"skipped_no_anchor"`
	AlreadyClaimed     int       `json:"already_claimed"`
	Failures           int       `json:"failures"`
	InactiveCandidates []string  `json:"inactive_candidates"`
}

// CampaignSender is the slice of the dispatcher the sweep needs.
type CampaignSender interface {
	Send(email, firstName, campaignType string, intervalMonths int) error
}

// Service walks every unverified contact and escalates the re-verification
// campaign according to time elapsed since first contact.
type Service struct {
	db     *gorm.DB
	sender CampaignSender
	log    *zap.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, sender CampaignSender, log *zap.Logger) *Service {
	return &Service{db: db, sender: sender, log: log, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Sweep runs one escalation pass. With dryRun set it computes the same
// decisions but sends nothing. Individual failures are counted, not fatal:
// the sweep always finishes the whole contact list.
func (s *Service) Sweep(ctx context.Context, dryRun bool) (*Report, error) {
	now := s.now()
	report := &Report{StartedAt: now, DryRun: dryRun, InactiveCandidates: []string{}}

	var contacts []models.AlumniModel
	if err := s.db.WithContext(ctx).Where("verified = ?", false).Find(&contacts).Error; err != nil {
		return nil, err
	}
	report.Scanned = len(contacts)

	anchors, err := s.loadAnchors(ctx)
	if err != nil {
		return nil, err
	}
	sentSlots, fallbacks, err := s.loadCampaignLogs(ctx)
	if err != nil {
		return nil, err
	}

	for i := range contacts {
		contact := &contacts[i]

		anchor, ok := anchors[contact.Email]
		if !ok {
			// A contact emailed before anchors existed still has log rows;
			// the earliest successful send stands in for the anchor.
			anchor, ok = fallbacks[contact.Email]
		}
		if !ok {
			report.SkippedNoAnchor++
			continue
		}

		elapsedMonths := now.Sub(anchor).Hours() / hoursPerMonth
		slots := sentSlots[contact.Email]

		due := 0
		for _, interval := range escalationIntervals {
			if elapsedMonths >= float64(interval) && !slots[interval] {
				due = interval
				break
			}
		}

		if due == 0 {
			if slots[12] {
				report.InactiveCandidates = append(report.InactiveCandidates, contact.Email)
			} else {
				report.UpToDate++
			}
			continue
		}

		if dryRun {
			report.Sent++
			continue
		}

		err := s.sender.Send(contact.Email, contact.FirstName, models.CampaignRapport, due)
		switch {
		case err == nil:
			report.Sent++
		case errors.Is(err, dispatch.ErrAlreadySent):
			report.AlreadyClaimed++
		default:
			report.Failures++
			s.log.Warn("sweep send failed",
				zap.String("email", contact.Email),
				zap.Int("interval", due),
				zap.Error(err))
		}
	}

	s.log.Info("re-verification sweep finished",
		zap.Bool("dry_run", dryRun),
		zap.Int("scanned", report.Scanned),
		zap.Int("sent", report.Sent),
		zap.Int("failures", report.Failures),
		zap.Int("inactive_candidates", len(report.InactiveCandidates)))
	return report, nil
}

func (s *Service) loadAnchors(ctx context.Context) (map[string]time.Time, error) {
	var rows []models.ReverificationAnchorModel
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	anchors := make(map[string]time.Time, len(rows))
	for i := range rows {
		anchors[rows[i].Email] = rows[i].FirstSentAt
	}
	return anchors, nil
}

// loadCampaignLogs returns the claimed rapport slots per email plus the
// earliest successful send per email, used as the anchor fallback.
func (s *Service) loadCampaignLogs(ctx context.Context) (map[string]map[int]bool, map[string]time.Time, error) {
	var rows []models.CampaignLogModel
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	slots := make(map[string]map[int]bool)
	fallbacks := make(map[string]time.Time)
	for i := range rows {
		row := &rows[i]
		// A failed attempt leaves its slot due, so the next sweep retries it.
		if row.CampaignType == models.CampaignRapport && row.Status != dispatch.StatusFailed {
			if slots[row.Email] == nil {
				slots[row.Email] = make(map[int]bool)
			}
			slots[row.Email][row.IntervalMonths] = true
		}
		if row.Status == dispatch.StatusSent {
			if first, ok := fallbacks[row.Email]; !ok || row.SentAt.Before(first) {
				fallbacks[row.Email] = row.SentAt
			}
		}
	}
	return slots, fallbacks, nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/reverification", authMW)
	g.POST("/sweep", middleware.RequireRole(models.RoleAdmin, models.RoleManager), h.sweep)
}

// POST /reverification/sweep?dry_run=true
func (h *Handler) sweep(c *gin.Context) {
	dryRun := c.Query("dry_run") == "true"
	report, err := h.svc.Sweep(c.Request.Context(), dryRun)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, report)
}

package dispatch

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BantawigP/TBI-marian-sub001/internal/config"
	"github.com/BantawigP/TBI-marian-sub001/internal/models"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/tokens"
	"github.com/BantawigP/TBI-marian-sub001/internal/pkg/mail"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Campaign log statuses.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// ErrAlreadySent means the (email, interval, campaign) slot was already
// claimed by an earlier send. Sweep re-runs hit this instead of double-sending.
var ErrAlreadySent = errors.New("campaign already sent for this interval")

// Mailer is the slice of the mail sender the dispatcher needs.
type Mailer interface {
	SendVerification(to string, data mail.VerifyData) error
	SendRapport(to string, intervalMonths int, data mail.RapportData) error
}

// Service sends verification campaign emails and keeps the audit trail: the
// write-once anchor pinning first contact, and one log row per campaign slot.
type Service struct {
	db     *gorm.DB
	tokens *tokens.Service
	mailer Mailer
	cfg    *config.AppConfig
	log    *zap.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, tokenSvc *tokens.Service, mailer Mailer, cfg *config.AppConfig, log *zap.Logger) *Service {
	return &Service{db: db, tokens: tokenSvc, mailer: mailer, cfg: cfg, log: log, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SendInitial sends the first verification email to a contact. Interval 0 is
// the initial campaign's slot in the log.
func (s *Service) SendInitial(email, firstName string) error {
	return s.Send(email, firstName, models.CampaignInitial, 0)
}

// Send dispatches one campaign email. The log row is claimed before sending,
// so a concurrent or repeated sweep cannot send the same slot twice; the
// loser gets ErrAlreadySent. A slot whose last attempt failed can be
// re-claimed, so provider hiccups never block an interval for good.
func (s *Service) Send(email, firstName, campaignType string, intervalMonths int) error {
	now := s.now()

	if err := s.claimSlot(email, campaignType, intervalMonths, now); err != nil {
		return err
	}

	sendErr := s.deliver(email, firstName, campaignType, intervalMonths)

	status := StatusSent
	errMsg := ""
	if sendErr != nil {
		status = StatusFailed
		errMsg = sendErr.Error()
	}
	if err := s.db.Model(&models.CampaignLogModel{}).
		Where("email = ? AND interval_months = ? AND campaign_type = ?", email, intervalMonths, campaignType).
		Updates(map[string]interface{}{"status": status, "error": errMsg}).Error; err != nil {
		return err
	}

	if sendErr != nil {
		s.log.Warn("campaign send failed",
			zap.String("email", email),
			zap.String("campaign", campaignType),
			zap.Int("interval", intervalMonths),
			zap.Error(sendErr))
		return sendErr
	}

	// Pin the anchor on the first successful send only. The insert is
	// ignore-on-conflict, so the origin timestamp never moves.
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&models.ReverificationAnchorModel{Email: email, FirstSentAt: now}).Error
}

// claimSlot takes ownership of the (email, interval, campaign) log row. A
// fresh slot is inserted as pending; a slot in failed state is re-claimed
// with a conditional update, which keeps the one-winner guarantee under
// concurrent retries. Slots in pending or sent state stay claimed.
func (s *Service) claimSlot(email, campaignType string, intervalMonths int, now time.Time) error {
	logRow := models.CampaignLogModel{
		Email:          email,
		IntervalMonths: intervalMonths,
		CampaignType:   campaignType,
		SentAt:         now,
		Status:         StatusPending,
	}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}, {Name: "interval_months"}, {Name: "campaign_type"}},
		DoNothing: true,
	}).Create(&logRow)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	reclaim := s.db.Model(&models.CampaignLogModel{}).
		Where("email = ? AND interval_months = ? AND campaign_type = ? AND status = ?",
			email, intervalMonths, campaignType, StatusFailed).
		Updates(map[string]interface{}{"status": StatusPending, "sent_at": now, "error": ""})
	if reclaim.Error != nil {
		return reclaim.Error
	}
	if reclaim.RowsAffected == 0 {
		return ErrAlreadySent
	}
	return nil
}

func (s *Service) deliver(email, firstName, campaignType string, intervalMonths int) error {
	secret, err := s.tokens.IssueVerification(email, s.cfg.Tokens.VerifyTTL)
	if err != nil {
		return err
	}
	verifyURL := s.VerifyURL(secret)
	ttlHours := int(s.cfg.Tokens.VerifyTTL.Hours())

	switch campaignType {
	case models.CampaignInitial:
		return s.mailer.SendVerification(email, mail.VerifyData{
			BrandName: s.cfg.BrandName,
			FirstName: firstName,
			VerifyURL: verifyURL,
			TTLHours:  ttlHours,
		})
	case models.CampaignRapport:
		return s.mailer.SendRapport(email, intervalMonths, mail.RapportData{
			BrandName: s.cfg.BrandName,
			FirstName: firstName,
			VerifyURL: verifyURL,
			TTLHours:  ttlHours,
		})
	default:
		return fmt.Errorf("unknown campaign type %q", campaignType)
	}
}

// VerifyURL builds the public redemption link for a token secret.
func (s *Service) VerifyURL(secret string) string {
	base := strings.TrimRight(s.cfg.URL.ServerURL, "/")
	return fmt.Sprintf("%s/api/v1/verification/verify?token=%s", base, url.QueryEscape(secret))
}

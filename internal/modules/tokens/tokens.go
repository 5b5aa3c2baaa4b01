package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BantawigP/TBI-marian-sub001/internal/models"
	"github.com/BantawigP/TBI-marian-sub001/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const secretBytes = 32

// ErrInvalidToken is the single failure answer for every redemption problem.
// Unknown, expired and already-used tokens are indistinguishable to callers.
var ErrInvalidToken = errors.New("invalid or expired token")

// Service is the token ledger. Only digests are stored; the plaintext secret
// exists in the issuance return value and in the email link, nowhere else.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// generateSecret mints a fresh secret and its stored digest.
func generateSecret() (secret, digest string, err error) {
	buf := make([]byte, secretBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}
	secret = base64.RawURLEncoding.EncodeToString(buf)
	return secret, HashSecret(secret), nil
}

// HashSecret returns the hex SHA-256 digest under which a secret is stored.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// IssueVerification mints a single-use email-verification token and returns
// the plaintext secret for embedding in the email link.
func (s *Service) IssueVerification(email string, ttl time.Duration) (string, error) {
	secret, digest, err := generateSecret()
	if err != nil {
		return "", err
	}
	row := models.VerificationTokenModel{
		Email:     email,
		TokenHash: digest,
		Purpose:   models.TokenPurposeEmailVerify,
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return "", err
	}
	return secret, nil
}

// IssueRSVP mints an event-invite token. Unlike verification tokens these are
// redeemed repeatedly: the invitee may change their answer until expiry.
func (s *Service) IssueRSVP(eventID, email string, alumniID *string, ttl time.Duration) (string, error) {
	secret, digest, err := generateSecret()
	if err != nil {
		return "", err
	}
	row := models.EventInviteTokenModel{
		EventID:   eventID,
		Email:     email,
		AlumniID:  alumniID,
		TokenHash: digest,
		ExpiresAt: s.now().Add(ttl),
		Status:    models.RSVPStatusPending,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return "", err
	}
	return secret, nil
}

// RedeemVerification consumes a verification token exactly once and returns
// the verified email. The used_at flip is a single conditional UPDATE, so two
// concurrent redemptions of the same secret cannot both win.
func (s *Service) RedeemVerification(secret string) (string, error) {
	digest := HashSecret(secret)
	now := s.now()

	result := s.db.Model(&models.VerificationTokenModel{}).
		Where("token_hash = ? AND purpose = ? AND used_at IS NULL AND expires_at > ?",
			digest, models.TokenPurposeEmailVerify, now).
		Update("used_at", now)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", ErrInvalidToken
	}

	var row models.VerificationTokenModel
	if err := s.db.Where("token_hash = ?", digest).First(&row).Error; err != nil {
		return "", err
	}

	// Redemption is what flips the alumni contact to verified.
	err := s.db.Model(&models.AlumniModel{}).
		Where("email = ? AND verified = ?", row.Email, false).
		Updates(map[string]interface{}{"verified": true, "verified_at": now}).Error
	if err != nil {
		return "", err
	}
	return row.Email, nil
}

// RedeemRSVP records an RSVP answer. Last write wins; answers can change any
// number of times while the token is alive.
func (s *Service) RedeemRSVP(secret, status string) (*models.EventInviteTokenModel, error) {
	if status != models.RSVPStatusGoing && status != models.RSVPStatusNotGoing {
		return nil, fmt.Errorf("unknown rsvp status %q", status)
	}

	digest := HashSecret(secret)
	now := s.now()

	var row models.EventInviteTokenModel
	err := s.db.Where("token_hash = ? AND expires_at > ?", digest, now).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	err = s.db.Model(&row).
		Updates(map[string]interface{}{"status": status, "responded_at": now}).Error
	if err != nil {
		return nil, err
	}
	row.Status = status
	row.RespondedAt = &now
	return &row, nil
}

// CleanupExpired hard-deletes token rows whose expiry passed more than the
// retention window ago. Run from the scheduler.
func (s *Service) CleanupExpired(retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)
	var total int64

	result := s.db.Unscoped().
		Where("expires_at < ?", cutoff).
		Delete(&models.VerificationTokenModel{})
	if result.Error != nil {
		return total, result.Error
	}
	total += result.RowsAffected

	result = s.db.Unscoped().
		Where("expires_at < ?", cutoff).
		Delete(&models.EventInviteTokenModel{})
	if result.Error != nil {
		return total, result.Error
	}
	return total + result.RowsAffected, nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.GET("/verification/verify", h.verify)
	rg.GET("/rsvp", h.rsvp)
}

// GET /verification/verify?token=...
func (h *Handler) verify(c *gin.Context) {
	secret := c.Query("token")
	if secret == "" {
		response.BadRequest(c, "token is required")
		return
	}
	email, err := h.svc.RedeemVerification(secret)
	if err != nil {
		// One answer for every failure mode, so the endpoint leaks nothing
		// about which tokens exist.
		response.BadRequest(c, ErrInvalidToken.Error())
		return
	}
	response.OK(c, gin.H{"email": email, "verified": true})
}

const rsvpPage = `<!DOCTYPE html>
<html>
<body style="font-family:sans-serif;background:#f5f5f5;padding:40px;text-align:center">
<div style="max-width:480px;margin:0 auto;background:#fff;border-radius:8px;padding:32px">
  <h2 style="color:#333">%s</h2>
  <p style="color:#666">%s</p>
</div>
</body>
</html>`

// GET /rsvp?token=...&status=going|not_going
func (h *Handler) rsvp(c *gin.Context) {
	secret := c.Query("token")
	status := c.Query("status")

	_, err := h.svc.RedeemRSVP(secret, status)
	if err != nil {
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8",
			[]byte(fmt.Sprintf(rsvpPage, "Link not valid",
				"This invitation link is invalid or has expired. Please contact the program team for a new one.")))
		return
	}

	title, body := "See you there!", "Your RSVP has been recorded. You can change your answer any time using the links in your invitation email."
	if status == models.RSVPStatusNotGoing {
		title, body = "Sorry you can't make it", "We have noted you are not attending. If plans change, use the links in your invitation email."
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8",
		[]byte(fmt.Sprintf(rsvpPage, title, body)))
}

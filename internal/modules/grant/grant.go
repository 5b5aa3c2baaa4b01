package grant

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BantawigP/TBI-marian-sub001/internal/config"
	"github.com/BantawigP/TBI-marian-sub001/internal/middleware"
	"github.com/BantawigP/TBI-marian-sub001/internal/models"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/identity"
	"github.com/BantawigP/TBI-marian-sub001/internal/pkg/mail"
	"github.com/BantawigP/TBI-marian-sub001/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Delivery outcomes of the grant email.
const (
	DeliverySent            = "sent"
	DeliveryFailedPermanent = "failed_permanent"
	DeliveryFailedTransient = "failed_transient"
)

var (
	ErrMemberNotFound = errors.New("team member not found")
	ErrEmailMismatch  = errors.New("email does not match the team member")
	ErrInvalidRole    = errors.New("role is not grantable")
)

// Mailer is the slice of the mail sender the grant workflow needs.
type Mailer interface {
	SendAccessInvite(to string, data mail.AccessInviteData) error
}

// Result is the outcome of one grant. ActionLink and ClaimURL are only
// populated when delivery failed, so the admin can hand them over manually.
type Result struct {
	Member     *models.TeamMemberModel `json:"member"`
	Delivery   string                  `json:"delivery"`
	MailError  string                  `json:"mail_error,omitempty"`
	ActionLink string                  `json:"action_link,omitempty"`
	ClaimURL   string                  `json:"claim_url,omitempty"`
}

// Service provisions portal access for team members. The flow is tolerant of
// mail failure: once the identity account exists and a sign-in link was
// minted, the grant is recorded no matter what the mail provider does.
type Service struct {
	db       *gorm.DB
	provider identity.Provider
	mailer   Mailer
	cfg      *config.AppConfig
	log      *zap.Logger
	now      func() time.Time
}

func NewService(db *gorm.DB, provider identity.Provider, mailer Mailer, cfg *config.AppConfig, log *zap.Logger) *Service {
	return &Service{db: db, provider: provider, mailer: mailer, cfg: cfg, log: log, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Grant gives the member portal access under the given role. The caller must
// restate the member's email; a mismatch aborts before anything is
// provisioned, so a stale admin form cannot grant access to the wrong person.
func (s *Service) Grant(ctx context.Context, memberID, email, role string) (*Result, error) {
	var member models.TeamMemberModel
	err := s.db.WithContext(ctx).Where("id = ?", memberID).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	if !strings.EqualFold(email, member.Email) {
		return nil, ErrEmailMismatch
	}
	if !isGrantableRole(role) {
		return nil, ErrInvalidRole
	}

	user, err := s.provisionUser(ctx, member.Email)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(user.Email, member.Email) {
		return nil, fmt.Errorf("provider account email %q does not match member", user.Email)
	}

	invite := models.AccessInviteModel{
		TeamMemberID: member.ID,
		Email:        member.Email,
		RoleID:       role,
		Token:        uuid.NewString(),
		ExpiresAt:    s.now().Add(s.cfg.Tokens.InviteTTL),
	}
	if err := s.db.WithContext(ctx).Create(&invite).Error; err != nil {
		return nil, err
	}

	claimURL := s.claimURL(invite.Token)
	actionLink, err := s.provider.GenerateSignInLink(ctx, member.Email, claimURL)
	if err != nil {
		return nil, err
	}

	// Record the grant before attempting delivery. A broken mail setup must
	// not leave the member half-provisioned.
	updates := map[string]interface{}{
		"role":       role,
		"has_access": true,
	}
	if member.UserID == nil {
		updates["user_id"] = user.ID
	}
	if err := s.db.WithContext(ctx).Model(&member).Updates(updates).Error; err != nil {
		return nil, err
	}
	member.Role = role
	member.HasAccess = true
	if member.UserID == nil {
		member.UserID = &user.ID
	}

	result := &Result{Member: &member, Delivery: DeliverySent}

	sendErr := s.mailer.SendAccessInvite(member.Email, mail.AccessInviteData{
		BrandName: s.cfg.BrandName,
		Name:      member.Name,
		Role:      role,
		ActionURL: actionLink,
	})
	if sendErr != nil {
		result.MailError = sendErr.Error()
		result.ActionLink = actionLink
		result.ClaimURL = claimURL
		result.Delivery = DeliveryFailedTransient
		if se, ok := mail.AsSendError(sendErr); ok && se.Permanent() {
			result.Delivery = DeliveryFailedPermanent
		}
		s.log.Warn("grant email not delivered",
			zap.String("member_id", member.ID),
			zap.String("delivery", result.Delivery),
			zap.Error(sendErr))
	}

	return result, nil
}

// provisionUser reuses the existing provider account for the email or creates
// a fresh pre-confirmed one. A reused account that was never confirmed gets
// confirmed here, otherwise the sign-in link would bounce the invitee.
func (s *Service) provisionUser(ctx context.Context, email string) (*identity.User, error) {
	user, err := s.provider.FindUserByEmail(ctx, email)
	if errors.Is(err, identity.ErrNotFound) {
		return s.provider.CreateUser(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	if !user.Confirmed {
		if err := s.provider.ConfirmUser(ctx, user.ID); err != nil {
			return nil, err
		}
		user.Confirmed = true
	}
	return user, nil
}

func (s *Service) claimURL(inviteToken string) string {
	base := strings.TrimRight(s.cfg.URL.WebURL, "/")
	return fmt.Sprintf("%s/claim?invite=%s", base, url.QueryEscape(inviteToken))
}

func isGrantableRole(role string) bool {
	for _, r := range models.GrantableRoles {
		if r == role {
			return true
		}
	}
	return false
}

type GrantDTO struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required"`
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/team", authMW)
	g.POST("/:id/grant", middleware.RequireRole(models.RoleAdmin), h.grant)
}

// POST /team/:id/grant
func (h *Handler) grant(c *gin.Context) {
	var dto GrantDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.svc.Grant(c.Request.Context(), c.Param("id"), dto.Email, dto.Role)
	if err != nil {
		switch {
		case errors.Is(err, ErrMemberNotFound):
			response.NotFound(c)
		case errors.Is(err, ErrEmailMismatch), errors.Is(err, ErrInvalidRole):
			response.UnprocessableEntity(c, err.Error())
		case errors.Is(err, identity.ErrProvider):
			response.BadGateway(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.OK(c, result)
}

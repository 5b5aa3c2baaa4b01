package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/BantawigP/TBI-marian-sub001/internal/middleware"
	"github.com/BantawigP/TBI-marian-sub001/internal/models"
	"github.com/BantawigP/TBI-marian-sub001/internal/modules/identity"
	"github.com/BantawigP/TBI-marian-sub001/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrIdentityMismatch means the member row is already linked to a different
// provider account. The request is denied rather than relinked.
var ErrIdentityMismatch = errors.New("member linked to a different identity")

// Service resolves bearer tokens to team members. The token is decoded only
// to obtain a subject id; the privileged AdminGetUser lookup is what decides
// whether the identity is real. Any failure on that path denies access.
type Service struct {
	db       *gorm.DB
	provider identity.Provider
	log      *zap.Logger
}

func NewService(db *gorm.DB, provider identity.Provider, log *zap.Logger) *Service {
	return &Service{db: db, provider: provider, log: log}
}

// Authenticate implements middleware.Authenticator. On the first successful
// authentication of a member it links the provider user id to the member row.
// The link is write-once; has_access is never touched here.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*models.TeamMemberModel, error) {
	subject, err := identity.SubjectFromToken(rawToken)
	if err != nil {
		return nil, err
	}

	user, err := s.provider.AdminGetUser(ctx, subject)
	if err != nil {
		// Provider outages deny access; guessing would turn an unverified
		// token into a credential.
		return nil, err
	}

	var member models.TeamMemberModel
	err = s.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?)", user.Email).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, middleware.ErrNotTeamMember
		}
		return nil, err
	}

	if !member.HasAccess {
		return nil, middleware.ErrNotTeamMember
	}

	if member.UserID == nil {
		err = s.db.WithContext(ctx).Model(&member).Update("user_id", user.ID).Error
		if err != nil {
			return nil, err
		}
		member.UserID = &user.ID
		s.log.Info("linked team member to identity",
			zap.String("member_id", member.ID),
			zap.String("user_id", user.ID))
	} else if *member.UserID != user.ID {
		return nil, ErrIdentityMismatch
	}

	return &member, nil
}

type ClaimDTO struct {
	Token string `json:"token"`
}

type memberResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	HasAccess bool      `json:"has_access"`
	UserID    *string   `json:"user_id,omitempty"`
	Created   time.Time `json:"created"`
}

func toResponse(m *models.TeamMemberModel) memberResponse {
	return memberResponse{
		ID: m.ID, Name: m.Name, Email: m.Email, Role: m.Role,
		HasAccess: m.HasAccess, UserID: m.UserID, Created: m.CreatedAt,
	}
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/team", authMW)
	g.POST("/claim", h.claim)
	g.GET("/me", h.me)
}

// POST /team/claim
//
// Called by the portal after the invitee lands from the magic link. The
// linking itself already happened in the auth middleware; the optional invite
// token just lets the portal confirm which invite was followed.
func (h *Handler) claim(c *gin.Context) {
	member, err := h.currentMember(c)
	if err != nil {
		response.Unauthorized(c)
		return
	}

	var dto ClaimDTO
	_ = c.ShouldBindJSON(&dto)

	if dto.Token != "" {
		var invite models.AccessInviteModel
		err := h.svc.db.Where("token = ? AND expires_at > ?", dto.Token, time.Now()).
			First(&invite).Error
		if err != nil {
			response.BadRequest(c, "invalid or expired invite")
			return
		}
		if invite.TeamMemberID != member.ID {
			response.Forbidden(c)
			return
		}
	}

	response.OK(c, toResponse(member))
}

// GET /team/me
func (h *Handler) me(c *gin.Context) {
	member, err := h.currentMember(c)
	if err != nil {
		response.Unauthorized(c)
		return
	}
	response.OK(c, toResponse(member))
}

func (h *Handler) currentMember(c *gin.Context) (*models.TeamMemberModel, error) {
	id := middleware.CurrentMemberID(c)
	if id == "" {
		return nil, errors.New("not authenticated")
	}
	var member models.TeamMemberModel
	if err := h.svc.db.Where("id = ?", id).First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

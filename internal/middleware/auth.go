package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/BantawigP/TBI-marian-sub001/internal/models"
	"github.com/BantawigP/TBI-marian-sub001/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

const (
	ContextKeyMemberID    = "member_id"
	ContextKeyMemberRole  = "member_role"
	ContextKeyMemberEmail = "member_email"
	ContextKeyUserID      = "user_id"
)

// ErrNotTeamMember is returned by an Authenticator when the identity is valid
// but does not belong to any team member.
var ErrNotTeamMember = errors.New("identity is not a team member")

// Authenticator resolves a raw bearer token to a linked team member. The
// resolution is privileged: the token is never trusted locally, the identity
// provider is the source of truth.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*models.TeamMemberModel, error)
}

// ProviderAuth enforces identity-provider authentication. Any failure along
// the chain (missing token, unknown identity, provider outage) denies access.
func ProviderAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Unauthorized(c)
			return
		}

		member, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, ErrNotTeamMember) {
				response.Forbidden(c)
				return
			}
			response.Unauthorized(c)
			return
		}

		c.Set(ContextKeyMemberID, member.ID)
		c.Set(ContextKeyMemberRole, member.Role)
		c.Set(ContextKeyMemberEmail, member.Email)
		if member.UserID != nil {
			c.Set(ContextKeyUserID, *member.UserID)
		}
		c.Next()
	}
}

// RequireRole gates a route group to the given roles. Must run after ProviderAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CurrentRole(c)
		for _, r := range roles {
			if strings.EqualFold(role, r) {
				c.Next()
				return
			}
		}
		response.Forbidden(c)
	}
}

// CurrentMemberID extracts the authenticated team member's id from context.
func CurrentMemberID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyMemberID)
	id, _ := v.(string)
	return id
}

// CurrentRole extracts the authenticated team member's role from context.
func CurrentRole(c *gin.Context) string {
	v, _ := c.Get(ContextKeyMemberRole)
	role, _ := v.(string)
	return role
}

// CurrentMemberEmail extracts the authenticated team member's email from context.
func CurrentMemberEmail(c *gin.Context) string {
	v, _ := c.Get(ContextKeyMemberEmail)
	email, _ := v.(string)
	return email
}

// CurrentUserID extracts the linked identity-provider user id from context.
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(string)
	return id
}

// IsAuthenticated reports whether the request carries a resolved team member.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentMemberID(c) != ""
}

func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth != "" {
		return NormalizeToken(auth)
	}
	return NormalizeToken(c.Query("token"))
}

// NormalizeToken trims spaces and strips an optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}

package models

import "time"

// Team member roles grantable through the access workflow.
const (
	RoleAdmin   = "Admin"
	RoleManager = "Manager"
	RoleMember  = "Member"
)

// GrantableRoles lists roles the access workflow may assign.
var GrantableRoles = []string{RoleAdmin, RoleManager, RoleMember}

// TeamMemberModel is a program team member. UserID is the linked
// identity-provider account id; it is written exactly once by the linking
// bridge. HasAccess is owned exclusively by the grant workflow.
type TeamMemberModel struct {
	Base
	Name      string  `json:"name"       gorm:"not null"`
	Email     string  `json:"email"      gorm:"uniqueIndex;not null"`
	Role      string  `json:"role"       gorm:"type:varchar(16);default:Member;not null"`
	HasAccess bool    `json:"has_access" gorm:"default:false;not null"`
	UserID    *string `json:"user_id"    gorm:"type:char(36);index"`
}

func (TeamMemberModel) TableName() string { return "team_members" }

// AccessInviteModel is one grant attempt. The row itself is not a security
// boundary (the provider magic link is); it exists so the claim redirect can
// carry an opaque token back to us.
type AccessInviteModel struct {
	Base
	TeamMemberID string    `json:"team_member_id" gorm:"type:char(36);index;not null"`
	Email        string    `json:"email"          gorm:"index;not null"`
	RoleID       string    `json:"role_id"        gorm:"type:varchar(16);not null"`
	Token        string    `json:"-"              gorm:"type:char(36);uniqueIndex;not null"`
	ExpiresAt    time.Time `json:"expires_at"     gorm:"not null"`
}

func (AccessInviteModel) TableName() string { return "access_invites" }

package models

import "time"

// Token purposes accepted by the ledger.
const (
	TokenPurposeEmailVerify = "email_verify"
	TokenPurposeEventRSVP   = "event_rsvp"
)

// VerificationTokenModel is a single-use email verification token.
// Only the SHA-256 hex digest of the secret is stored; the raw secret lives
// in the emailed link and nowhere else.
type VerificationTokenModel struct {
	Base
	Email     string     `json:"email"      gorm:"index;not null"`
	TokenHash string     `json:"-"          gorm:"type:char(64);uniqueIndex;not null"`
	Purpose   string     `json:"purpose"    gorm:"type:varchar(32);index;not null"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"index;not null"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

func (VerificationTokenModel) TableName() string { return "verification_tokens" }

// RSVP statuses for event invite tokens.
const (
	RSVPStatusPending  = "pending"
	RSVPStatusGoing    = "going"
	RSVPStatusNotGoing = "not_going"
)

// EventInviteTokenModel is an RSVP token for a calendar event. Unlike
// verification tokens it stays redeemable until expiry: re-redemption with a
// different status overwrites the previous answer.
type EventInviteTokenModel struct {
	Base
	EventID     string     `json:"event_id"   gorm:"type:char(36);index;not null"`
	Email       string     `json:"email"      gorm:"index;not null"`
	AlumniID    *string    `json:"alumni_id"  gorm:"type:char(36)"`
	TokenHash   string     `json:"-"          gorm:"type:char(64);uniqueIndex;not null"`
	ExpiresAt   time.Time  `json:"expires_at" gorm:"index;not null"`
	Status      string     `json:"status"     gorm:"type:varchar(16);default:pending;not null"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

func (EventInviteTokenModel) TableName() string { return "event_invite_tokens" }

package models

import "time"

// Campaign types sent by the dispatcher.
const (
	CampaignInitial = "initial"
	CampaignRapport = "rapport"
)

// ReverificationAnchorModel pins the timestamp of the first verification
// email ever sent to an address. Write-once: all escalation-interval math
// measures from this origin, so it must never move after creation.
type ReverificationAnchorModel struct {
	Base
	Email       string    `json:"email"         gorm:"uniqueIndex;not null"`
	FirstSentAt time.Time `json:"first_sent_at" gorm:"not null"`
}

func (ReverificationAnchorModel) TableName() string { return "reverification_anchors" }

// CampaignLogModel records one campaign send per (email, interval, campaign).
// The composite unique index is what makes sweep re-runs idempotent: the
// insert uses on-conflict-do-nothing, so a second sweep cannot double-send.
type CampaignLogModel struct {
	Base
	Email          string    `json:"email"           gorm:"uniqueIndex:idx_campaign_key;not null"`
	IntervalMonths int       `json:"interval_months" gorm:"uniqueIndex:idx_campaign_key;not null"`
	CampaignType   string    `json:"campaign_type"   gorm:"type:varchar(16);uniqueIndex:idx_campaign_key;not null"`
	SentAt         time.Time `json:"sent_at"         gorm:"not null"`
	Status         string    `json:"status"          gorm:"type:varchar(16)"`
	Error          string    `json:"error,omitempty" gorm:"type:text"`
}

func (CampaignLogModel) TableName() string { return "campaign_logs" }

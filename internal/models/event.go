package models

import "time"

// EventModel is a calendar event alumni can be invited to.
type EventModel struct {
	Base
	Title       string    `json:"title"       gorm:"not null"`
	Description string    `json:"description" gorm:"type:text"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at"   gorm:"index;not null"`
	EndsAt      time.Time `json:"ends_at"`
}

func (EventModel) TableName() string { return "events" }

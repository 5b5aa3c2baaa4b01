package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base is the base model for all entities.
// ID is a UUID string for API compatibility with the hosted-backend row ids
// the admin UI already stores. DeletedAt doubles as the archive flag.
type Base struct {
	ID        string         `json:"id"       gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time      `json:"created"`
	UpdatedAt time.Time      `json:"modified"`
	DeletedAt gorm.DeletedAt `json:"-"        gorm:"index"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

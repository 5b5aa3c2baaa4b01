package models

import "time"

// AlumniModel is an alumni contact of the incubation program. Unverified
// contacts are the input set of the re-verification sweep. Archiving is the
// soft delete carried by Base.DeletedAt.
type AlumniModel struct {
	Base
	FirstName  string     `json:"first_name" gorm:"not null"`
	LastName   string     `json:"last_name"`
	Email      string     `json:"email"      gorm:"uniqueIndex;not null"`
	Phone      string     `json:"phone"`
	Cohort     string     `json:"cohort"     gorm:"index"`
	Company    string     `json:"company"`
	Notes      string     `json:"notes"      gorm:"type:text"`
	Verified   bool       `json:"verified"   gorm:"default:false;index;not null"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

func (AlumniModel) TableName() string { return "alumni" }

package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// SkillBadge represents a named credential awarded to a student. The
// verified flag tracks whether the badge has passed an external
// confirmation process.
type SkillBadge struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	StudentID        int       `gorm:"not null;index" json:"student_id"`
	BadgeName        string    `gorm:"not null" json:"badge_name"`
	BadgeDescription *string   `gorm:"type:text" json:"badge_description"`
	Verified         bool      `gorm:"not null;default:false" json:"verified"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName ensures consistent table naming
func (SkillBadge) TableName() string {
	return "skill_badges"
}

// Validate checks the required fields. The contract is presence-only:
// a zero student id and an empty badge name are treated as absent.
func (b *SkillBadge) Validate() error {
	if b.StudentID == 0 {
		return errors.New("student_id is required")
	}
	if b.BadgeName == "" {
		return errors.New("badge_name is required")
	}
	return nil
}

// BeforeCreate runs validation before persisting a new badge
func (b *SkillBadge) BeforeCreate(tx *gorm.DB) error {
	return b.Validate()
}

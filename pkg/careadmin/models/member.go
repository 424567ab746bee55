package models

import (
	"time"

	"gorm.io/gorm"
)

// MemberStatus is the lifecycle state of a platform member
type MemberStatus string

const (
	MemberStatusActive    MemberStatus = "active"
	MemberStatusSuspended MemberStatus = "suspended"
	MemberStatusWithdrawn MemberStatus = "withdrawn"
)

// Member represents a registered end user (a senior or their guardian)
type Member struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
	Email      string         `gorm:"uniqueIndex;not null" json:"email"`
	Name       string         `gorm:"not null" json:"name"`
	Phone      string         `json:"phone"`
	BirthDate  *time.Time     `json:"birth_date"`
	CareLevel  int            `json:"care_level"` // 0 = not assessed
	Status     MemberStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	FacilityID *uint          `gorm:"index" json:"facility_id"`
	Notes      string         `json:"notes"`

	Facility *Facility `gorm:"foreignKey:FacilityID" json:"facility,omitempty"`
}

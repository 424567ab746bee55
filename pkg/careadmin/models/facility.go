package models

import (
	"time"

	"gorm.io/gorm"
)

// FacilityType classifies a care facility
type FacilityType string

const (
	FacilityTypeNursingHome    FacilityType = "nursing_home"
	FacilityTypeDayCare        FacilityType = "day_care"
	FacilityTypeAssistedLiving FacilityType = "assisted_living"
	FacilityTypeHomeCare       FacilityType = "home_care"
)

// Facility represents a senior-care facility listed on the platform
type Facility struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Name        string         `gorm:"not null" json:"name"`
	Type        FacilityType   `gorm:"type:varchar(30);not null" json:"type"`
	Region      string         `gorm:"index" json:"region"`
	Address     string         `json:"address"`
	Phone       string         `json:"phone"`
	Capacity    int            `json:"capacity"`
	Description string         `json:"description"`
	Active      bool           `gorm:"not null" json:"active"`
}

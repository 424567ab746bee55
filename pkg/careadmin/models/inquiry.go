package models

import (
	"time"

	"gorm.io/gorm"
)

// InquiryStatus tracks how far an inquiry has been handled
type InquiryStatus string

const (
	InquiryStatusPending    InquiryStatus = "pending"
	InquiryStatusInProgress InquiryStatus = "in_progress"
	InquiryStatusResolved   InquiryStatus = "resolved"
)

// Inquiry is a service inquiry submitted by a member or prospective member
type Inquiry struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	TicketNumber string         `gorm:"uniqueIndex;not null" json:"ticket_number"`
	Name         string         `gorm:"not null" json:"name"`
	Email        string         `gorm:"not null" json:"email"`
	Phone        string         `json:"phone"`
	FacilityID   *uint          `gorm:"index" json:"facility_id"`
	Subject      string         `gorm:"not null" json:"subject"`
	Message      string         `gorm:"type:text;not null" json:"message"`
	Status       InquiryStatus  `gorm:"type:varchar(20);not null;index" json:"status"`
	Answer       string         `gorm:"type:text" json:"answer"`
	AnsweredByID *uint          `json:"answered_by_id"`
	AnsweredAt   *time.Time     `json:"answered_at"`
}

package models

import (
	"time"

	"gorm.io/gorm"
)

// FAQ is a frequently asked question shown on the public help page
type FAQ struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Question  string         `gorm:"not null" json:"question"`
	Answer    string         `gorm:"type:text;not null" json:"answer"`
	Category  string         `gorm:"index" json:"category"`
	SortOrder int            `json:"sort_order"`
	Published bool           `json:"published"`
}

// TableName keeps the table name readable; gorm would otherwise pick "fa_qs"
func (FAQ) TableName() string {
	return "faqs"
}

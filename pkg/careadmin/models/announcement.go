package models

import (
	"time"

	"gorm.io/gorm"
)

// Announcement is a notice shown to members on the public site
type Announcement struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Title       string         `gorm:"not null" json:"title"`
	Body        string         `gorm:"type:text;not null" json:"body"`
	Category    string         `gorm:"index" json:"category"`
	Pinned      bool           `json:"pinned"`
	PublishedAt *time.Time     `json:"published_at"` // nil = draft
	AuthorID    uint           `gorm:"not null" json:"author_id"`
}

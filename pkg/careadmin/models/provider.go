package models

import (
	"time"
)

// ProviderAccount is an account held by the embedded identity provider.
// It is deliberately independent of AdminUser: the only join key is ID,
// which AdminUser stores as SubjectID.
type ProviderAccount struct {
	ID           string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"`
	Metadata     map[string]any `gorm:"serializer:json" json:"user_metadata"`
	ConfirmedAt  *time.Time     `json:"confirmed_at"`
	LastSignInAt *time.Time     `json:"last_sign_in_at"`
}

// ProviderRefreshToken is a single-use refresh token belonging to a provider session
type ProviderRefreshToken struct {
	ID        uint       `gorm:"primarykey" json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	TokenHash string     `gorm:"uniqueIndex;not null" json:"-"`
	AccountID string     `gorm:"not null;index" json:"account_id"`
	SessionID string     `gorm:"not null;index" json:"session_id"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at"`
}

package models

import (
	"slices"
	"time"

	"gorm.io/gorm"
)

// AdminRole represents an administrator's dashboard-wide role
type AdminRole string

const (
	AdminRoleAdmin      AdminRole = "admin"
	AdminRoleSuperAdmin AdminRole = "super_admin"
)

// Valid reports whether r is a known role
func (r AdminRole) Valid() bool {
	return r == AdminRoleAdmin || r == AdminRoleSuperAdmin
}

// AdminUser is the authoritative administrator identity. It is the source of
// truth for role and permissions; the identity provider only mirrors them.
type AdminUser struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"`
	Name         string         `gorm:"not null" json:"name"`
	Role         AdminRole      `gorm:"type:varchar(20);not null" json:"role"`
	Active       bool           `gorm:"not null" json:"active"`
	Permissions  []string       `gorm:"serializer:json" json:"permissions"`
	LastLoginAt  *time.Time     `json:"last_login_at"`
	SubjectID    string         `gorm:"index" json:"subject_id,omitempty"` // identity provider subject, set on first link
}

// HasPermission reports whether the admin holds perm. Super admins hold every permission.
func (a *AdminUser) HasPermission(perm string) bool {
	if a.Role == AdminRoleSuperAdmin {
		return true
	}
	return slices.Contains(a.Permissions, perm)
}

// Well-known permissions checked by the dashboard API
const (
	PermissionMembers       = "members"
	PermissionFacilities    = "facilities"
	PermissionAnnouncements = "announcements"
	PermissionFAQs          = "faqs"
	PermissionInquiries     = "inquiries"
)

// AllPermissions lists every permission an admin can be granted
func AllPermissions() []string {
	return []string{
		PermissionMembers,
		PermissionFacilities,
		PermissionAnnouncements,
		PermissionFAQs,
		PermissionInquiries,
	}
}

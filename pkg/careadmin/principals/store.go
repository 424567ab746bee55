// Package principals is the authoritative store of administrator identities.
// It also hosts the server-side credential check: password hashes never leave
// this package.
package principals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/mikepea/careadmin/pkg/careadmin/models"
)

var (
	// ErrNotFound is returned by mutations addressing a missing admin.
	ErrNotFound = errors.New("admin not found")
	// ErrEmailTaken is returned when another admin already uses the email.
	ErrEmailTaken = errors.New("email already in use")
)

// Store provides persistence for admin principals.
type Store struct {
	log logrus.FieldLogger
	db  *gorm.DB
}

// NewStore creates a Store on top of an open database.
func NewStore(log logrus.FieldLogger, db *gorm.DB) *Store {
	return &Store{
		log: log.WithField("component", "principals"),
		db:  db,
	}
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// --- Point reads. A miss returns (nil, nil). ---

// GetActiveByID returns the admin with id if it exists and is active.
func (s *Store) GetActiveByID(ctx context.Context, id uint) (*models.AdminUser, error) {
	return s.first(ctx, "getting active admin by id", "id = ? AND active = ?", id, true)
}

// GetByID returns the admin with id regardless of its active flag.
func (s *Store) GetByID(ctx context.Context, id uint) (*models.AdminUser, error) {
	return s.first(ctx, "getting admin by id", "id = ?", id)
}

// GetBySubjectID returns the admin linked to the provider subject.
func (s *Store) GetBySubjectID(ctx context.Context, subject string) (*models.AdminUser, error) {
	if subject == "" {
		return nil, nil
	}
	return s.first(ctx, "getting admin by subject id", "subject_id = ?", subject)
}

// GetByEmail returns the admin with the given email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	return s.first(ctx, "getting admin by email", "email = ?", NormalizeEmail(email))
}

func (s *Store) first(ctx context.Context, op string, query string, args ...any) (*models.AdminUser, error) {
	var admin models.AdminUser
	err := s.db.WithContext(ctx).Where(query, args...).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &admin, nil
}

// VerifyCredentials returns the admin matching email and password as a
// zero-or-one row result. Inactive admins are returned; callers decide.
func (s *Store) VerifyCredentials(ctx context.Context, email, password string) ([]models.AdminUser, error) {
	var rows []models.AdminUser
	if err := s.db.WithContext(ctx).
		Where("email = ?", NormalizeEmail(email)).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("verifying credentials: %w", err)
	}

	if len(rows) == 0 || !CheckPassword(password, rows[0].PasswordHash) {
		return nil, nil
	}

	return rows, nil
}

// RecordLogin stamps last_login_at and links subject if the admin has none yet,
// in a single conditional update. It returns the subject id stored afterwards,
// which differs from subject when another login linked first.
func (s *Store) RecordLogin(ctx context.Context, id uint, subject string, at time.Time) (string, error) {
	updates := map[string]any{"last_login_at": at}
	if subject != "" {
		updates["subject_id"] = gorm.Expr(
			"CASE WHEN subject_id IS NULL OR subject_id = '' THEN ? ELSE subject_id END", subject,
		)
	}

	res := s.db.WithContext(ctx).
		Model(&models.AdminUser{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return "", fmt.Errorf("recording login: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", ErrNotFound
	}

	var stored models.AdminUser
	if err := s.db.WithContext(ctx).Select("subject_id").First(&stored, id).Error; err != nil {
		return "", fmt.Errorf("reading linked subject: %w", err)
	}

	return stored.SubjectID, nil
}

// --- Administration ---

// ListFilter narrows List results.
type ListFilter struct {
	Search string
	Role   models.AdminRole
	Active *bool
	Offset int
	Limit  int
}

// List returns a page of admins and the total matching count.
func (s *Store) List(ctx context.Context, f ListFilter) ([]models.AdminUser, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.AdminUser{})
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("LOWER(name) LIKE ? OR email LIKE ?", like, like)
	}
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if f.Active != nil {
		q = q.Where("active = ?", *f.Active)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting admins: %w", err)
	}

	var admins []models.AdminUser
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}
	if err := q.Order("id ASC").Find(&admins).Error; err != nil {
		return nil, 0, fmt.Errorf("listing admins: %w", err)
	}

	return admins, total, nil
}

// CreateParams describes a new admin.
type CreateParams struct {
	Email       string
	Password    string
	Name        string
	Role        models.AdminRole
	Permissions []string
}

// Create provisions a new active admin.
func (s *Store) Create(ctx context.Context, p CreateParams) (*models.AdminUser, error) {
	if !p.Role.Valid() {
		return nil, fmt.Errorf("invalid role %q", p.Role)
	}

	hash, err := HashPassword(p.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	admin := models.AdminUser{
		Email:        NormalizeEmail(p.Email),
		PasswordHash: hash,
		Name:         p.Name,
		Role:         p.Role,
		Active:       true,
		Permissions:  p.Permissions,
	}
	if admin.Permissions == nil {
		admin.Permissions = []string{}
	}

	if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating admin: %w", err)
	}

	s.log.WithFields(logrus.Fields{"admin_id": admin.ID, "role": admin.Role}).Info("Admin created")

	return &admin, nil
}

// UpdateParams holds optional admin changes; nil fields are left untouched.
type UpdateParams struct {
	Name        *string
	Role        *models.AdminRole
	Permissions *[]string
	Password    *string
}

// Update applies p to the admin with id.
func (s *Store) Update(ctx context.Context, id uint, p UpdateParams) (*models.AdminUser, error) {
	admin, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, ErrNotFound
	}

	if p.Name != nil {
		admin.Name = *p.Name
	}
	if p.Role != nil {
		if !p.Role.Valid() {
			return nil, fmt.Errorf("invalid role %q", *p.Role)
		}
		admin.Role = *p.Role
	}
	if p.Permissions != nil {
		admin.Permissions = *p.Permissions
	}
	if p.Password != nil {
		hash, err := HashPassword(*p.Password)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		admin.PasswordHash = hash
	}

	if err := s.db.WithContext(ctx).Save(admin).Error; err != nil {
		return nil, fmt.Errorf("updating admin: %w", err)
	}

	return admin, nil
}

// SetActive activates or deactivates the admin with id.
func (s *Store) SetActive(ctx context.Context, id uint, active bool) error {
	res := s.db.WithContext(ctx).
		Model(&models.AdminUser{}).
		Where("id = ?", id).
		Update("active", active)
	if res.Error != nil {
		return fmt.Errorf("setting active flag: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	s.log.WithFields(logrus.Fields{"admin_id": id, "active": active}).Info("Admin active flag changed")

	return nil
}

// EnsureSuperAdmin creates a super admin with the given details when no active
// super admin exists. It reports whether one was created.
func (s *Store) EnsureSuperAdmin(ctx context.Context, email, name, password string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.AdminUser{}).
		Where("role = ? AND active = ?", models.AdminRoleSuperAdmin, true).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("counting super admins: %w", err)
	}
	if count > 0 {
		return false, nil
	}
	if password == "" {
		return false, errors.New("no super admin exists and no bootstrap password is configured")
	}

	if _, err := s.Create(ctx, CreateParams{
		Email:       email,
		Password:    password,
		Name:        name,
		Role:        models.AdminRoleSuperAdmin,
		Permissions: models.AllPermissions(),
	}); err != nil {
		return false, err
	}

	return true, nil
}

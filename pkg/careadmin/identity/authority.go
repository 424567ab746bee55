// Package identity is the embedded token provider that issues admin sessions.
// Its accounts live in their own tables and are joined to admin principals only
// through the subject id and the user metadata bag.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/mikepea/careadmin/pkg/careadmin/models"
)

const minPasswordLength = 8

// Options configures an Authority.
type Options struct {
	Issuer                   string
	SigningSecret            string
	AccessTTL                time.Duration
	RefreshTTL               time.Duration
	RequireEmailConfirmation bool
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Authority issues, refreshes and revokes sessions for provider accounts.
type Authority struct {
	log      logrus.FieldLogger
	db       *gorm.DB
	opts     Options
	secret   []byte
	validate *validator.Validate
}

// NewAuthority creates an Authority storing accounts in db.
func NewAuthority(log logrus.FieldLogger, db *gorm.DB, opts Options) *Authority {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Issuer == "" {
		opts.Issuer = "careadmin-identity"
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = time.Hour
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 30 * 24 * time.Hour
	}

	return &Authority{
		log:      log.WithField("component", "identity"),
		db:       db,
		opts:     opts,
		secret:   []byte(opts.SigningSecret),
		validate: validator.New(),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp creates an account. When email confirmation is required the returned
// session is nil until ConfirmEmail is called.
func (a *Authority) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*User, *Session, error) {
	email = normalizeEmail(email)
	if err := a.validate.Var(email, "required,email"); err != nil {
		return nil, nil, newError(CodeInvalidEmail, "email address is invalid")
	}
	if len(password) < minPasswordLength {
		return nil, nil, newError(CodeWeakPassword, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hashing password: %w", err)
	}

	now := a.opts.Now()
	account := models.ProviderAccount{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Metadata:     maps.Clone(metadata),
	}
	if account.Metadata == nil {
		account.Metadata = map[string]any{}
	}
	if !a.opts.RequireEmailConfirmation {
		account.ConfirmedAt = &now
	}

	if err := a.db.WithContext(ctx).Create(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, nil, newError(CodeUserAlreadyExists, "user already registered")
		}
		return nil, nil, fmt.Errorf("creating account: %w", err)
	}

	a.log.WithField("subject", account.ID).Debug("Account created")

	user := userFromAccount(&account)
	if account.ConfirmedAt == nil {
		return &user, nil, nil
	}

	session, err := a.startSession(ctx, &account)
	if err != nil {
		return nil, nil, err
	}

	return &session.User, session, nil
}

// SignInWithPassword starts a session for the account matching email and password.
func (a *Authority) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	account, err := a.accountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if account == nil || bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, newError(CodeInvalidCredentials, "invalid login credentials")
	}
	if account.ConfirmedAt == nil {
		return nil, newError(CodeEmailNotConfirmed, "email not confirmed")
	}

	return a.startSession(ctx, account)
}

// Refresh exchanges a refresh token for a new session. Refresh tokens are single use.
func (a *Authority) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	now := a.opts.Now()

	var stored models.ProviderRefreshToken
	err := a.db.WithContext(ctx).
		Where("token_hash = ? AND revoked_at IS NULL AND expires_at > ?", hashToken(refreshToken), now).
		First(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(CodeInvalidRefreshToken, "refresh token is invalid or revoked")
	}
	if err != nil {
		return nil, fmt.Errorf("loading refresh token: %w", err)
	}

	// Only one concurrent refresh can revoke a given token.
	res := a.db.WithContext(ctx).
		Model(&models.ProviderRefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", stored.ID).
		Update("revoked_at", now)
	if res.Error != nil {
		return nil, fmt.Errorf("revoking refresh token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, newError(CodeInvalidRefreshToken, "refresh token already used")
	}

	account, err := a.accountByID(ctx, stored.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, newError(CodeUserNotFound, "user no longer exists")
	}

	return a.issue(ctx, account, stored.SessionID, now)
}

// GetUser returns the current account for an access token whose session is still live.
func (a *Authority) GetUser(ctx context.Context, accessToken string) (*User, error) {
	claims, err := a.liveClaims(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	account, err := a.accountByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, newError(CodeUserNotFound, "user no longer exists")
	}

	user := userFromAccount(account)
	return &user, nil
}

// UpdateUserMetadata merges metadata into the account's metadata bag.
// Keys set to nil are removed.
func (a *Authority) UpdateUserMetadata(ctx context.Context, accessToken string, metadata map[string]any) (*User, error) {
	claims, err := a.liveClaims(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var user User
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.ProviderAccount
		if err := tx.First(&account, "id = ?", claims.Subject).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newError(CodeUserNotFound, "user no longer exists")
			}
			return err
		}

		merged := maps.Clone(account.Metadata)
		if merged == nil {
			merged = map[string]any{}
		}
		for k, v := range metadata {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		account.Metadata = merged

		if err := tx.Model(&account).Select("metadata").Updates(&account).Error; err != nil {
			return err
		}

		user = userFromAccount(&account)
		return nil
	})
	if err != nil {
		var ie *Error
		if errors.As(err, &ie) {
			return nil, ie
		}
		return nil, fmt.Errorf("updating metadata: %w", err)
	}

	return &user, nil
}

// SignOut revokes every refresh token of the session the access token belongs to.
// Signing out an already ended session is not an error.
func (a *Authority) SignOut(ctx context.Context, accessToken string) error {
	claims, err := a.ValidateToken(accessToken)
	if err != nil && !errors.Is(err, ErrExpiredToken) {
		return newError(CodeInvalidToken, "access token is invalid")
	}
	if claims == nil {
		// Expired tokens still identify their session.
		claims, err = a.unverifiedClaims(accessToken)
		if err != nil {
			return newError(CodeInvalidToken, "access token is invalid")
		}
	}

	if err := a.db.WithContext(ctx).
		Model(&models.ProviderRefreshToken{}).
		Where("session_id = ? AND revoked_at IS NULL", claims.SessionID).
		Update("revoked_at", a.opts.Now()).Error; err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}

	a.log.WithField("subject", claims.Subject).Debug("Session revoked")

	return nil
}

// ConfirmEmail marks the account as confirmed.
func (a *Authority) ConfirmEmail(ctx context.Context, userID string) error {
	res := a.db.WithContext(ctx).
		Model(&models.ProviderAccount{}).
		Where("id = ? AND confirmed_at IS NULL", userID).
		Update("confirmed_at", a.opts.Now())
	if res.Error != nil {
		return fmt.Errorf("confirming email: %w", res.Error)
	}

	return nil
}

func (a *Authority) startSession(ctx context.Context, account *models.ProviderAccount) (*Session, error) {
	now := a.opts.Now()
	if err := a.db.WithContext(ctx).
		Model(account).
		Update("last_sign_in_at", now).Error; err != nil {
		return nil, fmt.Errorf("stamping sign in: %w", err)
	}
	account.LastSignInAt = &now

	return a.issue(ctx, account, uuid.NewString(), now)
}

func (a *Authority) issue(ctx context.Context, account *models.ProviderAccount, sessionID string, now time.Time) (*Session, error) {
	refresh, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("generating refresh token: %w", err)
	}

	if err := a.db.WithContext(ctx).Create(&models.ProviderRefreshToken{
		TokenHash: hashToken(refresh),
		AccountID: account.ID,
		SessionID: sessionID,
		ExpiresAt: now.Add(a.opts.RefreshTTL),
	}).Error; err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	user := userFromAccount(account)
	access, expiresAt, err := a.generateToken(user, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}

	return &Session{
		ID:           sessionID,
		AccessToken:  access,
		RefreshToken: refresh,
		IssuedAt:     now,
		ExpiresAt:    expiresAt,
		User:         user,
	}, nil
}

// liveClaims validates an access token and checks its session was not signed out.
func (a *Authority) liveClaims(ctx context.Context, accessToken string) (*Claims, error) {
	claims, err := a.ValidateToken(accessToken)
	if err != nil {
		return nil, newError(CodeInvalidToken, err.Error())
	}

	var live int64
	if err := a.db.WithContext(ctx).
		Model(&models.ProviderRefreshToken{}).
		Where("session_id = ? AND revoked_at IS NULL", claims.SessionID).
		Count(&live).Error; err != nil {
		return nil, fmt.Errorf("checking session: %w", err)
	}
	if live == 0 {
		return nil, newError(CodeSessionNotFound, "session has ended")
	}

	return claims, nil
}

func (a *Authority) unverifiedClaims(accessToken string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(accessToken, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (a *Authority) accountByEmail(ctx context.Context, email string) (*models.ProviderAccount, error) {
	var account models.ProviderAccount
	err := a.db.WithContext(ctx).Where("email = ?", email).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading account by email: %w", err)
	}
	return &account, nil
}

func (a *Authority) accountByID(ctx context.Context, id string) (*models.ProviderAccount, error) {
	var account models.ProviderAccount
	err := a.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}
	return &account, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

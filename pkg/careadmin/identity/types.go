package identity

import (
	"maps"
	"time"

	"github.com/mikepea/careadmin/pkg/careadmin/models"
)

// User is a provider account as seen by clients.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Metadata     map[string]any `json:"user_metadata"`
	ConfirmedAt  *time.Time     `json:"confirmed_at,omitempty"`
	LastSignInAt *time.Time     `json:"last_sign_in_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Session is an issued token pair plus the user it belongs to.
type Session struct {
	ID           string    `json:"-"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Subject returns the provider's identifier of the session owner.
func (s *Session) Subject() string {
	if s == nil {
		return ""
	}
	return s.User.ID
}

// Expired reports whether the access token is expired at now, allowing margin.
func (s *Session) Expired(now time.Time, margin time.Duration) bool {
	return !now.Add(margin).Before(s.ExpiresAt)
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.User = s.User.clone()
	return &c
}

func (u User) clone() User {
	u.Metadata = maps.Clone(u.Metadata)
	return u
}

func userFromAccount(acc *models.ProviderAccount) User {
	md := maps.Clone(acc.Metadata)
	if md == nil {
		md = map[string]any{}
	}
	return User{
		ID:           acc.ID,
		Email:        acc.Email,
		Metadata:     md,
		ConfirmedAt:  acc.ConfirmedAt,
		LastSignInAt: acc.LastSignInAt,
		CreatedAt:    acc.CreatedAt,
	}
}

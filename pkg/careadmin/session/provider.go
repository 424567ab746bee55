package session

import (
	"context"
	"time"

	"github.com/mikepea/careadmin/pkg/careadmin/fallback"
	"github.com/mikepea/careadmin/pkg/careadmin/identity"
	"github.com/mikepea/careadmin/pkg/careadmin/models"
)

// PrincipalStore reads admin principals and records logins. Reads return (nil, nil) on a miss.
type PrincipalStore interface {
	GetActiveByID(ctx context.Context, id uint) (*models.AdminUser, error)
	GetBySubjectID(ctx context.Context, subject string) (*models.AdminUser, error)
	GetByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	// RecordLogin stamps the login time and links subject if none is linked,
	// returning the subject stored afterwards.
	RecordLogin(ctx context.Context, id uint, subject string, at time.Time) (string, error)
}

// CredentialVerifier checks a password server side and returns zero or one admins.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, email, password string) ([]models.AdminUser, error)
}

// Provider is the ambient session of one browser context at the identity provider.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*identity.User, *identity.Session, error)
	Session(ctx context.Context) (*identity.Session, error)
	User(ctx context.Context) (*identity.User, error)
	UpdateUserMetadata(ctx context.Context, metadata map[string]any) (*identity.User, error)
	RefreshSession(ctx context.Context) (*identity.Session, error)
	SignOut(ctx context.Context) error
	OnSessionChange(fn identity.ChangeListener) (unsubscribe func())
}

// FallbackStore holds the fallback record of one browser context. Load returns (nil, nil) on a miss.
type FallbackStore interface {
	Save(rec *fallback.Record) error
	Load() (*fallback.Record, error)
	Delete() error
}

var (
	_ Provider      = (*identity.Client)(nil)
	_ FallbackStore = (*fallback.Scoped)(nil)
)

// Package session reconciles admin principals with identity provider sessions
// and tracks the resulting identity of every browser context.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mikepea/careadmin/pkg/careadmin/fallback"
	"github.com/mikepea/careadmin/pkg/careadmin/identity"
	"github.com/mikepea/careadmin/pkg/careadmin/models"
)

// Outcome tags the path a reconciliation took.
type Outcome string

const (
	// OutcomeLinked signed into an existing provider account.
	OutcomeLinked Outcome = "linked"
	// OutcomeCreated created the provider account and got a session.
	OutcomeCreated Outcome = "created"
	// OutcomeReused kept the ambient session already linked to the admin.
	OutcomeReused Outcome = "reused"
	// OutcomeDegraded has no provider session; identity rests on the fallback record.
	OutcomeDegraded Outcome = "degraded"
)

// Result is a reconciled admin and how it was reached.
type Result struct {
	Principal *models.AdminUser
	Outcome   Outcome
	// Subject is the provider subject of the session, empty when none is known.
	Subject string
}

// Deps are the collaborators shared by every browser context.
type Deps struct {
	Principals  PrincipalStore
	Verifier    CredentialVerifier
	Credentials *Credentials
	Log         logrus.FieldLogger
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Reconciler runs the login, resolve and logout flows of one browser context.
type Reconciler struct {
	deps     Deps
	provider Provider
	fallback FallbackStore
	log      logrus.FieldLogger
}

// NewReconciler binds deps to the provider session and fallback record of one context.
func NewReconciler(deps Deps, provider Provider, fb FallbackStore) *Reconciler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = logrus.New()
	}
	return &Reconciler{
		deps:     deps,
		provider: provider,
		fallback: fb,
		log:      deps.Log.WithField("component", "reconciler"),
	}
}

// link is the provider half of a login.
type link struct {
	outcome Outcome
	session *identity.Session
	subject string
}

// Login verifies credentials against the principal store and brings the
// provider session in line with the admin.
func (r *Reconciler) Login(ctx context.Context, email, password string) (*Result, error) {
	rows, err := r.deps.Verifier.VerifyCredentials(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("verifying credentials: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrInvalidCredentials
	}

	admin := rows[0]
	if !admin.Active {
		return nil, ErrAccountInactive
	}

	log := r.log.WithField("admin_id", admin.ID)

	l, err := r.linkProvider(ctx, &admin)
	if err != nil {
		var code identity.ErrorCode
		var ext *ExternalAuthError
		if errors.As(err, &ext) {
			code = ext.Code()
		}
		log.WithError(err).WithField("code", code).Error("Provider login failed")
		return nil, err
	}

	now := r.deps.Now()
	stored, err := r.deps.Principals.RecordLogin(ctx, admin.ID, l.subject, now)
	if err != nil {
		log.WithError(err).Warn("Failed to record login")
	} else {
		if l.subject != "" && stored != l.subject {
			log.WithFields(logrus.Fields{
				"linked_subject":  stored,
				"session_subject": l.subject,
			}).Warn("Admin is linked to a different provider subject")
		}
		admin.SubjectID = stored
		admin.LastLoginAt = &now
	}

	if l.session != nil {
		_ = r.SyncMetadata(ctx, &admin)
		if err := r.fallback.Delete(); err != nil {
			log.WithError(err).Warn("Failed to clear stale fallback record")
		}
	} else {
		if err := r.fallback.Save(fallback.NewRecord(&admin, now)); err != nil {
			log.WithError(err).Warn("Failed to write fallback record")
		}
		log.Info("Provider issued no session, continuing degraded")
	}

	log.WithField("outcome", l.outcome).Info("Admin logged in")

	return &Result{Principal: &admin, Outcome: l.outcome, Subject: l.subject}, nil
}

// linkProvider reuses, signs into or creates the admin's provider account.
func (r *Reconciler) linkProvider(ctx context.Context, admin *models.AdminUser) (link, error) {
	if admin.SubjectID != "" {
		ambient, err := r.provider.Session(ctx)
		if err != nil {
			r.log.WithError(err).Debug("Could not read ambient session")
		} else if ambient != nil && ambient.Subject() == admin.SubjectID {
			return link{outcome: OutcomeReused, session: ambient, subject: ambient.Subject()}, nil
		}
	}

	email := r.deps.Credentials.Email(admin)
	password := r.deps.Credentials.Password(admin.ID)

	session, err := r.provider.SignInWithPassword(ctx, email, password)
	switch {
	case err == nil:
		return link{outcome: OutcomeLinked, session: session, subject: session.Subject()}, nil
	case identity.IsCode(err, identity.CodeEmailNotConfirmed):
		return link{outcome: OutcomeDegraded, subject: admin.SubjectID}, nil
	case !identity.IsCode(err, identity.CodeInvalidCredentials):
		return link{}, &ExternalAuthError{Op: "sign in", Err: err}
	}

	user, session, err := r.provider.SignUp(ctx, email, password, annotationsFor(admin).Map())
	switch {
	case err == nil && session != nil:
		return link{outcome: OutcomeCreated, session: session, subject: session.Subject()}, nil
	case err == nil:
		return link{outcome: OutcomeDegraded, subject: user.ID}, nil
	case !identity.IsCode(err, identity.CodeUserAlreadyExists):
		return link{}, &ExternalAuthError{Op: "sign up", Err: err}
	}

	// A concurrent login created the account first.
	session, err = r.provider.SignInWithPassword(ctx, email, password)
	switch {
	case err == nil:
		return link{outcome: OutcomeLinked, session: session, subject: session.Subject()}, nil
	case identity.IsCode(err, identity.CodeEmailNotConfirmed):
		return link{outcome: OutcomeDegraded, subject: admin.SubjectID}, nil
	default:
		return link{}, &ExternalAuthError{Op: "sign in", Err: err}
	}
}

// ResolveSession recovers the admin behind the ambient session, or behind the
// fallback record when there is no session. A nil result means unauthenticated.
func (r *Reconciler) ResolveSession(ctx context.Context) (*Result, error) {
	session, err := r.provider.Session(ctx)
	if err != nil {
		return nil, &ExternalAuthError{Op: "get session", Err: err}
	}
	if session == nil {
		return r.resolveFallback(ctx)
	}

	user := session.User
	fresh, err := r.provider.User(ctx)
	switch {
	case err == nil:
		user = *fresh
	case identity.IsCode(err, identity.CodeSessionNotFound),
		identity.IsCode(err, identity.CodeInvalidToken),
		identity.IsCode(err, identity.CodeUserNotFound):
		// Ended elsewhere.
		return r.resolveFallback(ctx)
	default:
		r.log.WithError(err).Debug("Using token metadata, user lookup failed")
	}

	ann, hasAnn := decodeAnnotations(user.Metadata)
	id, err := r.principalID(ctx, ann, hasAnn, &user)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, nil
	}

	admin, err := r.deps.Principals.GetActiveByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading admin %d: %w", id, err)
	}
	if admin == nil {
		r.log.WithField("admin_id", id).Info("Session belongs to a missing or inactive admin, signing out")
		if err := r.provider.SignOut(ctx); err != nil {
			r.log.WithError(err).Warn("Failed to sign out session of inactive admin")
		}
		return nil, nil
	}

	if !hasAnn || ann.staleFor(admin) {
		_ = r.SyncMetadata(ctx, admin)
	}

	return &Result{Principal: admin, Outcome: OutcomeReused, Subject: user.ID}, nil
}

// principalID finds the admin id by metadata, then linked subject, then email.
func (r *Reconciler) principalID(ctx context.Context, ann Annotations, hasAnn bool, user *identity.User) (uint, error) {
	if hasAnn {
		return ann.AdminID, nil
	}

	admin, err := r.deps.Principals.GetBySubjectID(ctx, user.ID)
	if err != nil {
		return 0, fmt.Errorf("looking up admin by subject: %w", err)
	}
	if admin != nil {
		return admin.ID, nil
	}

	if id, ok := r.deps.Credentials.AdminIDFromEmail(user.Email); ok {
		return id, nil
	}

	admin, err = r.deps.Principals.GetByEmail(ctx, user.Email)
	if err != nil {
		return 0, fmt.Errorf("looking up admin by email: %w", err)
	}
	if admin != nil {
		return admin.ID, nil
	}

	return 0, nil
}

func (r *Reconciler) resolveFallback(ctx context.Context) (*Result, error) {
	rec, err := r.fallback.Load()
	if err != nil {
		r.log.WithError(err).Warn("Discarding unreadable fallback record")
		r.deleteFallback()
		return nil, nil
	}
	if rec == nil {
		return nil, nil
	}

	admin, err := r.deps.Principals.GetActiveByID(ctx, rec.AdminID)
	if err != nil {
		return nil, fmt.Errorf("revalidating fallback admin %d: %w", rec.AdminID, err)
	}
	if admin == nil {
		r.log.WithField("admin_id", rec.AdminID).Info("Fallback admin no longer active")
		r.deleteFallback()
		return nil, nil
	}

	return &Result{Principal: admin, Outcome: OutcomeDegraded, Subject: admin.SubjectID}, nil
}

func (r *Reconciler) deleteFallback() {
	if err := r.fallback.Delete(); err != nil {
		r.log.WithError(err).Warn("Failed to delete fallback record")
	}
}

// SyncMetadata writes the admin's annotations into the provider metadata.
// Callers inside this package ignore the returned *SyncFailure; it is logged here.
func (r *Reconciler) SyncMetadata(ctx context.Context, admin *models.AdminUser) error {
	if _, err := r.provider.UpdateUserMetadata(ctx, annotationsFor(admin).Map()); err != nil {
		failure := &SyncFailure{AdminID: admin.ID, Err: err}
		r.log.WithError(err).WithField("admin_id", admin.ID).Warn("Metadata sync failed")
		return failure
	}
	return nil
}

// Logout ends the provider session and always clears the fallback record.
// A provider failure is returned after local cleanup.
func (r *Reconciler) Logout(ctx context.Context) error {
	signOutErr := r.provider.SignOut(ctx)
	r.deleteFallback()

	if signOutErr != nil {
		r.log.WithError(signOutErr).Warn("Provider sign out failed")
		return &ExternalAuthError{Op: "sign out", Err: signOutErr}
	}
	return nil
}

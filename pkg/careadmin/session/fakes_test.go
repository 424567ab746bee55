package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/mikepea/careadmin/pkg/careadmin/fallback"
	"github.com/mikepea/careadmin/pkg/careadmin/identity"
	"github.com/mikepea/careadmin/pkg/careadmin/models"
)

// --- principal store ---

type fakePrincipals struct {
	mu        sync.Mutex
	admins    map[uint]models.AdminUser
	passwords map[uint]string
	recordErr error
	records   int
}

func newFakePrincipals() *fakePrincipals {
	return &fakePrincipals{
		admins:    make(map[uint]models.AdminUser),
		passwords: make(map[uint]string),
	}
}

func (f *fakePrincipals) add(admin models.AdminUser, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admins[admin.ID] = admin
	f.passwords[admin.ID] = password
}

func (f *fakePrincipals) update(id uint, fn func(a *models.AdminUser)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.admins[id]
	fn(&a)
	f.admins[id] = a
}

func (f *fakePrincipals) get(id uint) models.AdminUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admins[id]
}

func (f *fakePrincipals) VerifyCredentials(_ context.Context, email, password string) ([]models.AdminUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, a := range f.admins {
		if a.Email == email && f.passwords[id] == password {
			return []models.AdminUser{a}, nil
		}
	}
	return nil, nil
}

func (f *fakePrincipals) find(match func(a models.AdminUser) bool) *models.AdminUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.admins {
		if match(a) {
			cp := a
			return &cp
		}
	}
	return nil
}

func (f *fakePrincipals) GetActiveByID(_ context.Context, id uint) (*models.AdminUser, error) {
	return f.find(func(a models.AdminUser) bool { return a.ID == id && a.Active }), nil
}

func (f *fakePrincipals) GetBySubjectID(_ context.Context, subject string) (*models.AdminUser, error) {
	return f.find(func(a models.AdminUser) bool { return subject != "" && a.SubjectID == subject }), nil
}

func (f *fakePrincipals) GetByEmail(_ context.Context, email string) (*models.AdminUser, error) {
	return f.find(func(a models.AdminUser) bool { return a.Email == email }), nil
}

func (f *fakePrincipals) RecordLogin(_ context.Context, id uint, subject string, at time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return "", f.recordErr
	}
	a, ok := f.admins[id]
	if !ok {
		return "", errors.New("no such admin")
	}
	if a.SubjectID == "" {
		a.SubjectID = subject
	}
	a.LastLoginAt = &at
	f.admins[id] = a
	f.records++
	return a.SubjectID, nil
}

// --- identity provider ---

type fakeAccount struct {
	user      identity.User
	password  string
	confirmed bool
}

// fakeBackend is the provider's account table, shared by every fakeProvider.
type fakeBackend struct {
	mu                  sync.Mutex
	accounts            map[string]*fakeAccount
	nextSubject         string
	requireConfirmation bool
	seq                 int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{accounts: make(map[string]*fakeAccount)}
}

func (b *fakeBackend) create(email, password string, metadata map[string]any) (*fakeAccount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.accounts[email]; ok {
		return nil, &identity.Error{Code: identity.CodeUserAlreadyExists, Message: "user already registered"}
	}
	b.seq++
	id := b.nextSubject
	if id == "" {
		id = fmt.Sprintf("sub-%d", b.seq)
	}
	b.nextSubject = ""
	acc := &fakeAccount{
		user:      identity.User{ID: id, Email: email, Metadata: maps.Clone(metadata)},
		password:  password,
		confirmed: !b.requireConfirmation,
	}
	b.accounts[email] = acc
	return acc, nil
}

func (b *fakeBackend) account(email string) *fakeAccount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts[email]
}

func (b *fakeBackend) byID(id string) *fakeAccount {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, acc := range b.accounts {
		if acc.user.ID == id {
			return acc
		}
	}
	return nil
}

func (b *fakeBackend) setMetadata(id string, md map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, acc := range b.accounts {
		if acc.user.ID == id {
			acc.user.Metadata = maps.Clone(md)
		}
	}
}

// fakeProvider is the ambient session of one context.
type fakeProvider struct {
	backend *fakeBackend

	mu        sync.Mutex
	session   *identity.Session
	listeners map[int]identity.ChangeListener
	nextID    int

	signInErr  error
	signUpErr  error
	signOutErr error
	updateErr  error
	sessionErr error
	userErr    error

	beforeSignUp func()
	beforeSignIn func()

	signInCalls  int
	signUpCalls  int
	signOutCalls int
	sessionCalls int
	writes       []map[string]any
}

func newFakeProvider(b *fakeBackend) *fakeProvider {
	return &fakeProvider{backend: b, listeners: make(map[int]identity.ChangeListener)}
}

func (p *fakeProvider) emit(event identity.ChangeEvent) {
	p.mu.Lock()
	var fns []identity.ChangeListener
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	sess := p.session
	p.mu.Unlock()
	for _, fn := range fns {
		fn(event, sess)
	}
}

func (p *fakeProvider) startSession(acc *fakeAccount) *identity.Session {
	p.backend.mu.Lock()
	user := acc.user
	user.Metadata = maps.Clone(acc.user.Metadata)
	p.backend.mu.Unlock()

	s := &identity.Session{
		ID:          "session-" + user.ID,
		AccessToken: "access-" + user.ID,
		ExpiresAt:   time.Now().Add(time.Hour),
		User:        user,
	}
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
	p.emit(identity.EventSignedIn)
	return s
}

func (p *fakeProvider) SignInWithPassword(_ context.Context, email, password string) (*identity.Session, error) {
	p.mu.Lock()
	p.signInCalls++
	err := p.signInErr
	hook := p.beforeSignIn
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}

	acc := p.backend.account(email)
	if acc == nil || acc.password != password {
		return nil, &identity.Error{Code: identity.CodeInvalidCredentials, Message: "invalid login credentials"}
	}
	if !acc.confirmed {
		return nil, &identity.Error{Code: identity.CodeEmailNotConfirmed, Message: "email not confirmed"}
	}
	return p.startSession(acc), nil
}

func (p *fakeProvider) SignUp(_ context.Context, email, password string, metadata map[string]any) (*identity.User, *identity.Session, error) {
	p.mu.Lock()
	p.signUpCalls++
	err := p.signUpErr
	hook := p.beforeSignUp
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, nil, err
	}

	acc, err := p.backend.create(email, password, metadata)
	if err != nil {
		return nil, nil, err
	}
	user := acc.user
	if !acc.confirmed {
		return &user, nil, nil
	}
	s := p.startSession(acc)
	return &s.User, s, nil
}

func (p *fakeProvider) Session(context.Context) (*identity.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionCalls++
	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	if p.session == nil {
		return nil, nil
	}
	cp := *p.session
	return &cp, nil
}

func (p *fakeProvider) User(context.Context) (*identity.User, error) {
	p.mu.Lock()
	sess := p.session
	err := p.userErr
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, &identity.Error{Code: identity.CodeSessionNotFound, Message: "no active session"}
	}
	acc := p.backend.byID(sess.User.ID)
	if acc == nil {
		return nil, &identity.Error{Code: identity.CodeUserNotFound, Message: "gone"}
	}
	p.backend.mu.Lock()
	user := acc.user
	user.Metadata = maps.Clone(acc.user.Metadata)
	p.backend.mu.Unlock()
	return &user, nil
}

func (p *fakeProvider) UpdateUserMetadata(_ context.Context, metadata map[string]any) (*identity.User, error) {
	p.mu.Lock()
	err := p.updateErr
	var user identity.User
	hasSession := p.session != nil
	if hasSession {
		user = p.session.User
	}
	p.writes = append(p.writes, maps.Clone(metadata))
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if !hasSession {
		return nil, &identity.Error{Code: identity.CodeSessionNotFound, Message: "no active session"}
	}
	p.backend.setMetadata(user.ID, metadata)

	p.mu.Lock()
	if p.session != nil {
		p.session.User.Metadata = maps.Clone(metadata)
	}
	p.mu.Unlock()
	p.emit(identity.EventUserUpdated)

	user.Metadata = maps.Clone(metadata)
	return &user, nil
}

func (p *fakeProvider) RefreshSession(ctx context.Context) (*identity.Session, error) {
	s, err := p.Session(ctx)
	if err == nil && s != nil {
		p.emit(identity.EventTokenRefreshed)
	}
	return s, err
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.mu.Lock()
	p.signOutCalls++
	p.session = nil
	err := p.signOutErr
	p.mu.Unlock()
	p.emit(identity.EventSignedOut)
	return err
}

func (p *fakeProvider) OnSessionChange(fn identity.ChangeListener) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *fakeProvider) metadataWrites() []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]any(nil), p.writes...)
}

func (p *fakeProvider) resetWrites() {
	p.mu.Lock()
	p.writes = nil
	p.mu.Unlock()
}

func (p *fakeProvider) dropLocalSession() {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()
}

// --- fallback ---

type failingFallback struct {
	err error
}

func (f failingFallback) Save(*fallback.Record) error     { return f.err }
func (f failingFallback) Load() (*fallback.Record, error) { return nil, f.err }
func (f failingFallback) Delete() error                   { return f.err }

// --- fixture ---

const (
	testSecret      = "link-secret"
	testPlaceholder = "admins.careadmin.app"
)

type fixture struct {
	principals *fakePrincipals
	backend    *fakeBackend
	store      *fallback.MemoryStore
	log        *logrus.Logger
	hook       *test.Hook
	deps       Deps
}

func newFixture() *fixture {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	f := &fixture{
		principals: newFakePrincipals(),
		backend:    newFakeBackend(),
		store:      fallback.NewMemoryStore(),
		log:        log,
		hook:       hook,
	}
	f.deps = Deps{
		Principals:  f.principals,
		Verifier:    f.principals,
		Credentials: NewCredentials(testSecret, testPlaceholder),
		Log:         log,
	}
	return f
}

// reconciler returns a Reconciler for browser context key with its own provider session.
func (f *fixture) reconciler(key string) (*Reconciler, *fakeProvider) {
	p := newFakeProvider(f.backend)
	return NewReconciler(f.deps, p, fallback.Scope(f.store, key)), p
}

func (f *fixture) context(key string) (*Context, *fakeProvider) {
	r, p := f.reconciler(key)
	return NewContext(key, f.log, r, p), p
}

func seedAdmin(f *fixture, id uint, email string) models.AdminUser {
	admin := models.AdminUser{
		ID:          id,
		Email:       email,
		Name:        fmt.Sprintf("Admin %d", id),
		Role:        models.AdminRoleAdmin,
		Active:      true,
		Permissions: []string{models.PermissionMembers},
	}
	f.principals.add(admin, "real-password")
	return admin
}

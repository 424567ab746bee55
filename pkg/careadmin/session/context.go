package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/mikepea/careadmin/pkg/careadmin/identity"
	"github.com/mikepea/careadmin/pkg/careadmin/models"
)

// State is the authentication state of a browser context.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
)

// Source says what backs an authenticated identity.
type Source string

const (
	// SourceSession is backed by a live provider session.
	SourceSession Source = "session"
	// SourceCredentials comes from a degraded login in this context.
	SourceCredentials Source = "credentials"
	// SourceFallback was restored from a fallback record and is read only.
	SourceFallback Source = "fallback"
)

// Snapshot is a consistent view of a Context.
type Snapshot struct {
	State     State
	Principal *models.AdminUser
	Source    Source
	Outcome   Outcome
	UpdatedAt time.Time
}

// Authenticated reports whether the snapshot carries an identity.
func (s Snapshot) Authenticated() bool {
	return s.Principal != nil
}

// Writable reports whether the identity may authorize mutations.
func (s Snapshot) Writable() bool {
	return s.Principal != nil && s.Source != SourceFallback
}

// Context is the identity state machine of one browser context.
//
// Login and Logout open a new epoch when they start and again when they finish;
// a call that completes in an older epoch, or after Close, leaves the state
// untouched. Among resolutions of one epoch the most recently completed wins.
// Provider notifications are ignored while a login or logout is in flight.
type Context struct {
	id         string
	log        logrus.FieldLogger
	reconciler *Reconciler
	now        func() time.Time

	mu          sync.Mutex
	state       State
	principal   *models.AdminUser
	source      Source
	outcome     Outcome
	updatedAt   time.Time
	epoch       uint64
	inFlight    int
	closed      bool
	unsubscribe func()

	resolves singleflight.Group
	wg       sync.WaitGroup
}

// NewContext creates a Context driven by reconciler and subscribed to provider notifications.
func NewContext(id string, log logrus.FieldLogger, reconciler *Reconciler, provider Provider) *Context {
	c := &Context{
		id:         id,
		log:        log.WithFields(logrus.Fields{"component": "session", "context_id": id}),
		reconciler: reconciler,
		now:        reconciler.deps.Now,
		state:      StateUnauthenticated,
	}
	c.unsubscribe = provider.OnSessionChange(c.onSessionChange)
	return c
}

// ID returns the context id.
func (c *Context) ID() string { return c.id }

// Snapshot returns the current state.
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Context) snapshotLocked() Snapshot {
	return Snapshot{
		State:     c.state,
		Principal: c.principal,
		Source:    c.source,
		Outcome:   c.outcome,
		UpdatedAt: c.updatedAt,
	}
}

// Login runs a login and records its result.
func (c *Context) Login(ctx context.Context, email, password string) (*Result, error) {
	epoch, ok := c.beginExclusive()
	if !ok {
		return nil, ErrContextClosed
	}

	res, err := c.reconciler.Login(ctx, email, password)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--
	if c.closed || epoch != c.epoch {
		return res, err
	}
	// Resolutions that started while the login ran saw the old provider state.
	c.epoch++
	if err != nil {
		c.settleLocked()
		return nil, err
	}

	source := SourceSession
	if res.Outcome == OutcomeDegraded {
		source = SourceCredentials
	}
	c.applyLocked(res, source)
	return res, nil
}

// Resolve recovers the identity of the context. Concurrent calls share one resolution.
func (c *Context) Resolve(ctx context.Context) Snapshot {
	v, _, _ := c.resolves.Do("resolve", func() (any, error) {
		return c.resolve(ctx), nil
	})
	return v.(Snapshot)
}

func (c *Context) resolve(ctx context.Context) Snapshot {
	c.mu.Lock()
	if c.closed {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap
	}
	epoch := c.epoch
	c.state = StateAuthenticating
	c.mu.Unlock()

	res, err := c.reconciler.ResolveSession(ctx)
	if err != nil {
		c.log.WithError(err).Warn("Session resolution failed")
		res = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || epoch != c.epoch {
		return c.snapshotLocked()
	}
	if err != nil && c.principal != nil {
		// Keep the known identity across transient failures.
		c.settleLocked()
		return c.snapshotLocked()
	}

	source := SourceSession
	if res != nil && res.Outcome == OutcomeDegraded {
		source = SourceFallback
	}
	c.applyLocked(res, source)
	return c.snapshotLocked()
}

// Revalidate re-reads the principal behind an authenticated identity so role,
// permission and activation changes apply to the next request. A principal
// that is missing or inactive is resolved away and never returned.
func (c *Context) Revalidate(ctx context.Context) (Snapshot, error) {
	snap := c.Snapshot()
	if !snap.Authenticated() {
		return snap, nil
	}

	id := snap.Principal.ID
	admin, err := c.reconciler.deps.Principals.GetActiveByID(ctx, id)
	if err != nil {
		return snap, fmt.Errorf("revalidating admin %d: %w", id, err)
	}
	if admin == nil {
		c.log.WithField("admin_id", id).Info("Admin is no longer active, clearing identity")
		c.Resolve(ctx)
		c.dropPrincipal(id)
		return c.Snapshot(), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed && c.principal == snap.Principal {
		c.principal = admin
	}
	return c.snapshotLocked(), nil
}

// dropPrincipal clears the identity if it still belongs to admin id.
func (c *Context) dropPrincipal(id uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.principal == nil || c.principal.ID != id {
		return
	}
	c.epoch++
	c.applyLocked(nil, "")
}

// Logout clears the context identity, then ends the provider session and the
// fallback record. The provider error, if any, is returned.
func (c *Context) Logout(ctx context.Context) error {
	if _, ok := c.beginExclusive(); !ok {
		return ErrContextClosed
	}
	c.mu.Lock()
	c.applyLocked(nil, "")
	c.mu.Unlock()

	err := c.reconciler.Logout(ctx)

	c.mu.Lock()
	c.inFlight--
	if !c.closed {
		c.epoch++
		c.applyLocked(nil, "")
	}
	c.mu.Unlock()

	return err
}

// Close detaches the context. Calls still in flight complete without effect.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.epoch++
	unsubscribe := c.unsubscribe
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Closed reports whether Close was called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Wait blocks until resolutions started by provider notifications have finished.
func (c *Context) Wait() {
	c.wg.Wait()
}

func (c *Context) onSessionChange(event identity.ChangeEvent, _ *identity.Session) {
	if event == identity.EventUserUpdated {
		// Raised by our own metadata sync.
		return
	}

	c.mu.Lock()
	skip := c.closed || c.inFlight > 0
	if !skip {
		c.wg.Add(1)
	}
	c.mu.Unlock()

	if skip {
		return
	}

	go func() {
		defer c.wg.Done()
		c.log.WithField("event", event).Debug("Provider session changed")
		c.Resolve(context.Background())
	}()
}

// beginExclusive opens a new epoch for a login or logout.
func (c *Context) beginExclusive() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, false
	}
	c.epoch++
	c.inFlight++
	c.state = StateAuthenticating
	return c.epoch, true
}

func (c *Context) applyLocked(res *Result, source Source) {
	c.updatedAt = c.now()
	if res == nil {
		c.state = StateUnauthenticated
		c.principal = nil
		c.source = ""
		c.outcome = ""
		return
	}
	c.state = StateAuthenticated
	c.principal = res.Principal
	c.source = source
	c.outcome = res.Outcome
}

// settleLocked leaves the authenticating state without changing the identity.
func (c *Context) settleLocked() {
	if c.principal != nil {
		c.state = StateAuthenticated
	} else {
		c.state = StateUnauthenticated
	}
}

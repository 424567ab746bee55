package identity

import (
	"context"
	"sync"
	"time"
)

// ChangeEvent names an ambient session transition.
type ChangeEvent string

const (
	EventSignedIn       ChangeEvent = "SIGNED_IN"
	EventSignedOut      ChangeEvent = "SIGNED_OUT"
	EventTokenRefreshed ChangeEvent = "TOKEN_REFRESHED"
	EventUserUpdated    ChangeEvent = "USER_UPDATED"
)

// ChangeListener receives session transitions. It must not block.
type ChangeListener func(event ChangeEvent, session *Session)

// refreshMargin renews access tokens shortly before they expire.
const refreshMargin = 30 * time.Second

// Client holds the ambient session of one browser context and talks to the Authority on its behalf.
type Client struct {
	authority *Authority

	mu        sync.Mutex
	session   *Session
	listeners map[int]ChangeListener
	nextID    int
}

// NewClient returns a Client with no session.
func NewClient(authority *Authority) *Client {
	return &Client{
		authority: authority,
		listeners: make(map[int]ChangeListener),
	}
}

// OnSessionChange subscribes fn to session transitions and returns its unsubscribe func.
func (c *Client) OnSessionChange(fn ChangeListener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// SignInWithPassword replaces the ambient session with a new one.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	session, err := c.authority.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}

	c.set(session, EventSignedIn)
	return session.clone(), nil
}

// SignUp creates an account. If the provider issued a session it becomes the ambient one.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*User, *Session, error) {
	user, session, err := c.authority.SignUp(ctx, email, password, metadata)
	if err != nil {
		return nil, nil, err
	}
	if session != nil {
		c.set(session, EventSignedIn)
	}

	return user, session.clone(), nil
}

// Session returns the ambient session, refreshing it first when the access
// token is about to expire. A session whose refresh token was rejected is dropped.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	current := c.session.clone()
	c.mu.Unlock()

	if current == nil {
		return nil, nil
	}
	if !current.Expired(c.authority.opts.Now(), refreshMargin) {
		return current, nil
	}

	refreshed, err := c.RefreshSession(ctx)
	if err != nil {
		if IsCode(err, CodeInvalidRefreshToken) || IsCode(err, CodeUserNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return refreshed, nil
}

// User fetches the ambient session's user from the Authority, validating the session server side.
func (c *Client) User(ctx context.Context) (*User, error) {
	session, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, newError(CodeSessionNotFound, "no active session")
	}

	return c.authority.GetUser(ctx, session.AccessToken)
}

// UpdateUserMetadata merges metadata into the ambient user's metadata bag.
func (c *Client) UpdateUserMetadata(ctx context.Context, metadata map[string]any) (*User, error) {
	session, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, newError(CodeSessionNotFound, "no active session")
	}

	user, err := c.authority.UpdateUserMetadata(ctx, session.AccessToken, metadata)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	var updated *Session
	if c.session != nil && c.session.ID == session.ID {
		c.session.User = user.clone()
		updated = c.session.clone()
	}
	c.mu.Unlock()

	if updated != nil {
		c.emit(EventUserUpdated, updated)
	}

	return user, nil
}

// RefreshSession exchanges the ambient refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	current := c.session.clone()
	c.mu.Unlock()

	if current == nil {
		return nil, newError(CodeSessionNotFound, "no active session")
	}

	refreshed, err := c.authority.Refresh(ctx, current.RefreshToken)
	if err != nil {
		if IsCode(err, CodeInvalidRefreshToken) || IsCode(err, CodeUserNotFound) {
			c.clearIf(current.ID)
		}
		return nil, err
	}

	c.set(refreshed, EventTokenRefreshed)
	return refreshed.clone(), nil
}

// SignOut ends the ambient session. The local session is dropped even when
// the Authority call fails; that failure is still returned.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.session
	c.session = nil
	c.mu.Unlock()

	if current == nil {
		return nil
	}

	err := c.authority.SignOut(ctx, current.AccessToken)
	c.emit(EventSignedOut, nil)

	return err
}

func (c *Client) set(session *Session, event ChangeEvent) {
	c.mu.Lock()
	c.session = session.clone()
	c.mu.Unlock()

	c.emit(event, session.clone())
}

func (c *Client) clearIf(sessionID string) {
	c.mu.Lock()
	cleared := c.session != nil && c.session.ID == sessionID
	if cleared {
		c.session = nil
	}
	c.mu.Unlock()

	if cleared {
		c.emit(EventSignedOut, nil)
	}
}

func (c *Client) emit(event ChangeEvent, session *Session) {
	c.mu.Lock()
	listeners := make([]ChangeListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(event, session.clone())
	}
}

package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/mikepea/careadmin/pkg/careadmin/fallback"
)

// Factory builds the Context for a browser context id.
type Factory func(id string) *Context

// NewFactory returns a Factory wiring deps, a fresh provider session from
// newProvider and the context's slice of store.
func NewFactory(log logrus.FieldLogger, deps Deps, newProvider func() Provider, store fallback.Store) Factory {
	return func(id string) *Context {
		provider := newProvider()
		rec := NewReconciler(deps, provider, fallback.Scope(store, id))
		return NewContext(id, log, rec, provider)
	}
}

// Registry holds live contexts in two bounded pools. Authenticated contexts
// are kept apart from anonymous ones, so anonymous traffic can only push out
// other anonymous contexts. Evicted contexts are closed.
type Registry struct {
	log     logrus.FieldLogger
	factory Factory

	mu        sync.Mutex
	live      *lru.Cache[string, *Context]
	anonymous *lru.Cache[string, *Context]
	// moving is the context being transferred between pools; its removal
	// from the old pool must not close it.
	moving *Context
}

// NewRegistry creates a Registry holding at most size authenticated and size
// anonymous contexts.
func NewRegistry(log logrus.FieldLogger, size int, factory Factory) (*Registry, error) {
	r := &Registry{
		log:     log.WithField("component", "registry"),
		factory: factory,
	}

	evict := func(id string, c *Context) {
		if c == r.moving {
			return
		}
		c.Close()
	}

	live, err := lru.NewWithEvict(size, evict)
	if err != nil {
		return nil, fmt.Errorf("creating context cache: %w", err)
	}
	anonymous, err := lru.NewWithEvict(size, evict)
	if err != nil {
		return nil, fmt.Errorf("creating anonymous context cache: %w", err)
	}
	r.live = live
	r.anonymous = anonymous

	return r, nil
}

// ValidID reports whether id has the shape of a context id.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Get returns the live context with id.
func (r *Registry) Get(id string) (*Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(id)
}

func (r *Registry) getLocked(id string) (*Context, bool) {
	if c, ok := r.live.Get(id); ok {
		return c, true
	}
	return r.anonymous.Get(id)
}

// Acquire returns the context for id, creating an anonymous one when needed.
// Ids that are not UUIDs are replaced with a new one; a well-formed unknown id
// is kept so its fallback record can be recovered.
func (r *Registry) Acquire(id string) (*Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.getLocked(id); ok {
		return c, false
	}

	if !ValidID(id) {
		id = uuid.NewString()
	}

	c := r.factory(id)
	r.anonymous.Add(id, c)
	r.log.WithField("context_id", id).Debug("Context created")

	return c, true
}

// Settle files c into the pool matching its current state: authenticated
// contexts move to the live pool, signed out ones back to the anonymous pool.
func (r *Registry) Settle(c *Context) {
	authenticated := c.Snapshot().Authenticated()

	r.mu.Lock()
	defer r.mu.Unlock()

	from, to := r.live, r.anonymous
	if authenticated {
		from, to = r.anonymous, r.live
	}

	id := c.ID()
	if cur, ok := from.Peek(id); !ok || cur != c {
		return
	}

	r.moving = c
	from.Remove(id)
	r.moving = nil
	to.Add(id, c)
}

// Remove closes and forgets the context with id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live.Remove(id)
	r.anonymous.Remove(id)
}

// Len returns the number of live contexts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live.Len() + r.anonymous.Len()
}

// Close closes every context.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live.Purge()
	r.anonymous.Purge()
}

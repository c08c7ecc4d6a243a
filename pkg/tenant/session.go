package tenant

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pigeonworks-llc/section-ledger/pkg/names"
	"github.com/pigeonworks-llc/section-ledger/pkg/table"
)

var (
	// ErrNotSelected is returned when a session has no active context.
	ErrNotSelected = errors.New("no tenant context selected")

	// ErrUnknownContext is returned when selecting a key the registry does not know.
	ErrUnknownContext = errors.New("unknown tenant context")
)

// Directory looks tenant contexts up. *Registry implements it.
type Directory interface {
	List() ([]Context, error)
	GetByKey(key string) (Context, bool)
}

// Cache holds the data a session derived for its active context. It is owned by
// one session and not safe for concurrent use.
type Cache struct {
	tables    *table.Tables
	refreshed time.Time
	nameMaps  map[string]names.Map
	values    map[string]any
}

// Tables returns the cached fetch and when it was taken.
func (c *Cache) Tables() (*table.Tables, time.Time, bool) {
	if c.tables == nil {
		return nil, time.Time{}, false
	}
	return c.tables, c.refreshed, true
}

// SetTables replaces the cached fetch. Name maps derived from the previous fetch
// are dropped.
func (c *Cache) SetTables(t *table.Tables, at time.Time) {
	c.tables = t
	c.refreshed = at
	c.nameMaps = nil
}

// NameMap returns a cached name map.
func (c *Cache) NameMap(name string) (names.Map, bool) {
	m, ok := c.nameMaps[name]
	return m, ok
}

// SetNameMap caches a name map derived from the current fetch.
func (c *Cache) SetNameMap(name string, m names.Map) {
	if c.nameMaps == nil {
		c.nameMaps = map[string]names.Map{}
	}
	c.nameMaps[name] = m
}

// Value returns an arbitrary cached value.
func (c *Cache) Value(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// SetValue stores an arbitrary value.
func (c *Cache) SetValue(key string, v any) {
	if c.values == nil {
		c.values = map[string]any{}
	}
	c.values[key] = v
}

// Clear drops everything.
func (c *Cache) Clear() {
	*c = Cache{}
}

// Session is the per-user selection of a tenant context and its derived data.
type Session struct {
	id         string
	createdAt  time.Time
	contextKey string
	cache      Cache
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// ContextKey returns the selected key, or "".
func (s *Session) ContextKey() string { return s.contextKey }

// Cache returns the session cache.
func (s *Session) Cache() *Cache { return &s.cache }

// Current returns the selected context.
func (s *Session) Current(dir Directory) (Context, bool) {
	if s.contextKey == "" {
		return Context{}, false
	}
	return dir.GetByKey(s.contextKey)
}

// EnsureSelected returns the selected context, selecting the only available one
// when the pool holds exactly one.
func (s *Session) EnsureSelected(dir Directory) (Context, error) {
	if ctx, ok := s.Current(dir); ok {
		return ctx, nil
	}

	contexts, err := dir.List()
	if err != nil {
		return Context{}, err
	}
	if len(contexts) != 1 {
		return Context{}, ErrNotSelected
	}
	s.switchTo(contexts[0].Key)
	return contexts[0], nil
}

// Select makes key the active context. Moving to a different context purges the cache.
func (s *Session) Select(dir Directory, key string) (Context, error) {
	ctx, ok := dir.GetByKey(key)
	if !ok {
		return Context{}, fmt.Errorf("%w: %q", ErrUnknownContext, key)
	}
	s.switchTo(key)
	return ctx, nil
}

func (s *Session) switchTo(key string) {
	if s.contextKey != key {
		s.cache.Clear()
	}
	s.contextKey = key
}

// ClearData purges the cache but keeps the selection.
func (s *Session) ClearData() {
	s.cache.Clear()
}

// Reset purges the cache and the selection.
func (s *Session) Reset() {
	s.cache.Clear()
	s.contextKey = ""
}

// Credentials returns the token and base ID of the active context.
func (s *Session) Credentials(dir Directory) (token, baseID string, err error) {
	ctx, ok := s.Current(dir)
	if !ok {
		return "", "", ErrNotSelected
	}
	return ctx.Token, ctx.BaseID, nil
}

// SessionManager tracks open sessions.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewSessionManager creates an empty SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: map[string]*Session{}, now: time.Now}
}

// Open starts a session.
func (m *SessionManager) Open() *Session {
	s := &Session{id: uuid.NewString(), createdAt: m.now()}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.id] = s
	return s
}

// Get returns an open session.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close ends a session and drops its data.
func (m *SessionManager) Close(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Reset()
		delete(m.sessions, id)
	}
}

// Len returns the number of open sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

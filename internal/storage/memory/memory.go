// Package memory provides in-memory repository implementations, used as
// the default backend and by tests.
package memory

import (
	"context"
	"sync"
	"time"

	"presentsync/internal/presentation"
	"presentsync/internal/storage"
)

// SessionRepository is a concurrency-safe in-memory storage.SessionRepository.
type SessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*storage.Session
	states   map[string][]byte
}

// NewSessionRepository returns an empty in-memory session repository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]*storage.Session),
		states:   make(map[string][]byte),
	}
}

// Get implements storage.SessionRepository.
func (r *SessionRepository) Get(ctx context.Context, code string) (*storage.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[code]
	if !ok {
		return nil, storage.ErrNotFound
	}
	v := *s
	return &v, nil
}

// Put implements storage.SessionRepository.
func (r *SessionRepository) Put(ctx context.Context, s *storage.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := *s
	r.sessions[s.Code] = &v
	return nil
}

// Touch implements storage.SessionRepository.
func (r *SessionRepository) Touch(ctx context.Context, code string, lastActivity, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[code]
	if !ok {
		return storage.ErrNotFound
	}
	s.LastActivity = lastActivity
	s.ExpiresAt = expiresAt
	return nil
}

// Deactivate implements storage.SessionRepository.
func (r *SessionRepository) Deactivate(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[code]
	if !ok {
		return storage.ErrNotFound
	}
	s.Active = false
	s.Viewers = 0
	return nil
}

// IncrementViewers implements storage.SessionRepository. The mutex makes
// the read-modify-write atomic, matching the INCRBY semantics of the
// remote backend.
func (r *SessionRepository) IncrementViewers(ctx context.Context, code string, delta int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[code]
	if !ok {
		return 0, storage.ErrNotFound
	}
	s.Viewers += delta
	if s.Viewers < 0 {
		s.Viewers = 0
	}
	return s.Viewers, nil
}

// SaveState implements storage.SessionRepository.
func (r *SessionRepository) SaveState(ctx context.Context, code string, state []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[code]; !ok {
		return storage.ErrNotFound
	}
	v := make([]byte, len(state))
	copy(v, state)
	r.states[code] = v
	return nil
}

// LoadState implements storage.SessionRepository.
func (r *SessionRepository) LoadState(ctx context.Context, code string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[code]
	if !ok {
		return nil, storage.ErrNotFound
	}
	v := make([]byte, len(state))
	copy(v, state)
	return v, nil
}

// ActiveCodes implements storage.SessionRepository.
func (r *SessionRepository) ActiveCodes(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := make([]string, 0, len(r.sessions))
	for code, s := range r.sessions {
		if s.Active {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

// ContentRepository is an in-memory storage.ContentRepository.
type ContentRepository struct {
	mu      sync.RWMutex
	records map[string]*storage.Content
}

// NewContentRepository returns an empty in-memory content repository.
func NewContentRepository() *ContentRepository {
	return &ContentRepository{records: make(map[string]*storage.Content)}
}

// Put stores a content record.
func (r *ContentRepository) Put(c *storage.Content) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := *c
	r.records[c.ID] = &v
}

// Get implements storage.ContentRepository.
func (r *ContentRepository) Get(ctx context.Context, id string) (*storage.Content, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	v := *c
	return &v, nil
}

// ThemeRepository is an in-memory storage.ThemeRepository with one catalog
// per theme type.
type ThemeRepository struct {
	mu       sync.RWMutex
	catalogs map[presentation.ThemeType]map[string]*presentation.Theme
}

// NewThemeRepository returns an empty in-memory theme repository.
func NewThemeRepository() *ThemeRepository {
	return &ThemeRepository{catalogs: make(map[presentation.ThemeType]map[string]*presentation.Theme)}
}

// Put stores a theme in the catalog for its type.
func (r *ThemeRepository) Put(tt presentation.ThemeType, theme *presentation.Theme) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.catalogs[tt] == nil {
		r.catalogs[tt] = make(map[string]*presentation.Theme)
	}
	v := *theme
	r.catalogs[tt][theme.ID] = &v
}

// Get implements storage.ThemeRepository.
func (r *ThemeRepository) Get(ctx context.Context, tt presentation.ThemeType, id string) (*presentation.Theme, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	theme, ok := r.catalogs[tt][id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	v := *theme
	return &v, nil
}

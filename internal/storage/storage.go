// Package storage defines the durable-record contracts the presentation
// core depends on: session records by room code, content records by
// reference, and themes by id per catalog. Implementations can be
// in-memory or remote; callers never depend on which one is wired.
package storage

import (
	"context"
	"errors"
	"time"

	"presentsync/internal/presentation"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Session is the durable record for one active presentation session.
// ExpiresAt is always LastActivity plus the session TTL and is refreshed
// on every mutating operator action.
type Session struct {
	Code         string    `json:"code"`
	OperatorID   string    `json:"operatorId"`
	Active       bool      `json:"active"`
	LastActivity time.Time `json:"lastActivity"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Viewers      int64     `json:"viewers"`
}

// Content is a durable content record (song, bible passage, ...) that a
// slide may reference instead of carrying its payload inline.
type Content struct {
	ID      string                   `json:"id"`
	Type    presentation.ContentType `json:"type"`
	Title   string                   `json:"title"`
	Payload []byte                   `json:"payload"`
}

// SessionRepository persists session lifecycle state and the viewer
// counter. IncrementViewers must be atomic against the backing store (not
// an in-memory read-modify-write) so concurrent joins and leaves cannot
// lose updates.
type SessionRepository interface {
	Get(ctx context.Context, code string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	// Touch refreshes the activity timestamps of an active session.
	Touch(ctx context.Context, code string, lastActivity, expiresAt time.Time) error
	// Deactivate marks the session inactive and resets its viewer counter.
	Deactivate(ctx context.Context, code string) error
	// IncrementViewers atomically adds delta to the viewer counter and
	// returns the resulting value.
	IncrementViewers(ctx context.Context, code string, delta int64) (int64, error)
	// ActiveCodes lists the codes of sessions currently marked active.
	ActiveCodes(ctx context.Context) ([]string, error)
	// SaveState stores the serialized room state for best-effort
	// save-behind; LoadState retrieves it (ErrNotFound when absent).
	SaveState(ctx context.Context, code string, state []byte) error
	LoadState(ctx context.Context, code string) ([]byte, error)
}

// ContentRepository resolves slide content references.
type ContentRepository interface {
	Get(ctx context.Context, id string) (*Content, error)
}

// ThemeRepository resolves themes by id within one of the per-type
// catalogs.
type ThemeRepository interface {
	Get(ctx context.Context, tt presentation.ThemeType, id string) (*presentation.Theme, error)
}

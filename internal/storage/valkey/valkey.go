// Package valkey implements the storage repositories against a Valkey
// server. Session records, content and themes are stored as JSON values;
// the viewer counter lives in its own integer key so joins and leaves
// mutate it with INCRBY instead of a read-modify-write.
package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"presentsync/internal/presentation"
	"presentsync/internal/storage"
)

const activeSetKey = "sessions:active"

func sessionKey(code string) string { return "session:" + code }
func viewersKey(code string) string { return "session:" + code + ":viewers" }
func stateKey(code string) string   { return "session:" + code + ":state" }
func contentKey(id string) string   { return "content:" + id }
func themeKey(tt presentation.ThemeType, id string) string {
	return "theme:" + string(tt) + ":" + id
}

// Store wraps a Valkey client and implements all three repository
// interfaces.
type Store struct {
	client valkey.Client
}

// New connects to the Valkey server at addr.
func New(addr string) (*Store, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("connect valkey: %w", err)
	}
	return &Store{client: client}, nil
}

// Close releases the underlying client.
func (s *Store) Close() {
	s.client.Close()
}

// Get implements storage.SessionRepository.
func (s *Store) Get(ctx context.Context, code string) (*storage.Session, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(sessionKey(code)).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get session %s: %w", code, err)
	}
	b, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", code, err)
	}
	var sess storage.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", code, err)
	}
	// The counter is authoritative; the JSON copy is only a default.
	if n, err := s.client.Do(ctx, s.client.B().Get().Key(viewersKey(code)).Build()).AsInt64(); err == nil {
		sess.Viewers = n
	}
	return &sess, nil
}

// Put implements storage.SessionRepository.
func (s *Store) Put(ctx context.Context, sess *storage.Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.Code, err)
	}
	if err := s.client.Do(ctx, s.client.B().Set().Key(sessionKey(sess.Code)).Value(string(b)).Build()).Error(); err != nil {
		return fmt.Errorf("put session %s: %w", sess.Code, err)
	}
	cmd := s.client.B().Sadd().Key(activeSetKey).Member(sess.Code).Build()
	if !sess.Active {
		cmd = s.client.B().Srem().Key(activeSetKey).Member(sess.Code).Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("index session %s: %w", sess.Code, err)
	}
	return nil
}

// Touch implements storage.SessionRepository. Sessions have a single
// logical writer, so read-update-write on the JSON record is safe; only
// the viewer counter needs server-side atomicity.
func (s *Store) Touch(ctx context.Context, code string, lastActivity, expiresAt time.Time) error {
	sess, err := s.Get(ctx, code)
	if err != nil {
		return err
	}
	sess.LastActivity = lastActivity
	sess.ExpiresAt = expiresAt
	return s.Put(ctx, sess)
}

// Deactivate implements storage.SessionRepository.
func (s *Store) Deactivate(ctx context.Context, code string) error {
	sess, err := s.Get(ctx, code)
	if err != nil {
		return err
	}
	sess.Active = false
	sess.Viewers = 0
	if err := s.Put(ctx, sess); err != nil {
		return err
	}
	if err := s.client.Do(ctx, s.client.B().Del().Key(viewersKey(code)).Build()).Error(); err != nil {
		return fmt.Errorf("reset viewers %s: %w", code, err)
	}
	return nil
}

// IncrementViewers implements storage.SessionRepository using INCRBY, so
// concurrent joins and leaves never lose updates.
func (s *Store) IncrementViewers(ctx context.Context, code string, delta int64) (int64, error) {
	n, err := s.client.Do(ctx, s.client.B().Incrby().Key(viewersKey(code)).Increment(delta).Build()).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("increment viewers %s: %w", code, err)
	}
	if n < 0 {
		// Clamp after over-decrement from duplicate leaves.
		if err := s.client.Do(ctx, s.client.B().Set().Key(viewersKey(code)).Value("0").Build()).Error(); err != nil {
			return 0, fmt.Errorf("clamp viewers %s: %w", code, err)
		}
		n = 0
	}
	return n, nil
}

// SaveState implements storage.SessionRepository.
func (s *Store) SaveState(ctx context.Context, code string, state []byte) error {
	if err := s.client.Do(ctx, s.client.B().Set().Key(stateKey(code)).Value(string(state)).Build()).Error(); err != nil {
		return fmt.Errorf("save state %s: %w", code, err)
	}
	return nil
}

// LoadState implements storage.SessionRepository.
func (s *Store) LoadState(ctx context.Context, code string) ([]byte, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(stateKey(code)).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load state %s: %w", code, err)
	}
	b, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", code, err)
	}
	return b, nil
}

// ActiveCodes implements storage.SessionRepository.
func (s *Store) ActiveCodes(ctx context.Context) ([]string, error) {
	codes, err := s.client.Do(ctx, s.client.B().Smembers().Key(activeSetKey).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return codes, nil
}

type contentRepo struct{ s *Store }

// Content returns the store's content repository view.
func (s *Store) Content() storage.ContentRepository { return contentRepo{s} }

func (r contentRepo) Get(ctx context.Context, id string) (*storage.Content, error) {
	resp := r.s.client.Do(ctx, r.s.client.B().Get().Key(contentKey(id)).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get content %s: %w", id, err)
	}
	b, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("get content %s: %w", id, err)
	}
	var c storage.Content
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decode content %s: %w", id, err)
	}
	return &c, nil
}

type themeRepo struct{ s *Store }

// Themes returns the store's theme repository view.
func (s *Store) Themes() storage.ThemeRepository { return themeRepo{s} }

func (r themeRepo) Get(ctx context.Context, tt presentation.ThemeType, id string) (*presentation.Theme, error) {
	resp := r.s.client.Do(ctx, r.s.client.B().Get().Key(themeKey(tt, id)).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get theme %s/%s: %w", tt, id, err)
	}
	b, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("get theme %s/%s: %w", tt, id, err)
	}
	var theme presentation.Theme
	if err := json.Unmarshal(b, &theme); err != nil {
		return nil, fmt.Errorf("decode theme %s/%s: %w", tt, id, err)
	}
	return &theme, nil
}

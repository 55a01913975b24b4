package signature

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Session is a capture flow held on the server for one record.
type Session struct {
	ID        uuid.UUID
	RecordID  uuid.UUID
	Owner     string
	CreatedAt time.Time
	ExpiresAt time.Time

	mu   sync.Mutex // guards flow
	flow *Flow
}

// View is the JSON shape of a session.
type View struct {
	ID         uuid.UUID  `json:"id"`
	RecordID   uuid.UUID  `json:"record_id"`
	State      string     `json:"state"`
	Method     Method     `json:"method,omitempty"`
	HasPayload bool       `json:"has_payload"`
	Signature  *Signature `json:"signature,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

// view must be called with s.mu held.
func (s *Session) view() View {
	v := View{ID: s.ID, RecordID: s.RecordID, State: s.flow.State().Name(), ExpiresAt: s.ExpiresAt}
	switch st := s.flow.State().(type) {
	case Capturing:
		v.Method = st.Method
	case Ready:
		v.Method = st.Method
		v.HasPayload = true
	case Submitted:
		sig := st.Signature
		v.Method = sig.Method
		v.Signature = &sig
	}
	return v
}

// SessionStore keeps in-progress capture flows keyed by session ID. Each
// session is owned by the user who created it; other users see
// ErrSessionNotFound.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create starts a new flow for recordID.
func (s *SessionStore) Create(recordID uuid.UUID, owner string) View {
	now := s.now()
	sess := &Session{
		ID:        uuid.New(),
		RecordID:  recordID,
		Owner:     owner,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		flow:      NewFlow(),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view()
}

func (s *SessionStore) lookup(id uuid.UUID, owner string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Owner != owner {
		return nil, ErrSessionNotFound
	}
	if !s.now().Before(sess.ExpiresAt) {
		delete(s.sessions, id)
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Get returns the current view of a session.
func (s *SessionStore) Get(id uuid.UUID, owner string) (View, error) {
	return s.Do(id, owner, func(*Session, *Flow) error { return nil })
}

// Do runs fn with exclusive access to the session's flow and returns the
// resulting view. A successful call extends the session's expiry.
func (s *SessionStore) Do(id uuid.UUID, owner string, fn func(sess *Session, f *Flow) error) (View, error) {
	sess, err := s.lookup(id, owner)
	if err != nil {
		return View{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := fn(sess, sess.flow); err != nil {
		return sess.view(), err
	}
	// ExpiresAt is written with both locks held so Sweep and view may read it
	// under either.
	s.mu.Lock()
	sess.ExpiresAt = s.now().Add(s.ttl)
	s.mu.Unlock()
	return sess.view(), nil
}

// Delete drops a session. Missing sessions are ignored.
func (s *SessionStore) Delete(id uuid.UUID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Owner != owner {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Len is the number of live sessions, expired ones included until swept.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes sessions expired at now and returns how many were removed.
func (s *SessionStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StartSweeper sweeps expired sessions every interval until ctx is done.
func (s *SessionStore) StartSweeper(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(s.now()); n > 0 {
				logger.Debug().Int("removed", n).Msg("expired signature sessions swept")
			}
		}
	}
}

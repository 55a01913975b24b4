package signature

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestStore(ttl time.Duration) (*SessionStore, *time.Time) {
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	s := NewSessionStore(ttl)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestSessionStore_CreateAndGet(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	recordID := uuid.New()
	v := s.Create(recordID, "user-1")

	if v.State != "choosing_method" || v.RecordID != recordID {
		t.Fatalf("unexpected view %+v", v)
	}
	got, err := s.Get(v.ID, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != v.ID {
		t.Errorf("got session %s, want %s", got.ID, v.ID)
	}
}

func TestSessionStore_OtherOwnerCannotSee(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	v := s.Create(uuid.New(), "user-1")

	if _, err := s.Get(v.ID, "user-2"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := s.Delete(v.ID, "user-2"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on delete, got %v", err)
	}
}

func TestSessionStore_Expiry(t *testing.T) {
	s, now := newTestStore(time.Minute)
	v := s.Create(uuid.New(), "u")

	*now = now.Add(59 * time.Second)
	if _, err := s.Do(v.ID, "u", func(_ *Session, f *Flow) error { return f.Choose(MethodType) }); err != nil {
		t.Fatalf("do: %v", err)
	}

	// The successful call pushed expiry a full TTL past it.
	*now = now.Add(59 * time.Second)
	if _, err := s.Get(v.ID, "u"); err != nil {
		t.Fatalf("expected session to still be live: %v", err)
	}

	*now = now.Add(2 * time.Minute)
	if _, err := s.Get(v.ID, "u"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestSessionStore_FailedCallKeepsExpiry(t *testing.T) {
	s, now := newTestStore(time.Minute)
	v := s.Create(uuid.New(), "u")

	*now = now.Add(30 * time.Second)
	view, err := s.Do(v.ID, "u", func(_ *Session, f *Flow) error { return f.Type("x") })
	if !errors.Is(err, ErrNoMethod) {
		t.Fatalf("expected ErrNoMethod, got %v", err)
	}
	if !view.ExpiresAt.Equal(v.ExpiresAt) {
		t.Errorf("failed call must not extend expiry")
	}
}

func TestSessionStore_Sweep(t *testing.T) {
	s, now := newTestStore(time.Minute)
	s.Create(uuid.New(), "a")
	*now = now.Add(30 * time.Second)
	s.Create(uuid.New(), "b")

	if n := s.Sweep(now.Add(45 * time.Second)); n != 1 {
		t.Fatalf("expected 1 swept session, got %d", n)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 remaining session, got %d", s.Len())
	}
}

func TestSessionStore_StartSweeperStopsOnCancel(t *testing.T) {
	s := NewSessionStore(time.Millisecond)
	s.Create(uuid.New(), "a")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.StartSweeper(ctx, 5*time.Millisecond, zerolog.Nop())
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for s.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if s.Len() != 0 {
		t.Errorf("expected sweeper to remove the expired session")
	}
}

func TestSessionView_ReportsPayload(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	v := s.Create(uuid.New(), "u")

	got, err := s.Do(v.ID, "u", func(_ *Session, f *Flow) error {
		if err := f.Choose(MethodType); err != nil {
			return err
		}
		return f.Type("Sam")
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if got.State != "ready" || !got.HasPayload || got.Method != MethodType {
		t.Errorf("unexpected view %+v", got)
	}
}

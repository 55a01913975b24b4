package reminder

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type mockRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Reminder
	// markErr fails every MarkSent and MarkFailed call when set.
	markErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Reminder)}
}

func (m *mockRepo) add(r *Reminder) *Reminder {
	m.Create(context.Background(), r)
	return r
}

func (m *mockRepo) get(id uuid.UUID) Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.items[id]
}

func (m *mockRepo) Create(_ context.Context, r *Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	c := *r
	m.items[r.ID] = &c
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *r
	return &c, nil
}

func (m *mockRepo) Due(_ context.Context, now time.Time, limit int) ([]*Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Reminder
	for _, r := range m.items {
		if r.Status == StatusPending && !r.ScheduledFor.After(now) {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRepo) mark(id uuid.UUID, status Status, reason string, at *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	r, ok := m.items[id]
	if !ok || r.Status != StatusPending {
		return ErrNotFound
	}
	r.Status, r.Error, r.SentAt = status, reason, at
	return nil
}

func (m *mockRepo) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	return m.mark(id, StatusSent, "", &at)
}

func (m *mockRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	return m.mark(id, StatusFailed, reason, nil)
}

func (m *mockRepo) FailPending(_ context.Context, appointmentID uuid.UUID, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.items {
		if r.AppointmentID == appointmentID && r.Status == StatusPending {
			r.Status, r.Error = StatusFailed, reason
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) Reschedule(_ context.Context, appointmentID uuid.UUID, at time.Time, subject, body string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.items {
		if r.AppointmentID == appointmentID && r.Status == StatusPending {
			r.ScheduledFor, r.Subject, r.Body = at, subject, body
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter) ([]*Reminder, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Reminder
	for _, r := range m.items {
		if f.AppointmentID != uuid.Nil && r.AppointmentID != f.AppointmentID ||
			f.ClientID != uuid.Nil && r.ClientID != f.ClientID ||
			f.Status != "" && r.Status != f.Status {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.After(out[j].ScheduledFor) })
	total := len(out)
	if f.Offset < len(out) {
		out = out[f.Offset:]
	} else {
		out = nil
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *mockRepo) CountByStatus(context.Context) (map[Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Status]int)
	for _, r := range m.items {
		out[r.Status]++
	}
	return out, nil
}

// mockDeliverer fails deliveries to any address in fail and records the
// order of attempts.
type mockDeliverer struct {
	mu       sync.Mutex
	fail     map[string]bool
	attempts []string
	inFlight int
	peak     int
	delay    time.Duration
}

func (d *mockDeliverer) Deliver(_ context.Context, recipients []string, subject, _ string) error {
	d.mu.Lock()
	d.attempts = append(d.attempts, subject)
	d.inFlight++
	if d.inFlight > d.peak {
		d.peak = d.inFlight
	}
	d.mu.Unlock()

	if d.delay > 0 {
		time.Sleep(d.delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight--
	for _, r := range recipients {
		if d.fail[r] {
			return errors.New("mailbox unavailable")
		}
	}
	return nil
}

package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/domain/appointment"
	"github.com/ehr/records/internal/domain/record"
	"github.com/ehr/records/internal/domain/reminder"
	"github.com/ehr/records/internal/platform/auth"
)

type fakeRecords struct{ items []*record.Record }

func (f *fakeRecords) List(_ context.Context, filter record.ListFilter) ([]*record.Record, int, error) {
	var out []*record.Record
	for _, r := range f.items {
		if filter.CreatedBy != "" && r.CreatedBy != filter.CreatedBy {
			continue
		}
		out = append(out, r)
	}
	return out, len(out), nil
}

type fakeReminders struct {
	counts map[reminder.Status]int
	err    error
}

func (f *fakeReminders) CountByStatus(context.Context) (map[reminder.Status]int, error) {
	return f.counts, f.err
}

type fakeAppointments struct {
	items  []*appointment.Appointment
	window time.Duration
}

func (f *fakeAppointments) Upcoming(_ context.Context, _ time.Time, window time.Duration) ([]*appointment.Appointment, error) {
	f.window = window
	return f.items, nil
}

func newTestService(staffID uuid.UUID) (*Service, *fakeReminders, *fakeAppointments) {
	day := 24 * time.Hour
	records := &fakeRecords{items: []*record.Record{
		rec(record.KindConsentForm, record.StatusDraft, staffID.String(), 10*day),
		rec(record.KindConsentForm, record.StatusSigned, staffID.String(), day),
		rec(record.KindProgressNote, record.StatusPending, "someone-else", 3*day),
	}}
	reminders := &fakeReminders{counts: map[reminder.Status]int{reminder.StatusPending: 2, reminder.StatusFailed: 1}}
	other := uuid.New()
	appts := &fakeAppointments{items: []*appointment.Appointment{
		{ID: uuid.New(), StaffID: &staffID, Title: "Intake", Start: now.Add(time.Hour)},
		{ID: uuid.New(), StaffID: &other, Title: "Review", Start: now.Add(2 * time.Hour)},
	}}
	svc := NewService(records, reminders, appts, func(context.Context) int { return 2 }, zerolog.Nop())
	svc.now = func() time.Time { return now }
	return svc, reminders, appts
}

func TestQuality(t *testing.T) {
	svc, _, appts := newTestService(uuid.New())
	q, err := svc.Quality(context.Background())
	if err != nil {
		t.Fatalf("quality: %v", err)
	}
	if q.Records.Total != 3 || q.StaleAfterDays != 2 {
		t.Errorf("unexpected summary %+v", q)
	}
	if len(q.Stale) != 2 {
		t.Errorf("expected 2 stale records, got %d", len(q.Stale))
	}
	if q.Reminders[reminder.StatusPending] != 2 || q.Reminders[reminder.StatusSent] != 0 {
		t.Errorf("unexpected reminder counts %v", q.Reminders)
	}
	if len(q.Upcoming) != 2 || appts.window != UpcomingWindow {
		t.Errorf("unexpected upcoming %+v (window %s)", q.Upcoming, appts.window)
	}
}

func TestQuality_SourceError(t *testing.T) {
	svc, reminders, _ := newTestService(uuid.New())
	reminders.err = errors.New("db down")
	if _, err := svc.Quality(context.Background()); !errors.Is(err, reminders.err) {
		t.Fatalf("expected wrapped source error, got %v", err)
	}
}

func TestStaff(t *testing.T) {
	staffID := uuid.New()
	svc, _, _ := newTestService(staffID)
	s, err := svc.Staff(context.Background(), staffID.String())
	if err != nil {
		t.Fatalf("staff: %v", err)
	}
	if s.Records.Total != 2 || len(s.Stale) != 1 {
		t.Errorf("unexpected records %+v stale %+v", s.Records, s.Stale)
	}
	if len(s.Upcoming) != 1 || s.Upcoming[0].Title != "Intake" {
		t.Errorf("unexpected upcoming %+v", s.Upcoming)
	}

	// Non-account ids still get their record counts.
	s, err = svc.Staff(context.Background(), "someone-else")
	if err != nil || s.Records.Total != 1 || len(s.Upcoming) != 0 {
		t.Errorf("unexpected summary %+v, %v", s, err)
	}
}

func TestHandler_Mine(t *testing.T) {
	staffID := uuid.New()
	svc, _, _ := newTestService(staffID)
	h := NewHandler(svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/dashboard/me", nil)
	req = req.WithContext(auth.WithIdentity(context.Background(), staffID.String(), auth.RoleClinician))
	rec := httptest.NewRecorder()
	if err := h.Mine(e.NewContext(req, rec)); err != nil {
		t.Fatalf("mine: %v", err)
	}
	var s StaffSummary
	json.Unmarshal(rec.Body.Bytes(), &s)
	if s.StaffID != staffID.String() || s.Records.Total != 2 {
		t.Errorf("unexpected summary %+v", s)
	}

	req = httptest.NewRequest(http.MethodGet, "/dashboard/me", nil)
	err := h.Mine(e.NewContext(req, httptest.NewRecorder()))
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

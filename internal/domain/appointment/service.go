package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/domain/reminder"
	"github.com/ehr/records/internal/platform/validation"
)

// Reminders keeps an appointment's reminder in step with it.
type Reminders interface {
	ScheduleFor(ctx context.Context, t reminder.Target) (*reminder.Reminder, error)
	Reschedule(ctx context.Context, t reminder.Target, moved bool) error
	Cancel(ctx context.Context, appointmentID uuid.UUID) error
}

// StaffDirectory resolves staff display names for reminder text.
type StaffDirectory interface {
	Name(ctx context.Context, id uuid.UUID) (string, error)
}

type Service struct {
	repo      Repository
	reminders Reminders
	staff     StaffDirectory
	logger    zerolog.Logger
}

func NewService(repo Repository, reminders Reminders, staff StaffDirectory, logger zerolog.Logger) *Service {
	return &Service{repo: repo, reminders: reminders, staff: staff, logger: logger}
}

func validate(a *Appointment) error {
	if a.ClientID == uuid.Nil {
		return validation.NewFieldError("client_id", "client_id is required")
	}
	return validation.Struct(a)
}

func (s *Service) target(ctx context.Context, a *Appointment) reminder.Target {
	t := reminder.Target{
		AppointmentID: a.ID,
		ClientID:      a.ClientID,
		ClientName:    a.ClientName,
		Title:         a.Title,
		Location:      a.Location,
		Start:         a.Start,
	}
	if a.ContactEmail != "" {
		t.Recipients = []string{a.ContactEmail}
	}
	if a.StaffID != nil && s.staff != nil {
		name, err := s.staff.Name(ctx, *a.StaffID)
		if err != nil {
			s.logger.Warn().Err(err).Str("staff_id", a.StaffID.String()).Msg("staff name lookup failed")
		}
		t.StaffName = name
	}
	return t
}

// Create stores a scheduled appointment together with its reminder.
func (s *Service) Create(ctx context.Context, a *Appointment) error {
	a.Title = strings.TrimSpace(a.Title)
	a.ContactEmail = strings.TrimSpace(a.ContactEmail)
	if a.Status != "" && a.Status != StatusScheduled {
		return fmt.Errorf("%w: appointments are created as scheduled", ErrInvalidTransition)
	}
	a.Status = StatusScheduled
	if err := validate(a); err != nil {
		return err
	}

	return s.repo.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, a); err != nil {
			return err
		}
		if _, err := s.reminders.ScheduleFor(ctx, s.target(ctx, a)); err != nil {
			return fmt.Errorf("schedule reminder: %w", err)
		}
		return nil
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*Appointment, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, validation.NewFieldError("status", fmt.Sprintf("must be one of %v", Statuses))
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return nil, 0, validation.NewFieldError("to", "to must be after from")
	}
	return s.repo.List(ctx, f)
}

// UpdateInput changes a scheduled appointment. Nil fields are left alone.
type UpdateInput struct {
	StaffID      *uuid.UUID `json:"staff_id"`
	ClientName   *string    `json:"client_name"`
	ContactEmail *string    `json:"contact_email"`
	Title        *string    `json:"title"`
	Location     *string    `json:"location"`
	Start        *time.Time `json:"start"`
	End          *time.Time `json:"end"`
	Notes        *string    `json:"notes"`
}

// Update edits a scheduled appointment. Moving it, or changing the details
// quoted in the reminder, moves and rewrites the pending reminder.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Appointment, error) {
	var out *Appointment
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != StatusScheduled {
			return ErrNotScheduled
		}
		before := *a

		if in.StaffID != nil {
			a.StaffID = in.StaffID
		}
		set := func(dst *string, v *string) {
			if v != nil {
				*dst = strings.TrimSpace(*v)
			}
		}
		set(&a.ClientName, in.ClientName)
		set(&a.ContactEmail, in.ContactEmail)
		set(&a.Title, in.Title)
		set(&a.Location, in.Location)
		set(&a.Notes, in.Notes)
		if in.Start != nil {
			a.Start = *in.Start
		}
		if in.End != nil {
			a.End = *in.End
		}
		if err := validate(a); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, a); err != nil {
			return err
		}

		if reminderChanged(&before, a) {
			if err := s.reminders.Reschedule(ctx, s.target(ctx, a), !before.Start.Equal(a.Start)); err != nil {
				return fmt.Errorf("reschedule reminder: %w", err)
			}
		}
		out = a
		return nil
	})
	return out, err
}

func reminderChanged(before, after *Appointment) bool {
	return !before.Start.Equal(after.Start) ||
		before.Title != after.Title ||
		before.Location != after.Location ||
		before.ClientName != after.ClientName ||
		before.ContactEmail != after.ContactEmail ||
		!sameStaff(before.StaffID, after.StaffID)
}

func sameStaff(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Cancel marks a scheduled appointment cancelled. Its pending reminders are
// failed with reminder.CancelledReason and never delivered.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.SetStatus(ctx, id, StatusCancelled)
}

// SetStatus closes a scheduled appointment as completed, cancelled or no_show.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	if !status.Valid() || status == StatusScheduled {
		return nil, fmt.Errorf("%w: to %q", ErrInvalidTransition, status)
	}
	var out *Appointment
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != StatusScheduled {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, a.Status, status)
		}
		a.Status = status
		if err := s.repo.Update(ctx, a); err != nil {
			return err
		}
		if status == StatusCancelled {
			if err := s.reminders.Cancel(ctx, a.ID); err != nil {
				return fmt.Errorf("cancel reminders: %w", err)
			}
		}
		out = a
		return nil
	})
	return out, err
}

// Calendar returns the month grid with the appointments matching f placed on
// their days.
func (s *Service) Calendar(ctx context.Context, year int, month time.Month, weekStart time.Weekday, loc *time.Location, f ListFilter) (*Grid, error) {
	g := MonthGrid(year, month, weekStart, loc)
	f.From, f.To = g.Range()
	f.Limit, f.Offset = 0, 0
	appts, _, err := s.List(ctx, f)
	if err != nil {
		return nil, err
	}
	GroupByDay(g, appts)
	return g, nil
}

// Upcoming lists scheduled appointments starting within the next window.
func (s *Service) Upcoming(ctx context.Context, now time.Time, window time.Duration) ([]*Appointment, error) {
	items, _, err := s.repo.List(ctx, ListFilter{Status: StatusScheduled, From: now, To: now.Add(window)})
	return items, err
}

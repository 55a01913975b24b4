package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/records/internal/domain/appointment"
	"github.com/ehr/records/internal/domain/record"
	"github.com/ehr/records/internal/domain/reminder"
)

// Records lists records. Implemented by *record.Service.
type Records interface {
	List(ctx context.Context, f record.ListFilter) ([]*record.Record, int, error)
}

// Reminders counts reminders. Implemented by reminder.Repository.
type Reminders interface {
	CountByStatus(ctx context.Context) (map[reminder.Status]int, error)
}

// Appointments lists scheduled appointments. Implemented by *appointment.Service.
type Appointments interface {
	Upcoming(ctx context.Context, now time.Time, window time.Duration) ([]*appointment.Appointment, error)
}

// StaleAfterFunc supplies the stale threshold in days.
type StaleAfterFunc func(ctx context.Context) int

type Service struct {
	records      Records
	reminders    Reminders
	appointments Appointments
	staleAfter   StaleAfterFunc
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(records Records, reminders Reminders, appointments Appointments, staleAfter StaleAfterFunc, logger zerolog.Logger) *Service {
	if staleAfter == nil {
		staleAfter = func(context.Context) int { return 7 }
	}
	return &Service{
		records:      records,
		reminders:    reminders,
		appointments: appointments,
		staleAfter:   staleAfter,
		logger:       logger,
		now:          time.Now,
	}
}

// Quality builds the organization-wide summary. The three sources are read
// concurrently.
func (s *Service) Quality(ctx context.Context) (*QualitySummary, error) {
	now := s.now()
	days := s.staleAfter(ctx)

	var (
		records  []*record.Record
		counts   map[reminder.Status]int
		upcoming []*appointment.Appointment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if records, _, err = s.records.List(gctx, record.ListFilter{}); err != nil {
			return fmt.Errorf("list records: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if counts, err = s.reminders.CountByStatus(gctx); err != nil {
			return fmt.Errorf("count reminders: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if upcoming, err = s.appointments.Upcoming(gctx, now, UpcomingWindow); err != nil {
			return fmt.Errorf("list appointments: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &QualitySummary{
		GeneratedAt:    now,
		Records:        CountRecords(records),
		StaleAfterDays: days,
		Stale:          StaleUnsigned(records, now, days),
		Reminders:      ReminderCounts(counts),
		Upcoming:       Upcoming(upcoming, nil),
	}
	s.logger.Debug().Int("records", summary.Records.Total).Int("stale", len(summary.Stale)).Msg("quality summary built")
	return summary, nil
}

// Staff builds the summary for the records created by staffID. Appointments
// are matched when staffID is a staff account id.
func (s *Service) Staff(ctx context.Context, staffID string) (*StaffSummary, error) {
	now := s.now()
	days := s.staleAfter(ctx)

	records, _, err := s.records.List(ctx, record.ListFilter{CreatedBy: staffID})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	upcoming := []UpcomingAppointment{}
	if id, err := uuid.Parse(staffID); err == nil {
		appts, err := s.appointments.Upcoming(ctx, now, UpcomingWindow)
		if err != nil {
			return nil, fmt.Errorf("list appointments: %w", err)
		}
		upcoming = Upcoming(appts, &id)
	}

	return &StaffSummary{
		StaffID:        staffID,
		GeneratedAt:    now,
		Records:        CountRecords(records),
		StaleAfterDays: days,
		Stale:          StaleUnsigned(records, now, days),
		Upcoming:       upcoming,
	}, nil
}

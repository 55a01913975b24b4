package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/platform/notification"
)

// Renderer turns a template and its data into an email subject and body.
type Renderer interface {
	Render(templateID string, data map[string]string) (subject, body string, err error)
}

// Options are the organization settings that shape reminders.
type Options struct {
	Enabled      bool
	Location     *time.Location
	DateLayout   string
	Organization string
	SenderName   string
}

// OptionsFunc resolves Options for a request.
type OptionsFunc func(ctx context.Context) Options

// Target is the appointment a reminder is scheduled for.
type Target struct {
	AppointmentID uuid.UUID
	ClientID      uuid.UUID
	ClientName    string
	StaffName     string
	Recipients    []string
	Title         string
	Location      string
	Start         time.Time
}

// Scheduler creates, moves and cancels the reminders of appointments.
type Scheduler struct {
	repo     Repository
	renderer Renderer
	options  OptionsFunc
	logger   zerolog.Logger
}

func NewScheduler(repo Repository, renderer Renderer, options OptionsFunc, logger zerolog.Logger) *Scheduler {
	if options == nil {
		options = func(context.Context) Options { return Options{Enabled: true} }
	}
	return &Scheduler{repo: repo, renderer: renderer, options: options, logger: logger}
}

func (s *Scheduler) render(opts Options, t Target) (string, string, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	layout := opts.DateLayout
	if layout == "" {
		layout = "2006-01-02"
	}
	signoff := opts.SenderName
	if signoff == "" {
		signoff = opts.Organization
	}
	staff := t.StaffName
	if staff == "" {
		staff = "your care team"
	}
	start := t.Start.In(loc)
	return s.renderer.Render(notification.TemplateAppointmentReminder, map[string]string{
		"client_name":  t.ClientName,
		"title":        t.Title,
		"date":         start.Format(layout),
		"time":         start.Format("15:04 MST"),
		"staff_name":   staff,
		"location":     t.Location,
		"organization": signoff,
	})
}

// ScheduleFor stores a pending reminder due ComputeReminderTime(t.Start).
// It returns nil without storing anything when reminder emails are disabled
// or the target has no recipients.
func (s *Scheduler) ScheduleFor(ctx context.Context, t Target) (*Reminder, error) {
	opts := s.options(ctx)
	recipients := cleanRecipients(t.Recipients)
	if !opts.Enabled || len(recipients) == 0 {
		s.logger.Debug().Str("appointment_id", t.AppointmentID.String()).
			Bool("enabled", opts.Enabled).Msg("no reminder scheduled")
		return nil, nil
	}

	subject, body, err := s.render(opts, t)
	if err != nil {
		return nil, fmt.Errorf("render reminder: %w", err)
	}
	r := &Reminder{
		AppointmentID: t.AppointmentID,
		ClientID:      t.ClientID,
		Recipients:    recipients,
		Subject:       subject,
		Body:          body,
		ScheduledFor:  ComputeReminderTime(t.Start).UTC(),
		Status:        StatusPending,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}
	return r, nil
}

// Reschedule moves the pending reminders of an appointment to its new start
// and re-renders their text. When the start moved and no reminder is pending,
// a new one is created; an edit that keeps the start never replaces a
// reminder that was already sent.
func (s *Scheduler) Reschedule(ctx context.Context, t Target, moved bool) error {
	subject, body, err := s.render(s.options(ctx), t)
	if err != nil {
		return fmt.Errorf("render reminder: %w", err)
	}
	n, err := s.repo.Reschedule(ctx, t.AppointmentID, ComputeReminderTime(t.Start).UTC(), subject, body)
	if err != nil {
		return err
	}
	if n > 0 || !moved {
		return nil
	}
	_, err = s.ScheduleFor(ctx, t)
	return err
}

// Cancel fails the pending reminders of an appointment so they are never
// delivered.
func (s *Scheduler) Cancel(ctx context.Context, appointmentID uuid.UUID) error {
	n, err := s.repo.FailPending(ctx, appointmentID, CancelledReason)
	if err != nil {
		return err
	}
	s.logger.Debug().Str("appointment_id", appointmentID.String()).Int("reminders", n).Msg("reminders cancelled")
	return nil
}

func cleanRecipients(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		key := strings.ToLower(r)
		if r == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

package settings

import (
	"context"
	"time"

	"github.com/ehr/records/internal/domain/appointment"
	"github.com/ehr/records/internal/domain/record"
	"github.com/ehr/records/internal/domain/reminder"
	"github.com/ehr/records/internal/platform/pdf"
	"github.com/ehr/records/pkg/pagination"
)

// RecordLayout resolves the export layout from the caller's settings with
// the configured margin.
func (s *Service) RecordLayout(marginMM float64) record.LayoutFunc {
	return func(ctx context.Context) record.Layout {
		st := s.Effective(ctx)
		geo, err := pdf.GeometryFor(st.PageSize, marginMM)
		if err != nil {
			s.logger.Warn().Err(err).Str("page_size", st.PageSize).Msg("falling back to Letter")
			geo = pdf.Letter
		}
		return record.Layout{
			Geometry:     geo,
			Location:     st.Location(),
			DateLayout:   st.GoDateLayout(),
			Organization: s.Organization(ctx).OrganizationName,
		}
	}
}

// ListDefaults supplies page size and sort for record lists.
func (s *Service) ListDefaults() record.ListDefaults {
	return func(ctx context.Context) (int, pagination.Sort) {
		st := s.Effective(ctx)
		return st.ItemsPerPage, st.RecordSort()
	}
}

// ReminderOptions supplies the organization's reminder settings. Reminders
// go to clients, so personal settings do not apply.
func (s *Service) ReminderOptions() reminder.OptionsFunc {
	return func(ctx context.Context) reminder.Options {
		st := s.Organization(ctx)
		return reminder.Options{
			Enabled:      st.ReminderEmailsEnabled,
			Location:     st.Location(),
			DateLayout:   st.GoDateLayout(),
			Organization: st.OrganizationName,
			SenderName:   st.ReminderSenderName,
		}
	}
}

// CalendarLocation supplies the caller's time zone for calendar views.
func (s *Service) CalendarLocation() appointment.LocationFunc {
	return func(ctx context.Context) *time.Location {
		return s.Effective(ctx).Location()
	}
}

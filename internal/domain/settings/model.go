package settings

import (
	"strings"
	"time"

	"github.com/ehr/records/pkg/pagination"
)

// Date formats offered in the settings screen, mapped to Go layouts.
var dateLayouts = map[string]string{
	"YYYY-MM-DD": "2006-01-02",
	"MM/DD/YYYY": "01/02/2006",
	"DD/MM/YYYY": "02/01/2006",
	"DD.MM.YYYY": "02.01.2006",
}

// Settings are the organization-wide preferences. A user may save a personal
// copy that overrides them for that user.
type Settings struct {
	OrganizationName      string `json:"organization_name" yaml:"organization_name" validate:"max=200"`
	Timezone              string `json:"timezone" yaml:"timezone" validate:"required,timezone"`
	DateFormat            string `json:"date_format" yaml:"date_format" validate:"required,oneof=YYYY-MM-DD MM/DD/YYYY DD/MM/YYYY DD.MM.YYYY"`
	PageSize              string `json:"page_size" yaml:"page_size" validate:"required,oneof=A4 Letter"`
	WeekStart             string `json:"week_start" yaml:"week_start" validate:"required,oneof=sunday monday"`
	ReminderEmailsEnabled bool   `json:"reminder_emails_enabled" yaml:"reminder_emails_enabled"`
	ReminderSenderName    string `json:"reminder_sender_name" yaml:"reminder_sender_name" validate:"max=100"`
	DefaultRecordSort     string `json:"default_record_sort" yaml:"default_record_sort" validate:"required,oneof=created_at -created_at updated_at -updated_at title -title"`
	ItemsPerPage          int    `json:"items_per_page" yaml:"items_per_page" validate:"min=5,max=100"`
	StaleAfterDays        int    `json:"stale_after_days" yaml:"stale_after_days" validate:"min=1,max=365"`
}

// Defaults returns the settings used before anything is saved.
func Defaults() Settings {
	return Settings{
		OrganizationName:      "Client Records",
		Timezone:              "UTC",
		DateFormat:            "YYYY-MM-DD",
		PageSize:              "Letter",
		WeekStart:             "sunday",
		ReminderEmailsEnabled: true,
		DefaultRecordSort:     "-created_at",
		ItemsPerPage:          20,
		StaleAfterDays:        7,
	}
}

// GoDateLayout returns the Go time layout for DateFormat.
func (s Settings) GoDateLayout() string {
	if l, ok := dateLayouts[s.DateFormat]; ok {
		return l
	}
	return "2006-01-02"
}

// Location loads Timezone, falling back to UTC.
func (s Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RecordSort parses DefaultRecordSort.
func (s Settings) RecordSort() pagination.Sort {
	field := strings.TrimPrefix(s.DefaultRecordSort, "-")
	if field == "" {
		return pagination.Sort{Field: "created_at", Desc: true}
	}
	return pagination.Sort{Field: field, Desc: strings.HasPrefix(s.DefaultRecordSort, "-")}
}

// FirstWeekday converts WeekStart.
func (s Settings) FirstWeekday() time.Weekday {
	if s.WeekStart == "monday" {
		return time.Monday
	}
	return time.Sunday
}

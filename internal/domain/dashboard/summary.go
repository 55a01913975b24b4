package dashboard

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/domain/appointment"
	"github.com/ehr/records/internal/domain/record"
	"github.com/ehr/records/internal/domain/reminder"
)

// UpcomingWindow is how far ahead summaries list appointments.
const UpcomingWindow = 7 * 24 * time.Hour

// RecordCounts counts records by kind and status. Every kind and status is
// present, with zero counts included.
type RecordCounts struct {
	ByKind map[record.Kind]map[record.Status]int `json:"by_kind"`
	Total  int                                   `json:"total"`
}

// StaleRecord is an unsigned record older than the stale threshold.
type StaleRecord struct {
	ID        uuid.UUID     `json:"id"`
	Kind      record.Kind   `json:"kind"`
	Title     string        `json:"title"`
	ClientID  uuid.UUID     `json:"client_id"`
	Status    record.Status `json:"status"`
	CreatedBy string        `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
	AgeDays   int           `json:"age_days"`
}

// UpcomingAppointment is the dashboard view of a scheduled appointment.
type UpcomingAppointment struct {
	ID       uuid.UUID  `json:"id"`
	ClientID uuid.UUID  `json:"client_id"`
	StaffID  *uuid.UUID `json:"staff_id,omitempty"`
	Title    string     `json:"title"`
	Start    time.Time  `json:"start"`
}

// QualitySummary is the organization-wide dashboard.
type QualitySummary struct {
	GeneratedAt    time.Time               `json:"generated_at"`
	Records        RecordCounts            `json:"records"`
	StaleAfterDays int                     `json:"stale_after_days"`
	Stale          []StaleRecord           `json:"stale"`
	Reminders      map[reminder.Status]int `json:"reminders"`
	Upcoming       []UpcomingAppointment   `json:"upcoming"`
}

// StaffSummary is the caseload of one staff member: the records they
// created and their upcoming appointments.
type StaffSummary struct {
	StaffID        string                `json:"staff_id"`
	GeneratedAt    time.Time             `json:"generated_at"`
	Records        RecordCounts          `json:"records"`
	StaleAfterDays int                   `json:"stale_after_days"`
	Stale          []StaleRecord         `json:"stale"`
	Upcoming       []UpcomingAppointment `json:"upcoming"`
}

// CountRecords tallies records by kind and status.
func CountRecords(records []*record.Record) RecordCounts {
	c := RecordCounts{ByKind: make(map[record.Kind]map[record.Status]int, len(record.Kinds))}
	for _, k := range record.Kinds {
		row := make(map[record.Status]int, len(record.Statuses))
		for _, s := range record.Statuses {
			row[s] = 0
		}
		c.ByKind[k] = row
	}
	for _, r := range records {
		row, ok := c.ByKind[r.Kind]
		if !ok {
			continue
		}
		row[r.Status]++
		c.Total++
	}
	return c
}

// StaleUnsigned returns draft and pending records created at least
// staleAfterDays before now, oldest first.
func StaleUnsigned(records []*record.Record, now time.Time, staleAfterDays int) []StaleRecord {
	cutoff := now.AddDate(0, 0, -staleAfterDays)
	out := []StaleRecord{}
	for _, r := range records {
		if r.Status != record.StatusDraft && r.Status != record.StatusPending {
			continue
		}
		if r.CreatedAt.After(cutoff) {
			continue
		}
		out = append(out, StaleRecord{
			ID:        r.ID,
			Kind:      r.Kind,
			Title:     r.Title,
			ClientID:  r.ClientID,
			Status:    r.Status,
			CreatedBy: r.CreatedBy,
			CreatedAt: r.CreatedAt,
			AgeDays:   int(now.Sub(r.CreatedAt).Hours() / 24),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Upcoming converts appointments for display, soonest first. A non-nil
// staffID keeps only that staff member's appointments.
func Upcoming(appts []*appointment.Appointment, staffID *uuid.UUID) []UpcomingAppointment {
	out := []UpcomingAppointment{}
	for _, a := range appts {
		if staffID != nil && (a.StaffID == nil || *a.StaffID != *staffID) {
			continue
		}
		out = append(out, UpcomingAppointment{
			ID:       a.ID,
			ClientID: a.ClientID,
			StaffID:  a.StaffID,
			Title:    a.Title,
			Start:    a.Start,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// ReminderCounts fills in zero counts for statuses missing from counts.
func ReminderCounts(counts map[reminder.Status]int) map[reminder.Status]int {
	out := make(map[reminder.Status]int, len(reminder.Statuses))
	for _, s := range reminder.Statuses {
		out[s] = counts[s]
	}
	return out
}

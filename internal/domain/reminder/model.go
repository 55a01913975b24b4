package reminder

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// LeadTime is how long before an appointment its reminder goes out.
const LeadTime = 24 * time.Hour

// CancelledReason is the error recorded on reminders of cancelled appointments.
const CancelledReason = "appointment cancelled"

var ErrNotFound = errors.New("reminder not found")

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Statuses lists every reminder status.
var Statuses = []Status{StatusPending, StatusSent, StatusFailed}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed:
		return true
	}
	return false
}

type Reminder struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	ClientID      uuid.UUID  `json:"client_id"`
	Recipients    []string   `json:"recipients"`
	Subject       string     `json:"subject"`
	Body          string     `json:"body"`
	ScheduledFor  time.Time  `json:"scheduled_for"`
	Status        Status     `json:"status"`
	Error         string     `json:"error,omitempty"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ComputeReminderTime returns the moment the reminder for an appointment
// starting at start is due: exactly LeadTime earlier.
func ComputeReminderTime(start time.Time) time.Time {
	return start.Add(-LeadTime)
}

// Sendable reports whether the reminder is pending and due at now.
func (r *Reminder) Sendable(now time.Time) bool {
	return r.Status == StatusPending && !now.Before(r.ScheduledFor)
}

package appointment

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrInvalidTransition = errors.New("invalid appointment status change")
	ErrNotScheduled      = errors.New("only scheduled appointments can be changed")
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

var Statuses = []Status{StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Appointment is a scheduled session with a client. Only scheduled
// appointments can be edited; every other status is final.
type Appointment struct {
	ID           uuid.UUID  `json:"id"`
	ClientID     uuid.UUID  `json:"client_id"`
	StaffID      *uuid.UUID `json:"staff_id,omitempty"`
	ClientName   string     `json:"client_name"`
	ContactEmail string     `json:"contact_email" validate:"omitempty,email"`
	Title        string     `json:"title" validate:"notblank,max=200"`
	Location     string     `json:"location" validate:"max=200"`
	Start        time.Time  `json:"start" validate:"required"`
	End          time.Time  `json:"end" validate:"required,gtfield=Start"`
	Status       Status     `json:"status"`
	Notes        string     `json:"notes"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Duration is the scheduled length.
func (a *Appointment) Duration() time.Duration { return a.End.Sub(a.Start) }

// Upcoming reports whether a scheduled appointment starts in [now, now+within).
func (a *Appointment) Upcoming(now time.Time, within time.Duration) bool {
	return a.Status == StatusScheduled && !a.Start.Before(now) && a.Start.Before(now.Add(within))
}

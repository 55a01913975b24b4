package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows List. Zero fields match everything.
type ListFilter struct {
	AppointmentID uuid.UUID
	ClientID      uuid.UUID
	Status        Status
	Limit         int
	Offset        int
}

type Repository interface {
	Create(ctx context.Context, r *Reminder) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error)
	// Due returns up to limit pending reminders scheduled at or before now,
	// oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]*Reminder, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	// FailPending marks every pending reminder of an appointment failed and
	// returns how many changed.
	FailPending(ctx context.Context, appointmentID uuid.UUID, reason string) (int, error)
	// Reschedule moves the pending reminders of an appointment to at and
	// replaces their text.
	Reschedule(ctx context.Context, appointmentID uuid.UUID, at time.Time, subject, body string) (int, error)
	List(ctx context.Context, f ListFilter) ([]*Reminder, int, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

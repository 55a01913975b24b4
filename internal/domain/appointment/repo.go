package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows List. From and To bound the start time as [From, To).
type ListFilter struct {
	ClientID uuid.UUID
	StaffID  uuid.UUID
	Status   Status
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	// List returns matching appointments ordered by start, and the total count.
	List(ctx context.Context, f ListFilter) ([]*Appointment, int, error)
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

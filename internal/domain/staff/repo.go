package staff

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Role       string
	ActiveOnly bool
	Limit      int
	Offset     int
}

type Repository interface {
	Create(ctx context.Context, s *Staff) error
	GetByID(ctx context.Context, id uuid.UUID) (*Staff, error)
	GetByEmail(ctx context.Context, email string) (*Staff, error)
	Update(ctx context.Context, s *Staff) error
	SetPasswordHash(ctx context.Context, id uuid.UUID, hash []byte) error
	List(ctx context.Context, f ListFilter) ([]*Staff, int, error)
}

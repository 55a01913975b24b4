package record

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/domain/signature"
	"github.com/ehr/records/pkg/pagination"
)

// SortFields are the columns List may order by.
var SortFields = []string{"created_at", "updated_at", "title"}

// DefaultSort lists newest records first.
var DefaultSort = pagination.Sort{Field: "created_at", Desc: true}

// ListFilter narrows List. Zero fields match everything.
type ListFilter struct {
	ClientID  uuid.UUID
	Kind      Kind
	Status    Status
	Query     string
	CreatedBy string
	Sort      pagination.Sort
	Limit     int
	Offset    int
}

type Repository interface {
	Create(ctx context.Context, r *Record) error
	// GetByID loads the record with its signatures.
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	// GetForUpdate is GetByID that also locks the row for the enclosing
	// transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Record, error)
	// Update writes the record and bumps its version. It fails with
	// ErrConflict when the stored version differs from r.VersionID.
	Update(ctx context.Context, r *Record) error
	AddSignature(ctx context.Context, id uuid.UUID, sig signature.Signature) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns matching records without signatures, and the total count.
	// A zero Limit returns every match.
	List(ctx context.Context, f ListFilter) ([]*Record, int, error)
	// InTx runs fn in a transaction shared by repository calls made with its ctx.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

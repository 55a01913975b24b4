package record

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/domain/signature"
)

// SignatureTarget lets signature sessions read and sign records.
type SignatureTarget struct {
	svc *Service
}

func NewSignatureTarget(svc *Service) *SignatureTarget {
	return &SignatureTarget{svc: svc}
}

func translate(err error) error {
	if errors.Is(err, ErrNotFound) {
		return signature.ErrRecordNotFound
	}
	return err
}

// RequiresRelationship is true for consent forms that must be signed by a
// guardian.
func (t *SignatureTarget) RequiresRelationship(ctx context.Context, id uuid.UUID) (bool, error) {
	r, err := t.svc.Get(ctx, id)
	if err != nil {
		return false, translate(err)
	}
	consent, ok := r.Body.(ConsentForm)
	return ok && consent.RequiresGuardian, nil
}

func (t *SignatureTarget) AppendSignature(ctx context.Context, id uuid.UUID, sig signature.Signature) error {
	_, err := t.svc.AppendSignature(ctx, id, sig)
	return translate(err)
}

package record

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/domain/signature"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/validation"
)

// Archiver stores a rendered copy of a record once it is signed.
type Archiver interface {
	Archive(ctx context.Context, r *Record) error
}

// Publisher receives record events after they are committed.
type Publisher interface {
	Notify(ctx context.Context, topic, eventType, subject string, data any)
}

// Topic is the publisher topic record events are sent on.
const Topic = "records"

// StatusChange is the payload of record status events.
type StatusChange struct {
	ID       uuid.UUID `json:"id"`
	ClientID uuid.UUID `json:"client_id"`
	Kind     Kind      `json:"kind"`
	From     Status    `json:"from,omitempty"`
	Status   Status    `json:"status"`
}

type Service struct {
	repo      Repository
	archiver  Archiver
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// SetArchiver enables archiving of signed records.
func (s *Service) SetArchiver(a Archiver) {
	s.archiver = a
}

// SetPublisher enables record events.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// publish sends "record.<status>" for r. Deletions use "record.deleted".
func (s *Service) publish(ctx context.Context, r *Record, from Status, eventType string) {
	if s.publisher == nil {
		return
	}
	if eventType == "" {
		eventType = "record." + string(r.Status)
	}
	s.publisher.Notify(ctx, Topic, eventType, r.ID.String(), StatusChange{
		ID: r.ID, ClientID: r.ClientID, Kind: r.Kind, From: from, Status: r.Status,
	})
}

func validateBody(kind Kind, b Body) error {
	if !kind.Valid() {
		return validation.NewFieldError("kind", fmt.Sprintf("must be one of %v", Kinds))
	}
	if b == nil {
		return validation.NewFieldError("body", "body is required")
	}
	if b.Kind() != kind {
		return fmt.Errorf("%w: %s body on %s record", ErrKindMismatch, b.Kind(), kind)
	}
	return validation.Struct(b)
}

// Save persists r, creating it when it has no ID and updating it otherwise.
func (s *Service) Save(ctx context.Context, r *Record) error {
	if r.ID == uuid.Nil {
		return s.Create(ctx, r)
	}
	title := r.Title
	updated, err := s.Update(ctx, r.ID, UpdateInput{Title: &title, Body: r.Body, VersionID: r.VersionID})
	if err != nil {
		return err
	}
	*r = *updated
	return nil
}

// Create stores a new draft record.
func (s *Service) Create(ctx context.Context, r *Record) error {
	if r.ClientID == uuid.Nil {
		return validation.NewFieldError("client_id", "client_id is required")
	}
	if r.Body == nil && r.Kind.Valid() {
		r.Body, _ = DecodeBody(r.Kind, nil)
	}
	if err := validateBody(r.Kind, r.Body); err != nil {
		return err
	}
	if r.Status != "" && r.Status != StatusDraft {
		return fmt.Errorf("%w: records are created as drafts", ErrInvalidTransition)
	}
	if len(r.Signatures) > 0 {
		return validation.NewFieldError("signatures", "signatures are added through a signature session")
	}
	r.Status = StatusDraft
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		r.Title = r.Kind.Label()
	}
	r.CreatedBy = auth.UserIDFromContext(ctx)
	r.Signatures = []signature.Signature{}
	if err := s.repo.Create(ctx, r); err != nil {
		return err
	}
	s.publish(ctx, r, "", "record.created")
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.repo.GetByID(ctx, id)
}

// GetMany loads records in the order of ids.
func (s *Service) GetMany(ctx context.Context, ids []uuid.UUID) ([]*Record, error) {
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		r, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*Record, int, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, 0, validation.NewFieldError("kind", fmt.Sprintf("must be one of %v", Kinds))
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, validation.NewFieldError("status", fmt.Sprintf("must be one of %v", Statuses))
	}
	return s.repo.List(ctx, f)
}

// UpdateInput replaces a record's title and body. A non-zero VersionID must
// match the stored version.
type UpdateInput struct {
	Title     *string
	Body      Body
	VersionID int
}

// Update edits a draft or pending record. Signed and completed records are
// rejected with ErrRecordLocked.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Record, error) {
	return s.mutate(ctx, id, in.VersionID, func(r *Record) error {
		if in.Title != nil {
			if t := strings.TrimSpace(*in.Title); t != "" {
				r.Title = t
			}
		}
		if in.Body != nil {
			if err := validateBody(r.Kind, in.Body); err != nil {
				return err
			}
			r.Body = in.Body
		}
		return nil
	})
}

// UpdateAssessment applies p to the record's needs, risk or participation.
func (s *Service) UpdateAssessment(ctx context.Context, id uuid.UUID, p AssessmentPatch) (*Record, error) {
	return s.mutate(ctx, id, 0, func(r *Record) error {
		body, err := p.Apply(r.Body)
		if err != nil {
			return err
		}
		if err := validateBody(r.Kind, body); err != nil {
			return err
		}
		r.Body = body
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, id uuid.UUID, version int, fn func(r *Record) error) (*Record, error) {
	var out *Record
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if r.Locked() {
			return ErrRecordLocked
		}
		if version != 0 && version != r.VersionID {
			return ErrConflict
		}
		if err := fn(r); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// Transition applies a lifecycle event.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, ev Event) (*Record, error) {
	var out *Record
	var from Status
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = r.Status
		if err := r.Apply(ev, s.now().UTC()); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if ev == EventSign {
		s.archive(ctx, out)
	}
	s.publish(ctx, out, from, "")
	return out, nil
}

// AppendSignature adds sig to the record. This is allowed in every status;
// see Record.AddSignature for the status changes it causes.
func (s *Service) AppendSignature(ctx context.Context, id uuid.UUID, sig signature.Signature) (*Record, error) {
	var out *Record
	var from Status
	var becameSigned bool
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = r.Status
		if err := r.AddSignature(sig, s.now().UTC()); err != nil {
			return err
		}
		if err := s.repo.AddSignature(ctx, id, sig); err != nil {
			return err
		}
		if r.Status != from {
			if err := s.repo.Update(ctx, r); err != nil {
				return err
			}
		}
		becameSigned = from != StatusSigned && r.Status == StatusSigned
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if becameSigned {
		s.archive(ctx, out)
	}
	if out.Status != from {
		s.publish(ctx, out, from, "")
	}
	return out, nil
}

// Delete removes a draft record.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	var deleted *Record
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != StatusDraft {
			return fmt.Errorf("%w: only drafts can be deleted", ErrRecordLocked)
		}
		deleted = r
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, deleted, StatusDraft, "record.deleted")
	return nil
}

// archive failures are logged; the signature itself is already stored.
func (s *Service) archive(ctx context.Context, r *Record) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.Archive(ctx, r); err != nil {
		s.logger.Error().Err(err).Str("record_id", r.ID.String()).Msg("failed to archive signed record")
	}
}

package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/records/internal/domain/signature"
)

// Kind is the form a record holds.
type Kind string

const (
	KindClientProfile    Kind = "client_profile"
	KindConsentForm      Kind = "consent_form"
	KindDischargeSummary Kind = "discharge_summary"
	KindProgressNote     Kind = "progress_note"
)

var kindLabels = map[Kind]string{
	KindClientProfile:    "Client profile",
	KindConsentForm:      "Consent form",
	KindDischargeSummary: "Discharge summary",
	KindProgressNote:     "Progress note",
}

// Kinds lists every record kind in display order.
var Kinds = []Kind{KindClientProfile, KindConsentForm, KindDischargeSummary, KindProgressNote}

func (k Kind) Valid() bool   { _, ok := kindLabels[k]; return ok }
func (k Kind) Label() string { return kindLabels[k] }

// Status is the record lifecycle status.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusSigned    Status = "signed"
	StatusCompleted Status = "completed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusDraft, StatusPending, StatusSigned, StatusCompleted}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusSigned, StatusCompleted:
		return true
	}
	return false
}

var (
	ErrNotFound           = errors.New("record not found")
	ErrRecordLocked       = errors.New("record is signed and can no longer be edited")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrSignaturesRequired = errors.New("required signatures are missing")
	ErrConflict           = errors.New("record was modified concurrently")
	ErrInvalidKind        = errors.New("invalid record kind")
	ErrKindMismatch       = errors.New("body does not match record kind")
)

// Record is a clinical or administrative form with its signatures.
type Record struct {
	ID          uuid.UUID             `json:"id"`
	Kind        Kind                  `json:"kind"`
	ClientID    uuid.UUID             `json:"client_id"`
	Title       string                `json:"title"`
	Status      Status                `json:"status"`
	Body        Body                  `json:"body"`
	Signatures  []signature.Signature `json:"signatures"`
	VersionID   int                   `json:"version_id"`
	CreatedBy   string                `json:"created_by"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	SignedAt    *time.Time            `json:"signed_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}

// Locked reports whether the record's content is frozen.
func (r *Record) Locked() bool {
	return r.Status == StatusSigned || r.Status == StatusCompleted
}

// UnmarshalJSON decodes Body according to Kind.
func (r *Record) UnmarshalJSON(data []byte) error {
	type alias Record
	aux := struct {
		*alias
		Body json.RawMessage `json:"body"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.Kind == "" && len(aux.Body) == 0 {
		return nil
	}
	body, err := DecodeBody(r.Kind, aux.Body)
	if err != nil {
		return err
	}
	r.Body = body
	return nil
}

// DecodeBody parses raw as the body type for kind. Empty input yields the
// kind's zero body.
func DecodeBody(kind Kind, raw []byte) (Body, error) {
	switch kind {
	case KindClientProfile:
		return decode[ClientProfile](raw)
	case KindConsentForm:
		return decode[ConsentForm](raw)
	case KindDischargeSummary:
		return decode[DischargeSummary](raw)
	case KindProgressNote:
		return decode[ProgressNote](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}

func decode[T Body](raw []byte) (Body, error) {
	var b T
	if len(raw) == 0 || string(raw) == "null" {
		return b, nil
	}
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return b, nil
}

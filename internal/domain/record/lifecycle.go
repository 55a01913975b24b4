package record

import (
	"fmt"
	"time"

	"github.com/ehr/records/internal/domain/signature"
)

// Event drives a lifecycle transition.
type Event string

const (
	EventSubmit   Event = "submit"
	EventSign     Event = "sign"
	EventComplete Event = "complete"
)

// transitions is the full (status, event) table. Pairs not listed are invalid.
var transitions = map[Status]map[Event]Status{
	StatusDraft: {
		EventSubmit: StatusPending,
		EventSign:   StatusSigned,
	},
	StatusPending: {
		EventSign: StatusSigned,
	},
	StatusSigned: {
		EventComplete: StatusCompleted,
	},
	StatusCompleted: {},
}

// Next returns the status reached from from on ev.
func Next(from Status, ev Event) (Status, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s record", ErrInvalidTransition, ev, from)
	}
	return to, nil
}

// RequiredRoles lists the roles that must sign before a record is signed.
func RequiredRoles(b Body) []signature.Role {
	switch body := b.(type) {
	case ConsentForm:
		if body.RequiresGuardian {
			return []signature.Role{signature.RoleGuardian}
		}
		return []signature.Role{signature.RoleClient}
	case DischargeSummary:
		return []signature.Role{signature.RoleClient, signature.RoleClinician}
	case ProgressNote:
		return []signature.Role{signature.RoleClinician}
	case ClientProfile:
		return []signature.Role{signature.RoleStaff}
	default:
		return nil
	}
}

// MissingRoles lists required roles with no signature yet.
func (r *Record) MissingRoles() []signature.Role {
	signed := make(map[signature.Role]bool, len(r.Signatures))
	for _, s := range r.Signatures {
		signed[s.Role] = true
	}
	var missing []signature.Role
	for _, role := range RequiredRoles(r.Body) {
		if !signed[role] {
			missing = append(missing, role)
		}
	}
	return missing
}

// Apply moves r along ev. Signing also requires every required role to have
// signed.
func (r *Record) Apply(ev Event, now time.Time) error {
	to, err := Next(r.Status, ev)
	if err != nil {
		return err
	}
	if ev == EventSign {
		if missing := r.MissingRoles(); len(missing) > 0 {
			return fmt.Errorf("%w: %v", ErrSignaturesRequired, missing)
		}
	}
	r.setStatus(to, now)
	return nil
}

func (r *Record) setStatus(to Status, now time.Time) {
	r.Status = to
	switch to {
	case StatusSigned:
		r.SignedAt = &now
	case StatusCompleted:
		r.CompletedAt = &now
	}
}

// AddSignature appends sig. On a draft or pending record, a signature that
// completes the required set signs the record; otherwise a draft becomes
// pending. Signed and completed records accept signatures without changing
// status.
func (r *Record) AddSignature(sig signature.Signature, now time.Time) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	r.Signatures = append(r.Signatures, sig)

	if r.Locked() {
		return nil
	}
	if len(r.MissingRoles()) == 0 {
		r.setStatus(StatusSigned, now)
	} else if r.Status == StatusDraft {
		r.setStatus(StatusPending, now)
	}
	return nil
}

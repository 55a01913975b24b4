package signature

import (
	"fmt"
	"strings"
	"time"
)

// State is one step of the capture flow. The concrete types are
// ChoosingMethod, Capturing, Ready and Submitted.
type State interface {
	Name() string
	isState()
}

// ChoosingMethod is the initial state; no method or payload yet.
type ChoosingMethod struct{}

// Capturing has a method chosen and nothing captured.
type Capturing struct {
	Method Method
}

// Ready holds the one captured payload for Method.
type Ready struct {
	Method  Method
	Payload Payload
}

// Submitted is terminal and holds the emitted signature.
type Submitted struct {
	Signature Signature
}

func (ChoosingMethod) Name() string { return "choosing_method" }
func (Capturing) Name() string      { return "capturing" }
func (Ready) Name() string          { return "ready" }
func (Submitted) Name() string      { return "submitted" }

func (ChoosingMethod) isState() {}
func (Capturing) isState()      {}
func (Ready) isState()          {}
func (Submitted) isState()      {}

// Payload is either an image or a text, never both.
type Payload struct {
	Image     []byte
	ImageType string
	Text      string
}

// Empty reports whether nothing was captured.
func (p Payload) Empty() bool { return len(p.Image) == 0 && p.Text == "" }

// SubmitRequest carries the signer details entered alongside the payload.
type SubmitRequest struct {
	SignerName          string `json:"signer_name"`
	Role                Role   `json:"role"`
	Relationship        string `json:"relationship"`
	RequireRelationship bool   `json:"require_relationship"`
}

// Flow is the signature capture state machine. It is not safe for concurrent
// use; SessionStore serializes access per session.
type Flow struct {
	state State
}

func NewFlow() *Flow {
	return &Flow{state: ChoosingMethod{}}
}

func (f *Flow) State() State { return f.state }

// Choose selects a capture method. Any payload captured so far is dropped,
// even when the same method is chosen again.
func (f *Flow) Choose(m Method) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, m)
	}
	switch f.state.(type) {
	case ChoosingMethod, Capturing, Ready:
		f.state = Capturing{Method: m}
		return nil
	case Submitted:
		return ErrAlreadySubmitted
	default:
		panic(fmt.Sprintf("signature: unhandled state %T", f.state))
	}
}

// Draw stores a PNG rendered from the drawing canvas.
func (f *Flow) Draw(png []byte) error {
	if len(png) > 0 {
		ct, err := SniffImage(png)
		if err != nil {
			return err
		}
		if ct != "image/png" {
			return fmt.Errorf("%w: drawn signatures must be PNG", ErrInvalidImage)
		}
	}
	return f.capture(MethodDraw, Payload{Image: png, ImageType: "image/png"})
}

// Type stores a typed signature. Surrounding whitespace is not a payload.
func (f *Flow) Type(text string) error {
	return f.capture(MethodType, Payload{Text: strings.TrimSpace(text)})
}

// Upload stores an uploaded PNG or JPEG. contentType is informational; the
// stored type is sniffed from the bytes.
func (f *Flow) Upload(data []byte, contentType string) error {
	p := Payload{Image: data}
	if len(data) > 0 {
		ct, err := SniffImage(data)
		if err != nil {
			return err
		}
		p.ImageType = ct
	}
	return f.capture(MethodUpload, p)
}

// Clear discards the captured payload but keeps the chosen method.
func (f *Flow) Clear() error {
	switch s := f.state.(type) {
	case ChoosingMethod, Capturing:
		return nil
	case Ready:
		f.state = Capturing{Method: s.Method}
		return nil
	case Submitted:
		return ErrAlreadySubmitted
	default:
		panic(fmt.Sprintf("signature: unhandled state %T", f.state))
	}
}

func (f *Flow) capture(m Method, p Payload) error {
	var chosen Method
	switch s := f.state.(type) {
	case ChoosingMethod:
		return ErrNoMethod
	case Capturing:
		chosen = s.Method
	case Ready:
		chosen = s.Method
	case Submitted:
		return ErrAlreadySubmitted
	default:
		panic(fmt.Sprintf("signature: unhandled state %T", f.state))
	}

	if chosen != m {
		return fmt.Errorf("%w: chose %s, got %s", ErrMethodMismatch, chosen, m)
	}
	if p.Empty() {
		f.state = Capturing{Method: m}
		return nil
	}
	if !m.takesImage() {
		p.Image, p.ImageType = nil, ""
	}
	f.state = Ready{Method: m, Payload: p}
	return nil
}

// Submit emits the signature when the flow is Ready and the request names a
// signer and a valid role. A guardian, or a request that sets
// RequireRelationship, must also give the relationship. On any failure the
// state is left unchanged. signed_at is now, not the capture time.
func (f *Flow) Submit(req SubmitRequest, now time.Time) (Signature, error) {
	var ready Ready
	switch s := f.state.(type) {
	case ChoosingMethod, Capturing:
		return Signature{}, fmt.Errorf("%w: nothing captured", ErrIncomplete)
	case Ready:
		ready = s
	case Submitted:
		return Signature{}, ErrAlreadySubmitted
	default:
		panic(fmt.Sprintf("signature: unhandled state %T", f.state))
	}

	name := strings.TrimSpace(req.SignerName)
	relationship := strings.TrimSpace(req.Relationship)
	switch {
	case name == "":
		return Signature{}, fmt.Errorf("%w: signer name is required", ErrIncomplete)
	case req.Role == "":
		return Signature{}, fmt.Errorf("%w: role is required", ErrIncomplete)
	case !req.Role.Valid():
		return Signature{}, fmt.Errorf("%w: %q", ErrInvalidRole, req.Role)
	case relationship == "" && (req.Role == RoleGuardian || req.RequireRelationship):
		return Signature{}, fmt.Errorf("%w: relationship is required", ErrIncomplete)
	}

	sig := Signature{
		SignerName:   name,
		Role:         req.Role,
		Relationship: relationship,
		Method:       ready.Method,
		Image:        ready.Payload.Image,
		ImageType:    ready.Payload.ImageType,
		Text:         ready.Payload.Text,
		SignedAt:     now.UTC(),
	}
	f.state = Submitted{Signature: sig}
	return sig, nil
}

// restore puts the flow back into s. Used when a submitted signature could
// not be stored.
func (f *Flow) restore(s State) {
	f.state = s
}

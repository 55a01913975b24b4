package signature

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Role is the capacity in which someone signs a record.
type Role string

const (
	RoleClient     Role = "client"
	RoleGuardian   Role = "guardian"
	RoleStaff      Role = "staff"
	RoleClinician  Role = "clinician"
	RoleSupervisor Role = "supervisor"
	RoleWitness    Role = "witness"
)

var validRoles = map[Role]bool{
	RoleClient: true, RoleGuardian: true, RoleStaff: true,
	RoleClinician: true, RoleSupervisor: true, RoleWitness: true,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return validRoles[r] }

// Method is how the signature was captured.
type Method string

const (
	MethodDraw   Method = "draw"
	MethodType   Method = "type"
	MethodUpload Method = "upload"
)

// Valid reports whether m is a known capture method.
func (m Method) Valid() bool {
	switch m {
	case MethodDraw, MethodType, MethodUpload:
		return true
	}
	return false
}

// takesImage reports whether the method's payload is an image.
func (m Method) takesImage() bool { return m == MethodDraw || m == MethodUpload }

// MaxImageSize bounds drawn and uploaded signature images.
const MaxImageSize = 2 << 20

var (
	ErrIncomplete       = errors.New("signature is incomplete")
	ErrMethodMismatch   = errors.New("payload does not match the chosen method")
	ErrNoMethod         = errors.New("no capture method chosen")
	ErrInvalidMethod    = errors.New("invalid capture method")
	ErrInvalidRole      = errors.New("invalid signer role")
	ErrAlreadySubmitted = errors.New("signature already submitted")
	ErrInvalidImage     = errors.New("signature image must be PNG or JPEG")
	ErrImageTooLarge    = errors.New("signature image is too large")
	ErrSessionNotFound  = errors.New("signature session not found")
	ErrRecordNotFound   = errors.New("record not found")
)

// Signature is a captured attestation bound to a record. Method decides which
// payload is set: Image for draw and upload, Text for type.
type Signature struct {
	SignerName   string    `json:"signer_name"`
	Role         Role      `json:"role"`
	Relationship string    `json:"relationship,omitempty"`
	Method       Method    `json:"method"`
	Image        []byte    `json:"image,omitempty"`
	ImageType    string    `json:"image_type,omitempty"`
	Text         string    `json:"text,omitempty"`
	SignedAt     time.Time `json:"signed_at"`
}

// Validate checks the payload invariant on a stored or incoming signature.
func (s Signature) Validate() error {
	if s.SignerName == "" {
		return fmt.Errorf("%w: signer name is required", ErrIncomplete)
	}
	if !s.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, s.Role)
	}
	if !s.Method.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, s.Method)
	}
	hasImage, hasText := len(s.Image) > 0, s.Text != ""
	switch {
	case s.Method.takesImage() && (!hasImage || hasText):
		return fmt.Errorf("%w: %s signatures carry exactly one image", ErrMethodMismatch, s.Method)
	case s.Method == MethodType && (!hasText || hasImage):
		return fmt.Errorf("%w: typed signatures carry exactly one text", ErrMethodMismatch)
	}
	if s.SignedAt.IsZero() {
		return fmt.Errorf("%w: signed_at is required", ErrIncomplete)
	}
	return nil
}

// SniffImage checks that data is a PNG or JPEG within MaxImageSize and returns
// its content type. The declared type is ignored in favour of the bytes.
func SniffImage(data []byte) (string, error) {
	if len(data) > MaxImageSize {
		return "", ErrImageTooLarge
	}
	switch ct := http.DetectContentType(data); ct {
	case "image/png", "image/jpeg":
		return ct, nil
	default:
		return "", fmt.Errorf("%w: got %s", ErrInvalidImage, ct)
	}
}

package staff

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ehr/records/internal/platform/auth"
)

// MinPasswordLength is the shortest password accepted.
const MinPasswordLength = 8

var (
	ErrNotFound   = errors.New("staff member not found")
	ErrEmailTaken = errors.New("email is already in use")
	ErrInactive   = errors.New("staff member is inactive")
)

// Roles a staff member may hold. They match the roles carried by tokens.
var Roles = []string{auth.RoleAdmin, auth.RoleSupervisor, auth.RoleClinician, auth.RoleStaff}

// Staff maps to the staff table.
type Staff struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	Role         string    `db:"role" json:"role"`
	Active       bool      `db:"active" json:"active"`
	PasswordHash []byte    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (s *Staff) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.PasswordHash = hash
	return nil
}

// CheckPassword reports whether pwd matches the stored hash.
func (s *Staff) CheckPassword(pwd string) bool {
	return bcrypt.CompareHashAndPassword(s.PasswordHash, []byte(pwd)) == nil
}

// NewStaff is the input for creating an account.
type NewStaff struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"notblank,max=200"`
	Role     string `json:"role" validate:"required,oneof=admin supervisor clinician staff"`
	Password string `json:"password" validate:"required,min=8"`
}

// UpdateStaff holds the fields an administrator may change. Nil fields are
// left alone.
type UpdateStaff struct {
	Name   *string `json:"name" validate:"omitempty,notblank,max=200"`
	Role   *string `json:"role" validate:"omitempty,oneof=admin supervisor clinician staff"`
	Active *bool   `json:"active"`
}

// PasswordChange is the body of a password change request.
type PasswordChange struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
	Confirm string `json:"confirm_password"`
}

// PasswordChangeError is a failed password change. Message is shown to the
// user next to the form.
type PasswordChangeError struct {
	Message string `json:"message"`
}

func (e *PasswordChangeError) Error() string { return e.Message }

// checkNewPassword applies the rules that do not need the stored hash.
func checkNewPassword(change PasswordChange) error {
	switch {
	case change.New != change.Confirm:
		return &PasswordChangeError{Message: "New password and confirmation do not match."}
	case len([]rune(change.New)) < MinPasswordLength:
		return &PasswordChangeError{Message: "New password must be at least 8 characters."}
	case change.New == change.Current:
		return &PasswordChangeError{Message: "New password must be different from the current password."}
	}
	return nil
}

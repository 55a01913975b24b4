package staff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/platform/notification"
	"github.com/ehr/records/internal/platform/validation"
)

// Notifier sends templated emails. Implemented by *notification.NotificationManager.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipients ...string) (*notification.Notification, error)
}

// OrganizationName supplies the name used in account emails.
type OrganizationName func(ctx context.Context) string

type Service struct {
	repo     Repository
	notifier Notifier
	orgName  OrganizationName
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, notifier Notifier, orgName OrganizationName, logger zerolog.Logger) *Service {
	if orgName == nil {
		orgName = func(context.Context) string { return "" }
	}
	return &Service{repo: repo, notifier: notifier, orgName: orgName, logger: logger, now: time.Now}
}

func (s *Service) Create(ctx context.Context, in NewStaff) (*Staff, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	st := &Staff{Email: in.Email, Name: in.Name, Role: in.Role, Active: true}
	if err := st.SetPassword(in.Password); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.Create(ctx, st); err != nil {
		return nil, err
	}
	s.logger.Info().Str("staff_id", st.ID.String()).Str("role", st.Role).Msg("staff account created")
	return st, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Staff, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*Staff, int, error) {
	if f.Role != "" && !validRole(f.Role) {
		return nil, 0, validation.NewFieldError("role", "role must be one of "+strings.Join(Roles, ", "))
	}
	return s.repo.List(ctx, f)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateStaff) (*Staff, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		st.Name = strings.TrimSpace(*in.Name)
	}
	if in.Role != nil {
		st.Role = *in.Role
	}
	if in.Active != nil {
		st.Active = *in.Active
	}
	if err := s.repo.Update(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// ChangePassword replaces the password of id after checking the current one.
// Rule violations are returned as *PasswordChangeError.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, change PasswordChange) error {
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !st.Active {
		return ErrInactive
	}
	if !st.CheckPassword(change.Current) {
		return &PasswordChangeError{Message: "Current password is incorrect."}
	}
	if err := checkNewPassword(change); err != nil {
		return err
	}

	if err := st.SetPassword(change.New); err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.SetPasswordHash(ctx, id, st.PasswordHash); err != nil {
		return err
	}
	s.logger.Info().Str("staff_id", id.String()).Msg("password changed")
	s.notifyPasswordChanged(ctx, st)
	return nil
}

// notifyPasswordChanged tells the account owner. Failures are only logged:
// the password has already changed.
func (s *Service) notifyPasswordChanged(ctx context.Context, st *Staff) {
	if s.notifier == nil {
		return
	}
	data := map[string]string{
		"name":         st.Name,
		"organization": s.orgName(ctx),
		"changed_at":   s.now().UTC().Format("2006-01-02 15:04 MST"),
	}
	if _, err := s.notifier.SendFromTemplate(ctx, notification.TemplatePasswordChanged, data, st.Email); err != nil {
		s.logger.Warn().Err(err).Str("staff_id", st.ID.String()).Msg("password change notification failed")
	}
}

// Name returns the display name of a staff member.
func (s *Service) Name(ctx context.Context, id uuid.UUID) (string, error) {
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return st.Name, nil
}

func validRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

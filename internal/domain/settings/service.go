package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/validation"
)

// OrganizationKey is the store key of the organization-wide settings.
const OrganizationKey = "organization"

var ErrNoOwner = errors.New("settings owner is required")

// UserKey is the store key of a user's personal settings.
func UserKey(userID string) string { return "user:" + userID }

// Service reads settings through a per-owner cache and writes them only when
// they change.
type Service struct {
	store    Store
	defaults Settings
	logger   zerolog.Logger

	mu    sync.RWMutex
	cache map[string]Settings
}

func NewService(store Store, defaults Settings, logger zerolog.Logger) *Service {
	return &Service{store: store, defaults: defaults, logger: logger, cache: make(map[string]Settings)}
}

func decode(data []byte) (Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Init loads the organization settings. A missing document leaves the
// defaults in place; an invalid one is replaced by the defaults with a
// warning.
func (s *Service) Init(ctx context.Context) error {
	data, ok, err := s.store.Load(ctx, OrganizationKey)
	if err != nil {
		return fmt.Errorf("load organization settings: %w", err)
	}
	org := s.defaults
	if ok {
		loaded, err := decode(data)
		if err == nil {
			err = validation.Struct(loaded)
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("stored organization settings are invalid, using defaults")
		} else {
			org = loaded
		}
	}
	s.mu.Lock()
	s.cache[OrganizationKey] = org
	s.mu.Unlock()
	s.logger.Info().Bool("stored", ok).Str("store", fmt.Sprintf("%T", s.store)).Msg("settings loaded")
	return nil
}

// Organization returns the organization settings. Before Init, or when the
// store fails, it returns the defaults.
func (s *Service) Organization(ctx context.Context) Settings {
	st, err := s.Get(ctx, OrganizationKey)
	if err != nil {
		s.logger.Error().Err(err).Msg("reading organization settings")
		return s.defaults
	}
	return st
}

// Get returns the settings stored under owner. A user without personal
// settings gets the organization's.
func (s *Service) Get(ctx context.Context, owner string) (Settings, error) {
	if owner == "" {
		return Settings{}, ErrNoOwner
	}
	s.mu.RLock()
	st, ok := s.cache[owner]
	s.mu.RUnlock()
	if ok {
		return st, nil
	}

	data, found, err := s.store.Load(ctx, owner)
	if err != nil {
		return Settings{}, err
	}
	switch {
	case found:
		if st, err = decode(data); err != nil {
			return Settings{}, fmt.Errorf("decode settings %s: %w", owner, err)
		}
	case owner == OrganizationKey:
		st = s.defaults
	default:
		// Not cached: personal settings appear once saved, and the
		// organization's may change in between.
		return s.Get(ctx, OrganizationKey)
	}

	s.mu.Lock()
	s.cache[owner] = st
	s.mu.Unlock()
	return st, nil
}

// Effective returns the settings for the caller: the user's own when saved,
// the organization's otherwise.
func (s *Service) Effective(ctx context.Context) Settings {
	user := auth.UserIDFromContext(ctx)
	if user == "" {
		return s.Organization(ctx)
	}
	st, err := s.Get(ctx, UserKey(user))
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user).Msg("reading user settings")
		return s.Organization(ctx)
	}
	return st
}

// Update applies fn to a copy of owner's settings, validates the result and
// saves it when it differs from the current value. It reports whether
// anything was written.
func (s *Service) Update(ctx context.Context, owner string, fn func(*Settings) error) (Settings, bool, error) {
	current, err := s.Get(ctx, owner)
	if err != nil {
		return Settings{}, false, err
	}
	next := current
	if err := fn(&next); err != nil {
		return current, false, err
	}
	if err := validation.Struct(next); err != nil {
		return current, false, err
	}
	if next == current && s.cached(owner) {
		return current, false, nil
	}

	data, err := yaml.Marshal(next)
	if err != nil {
		return current, false, fmt.Errorf("encode settings: %w", err)
	}
	if err := s.store.Save(ctx, owner, data); err != nil {
		return current, false, err
	}

	s.mu.Lock()
	s.cache[owner] = next
	s.mu.Unlock()
	s.logger.Info().Str("owner", owner).Msg("settings updated")
	return next, true, nil
}

// cached reports whether owner has its own cache entry, which for users means
// personal settings were saved before.
func (s *Service) cached(owner string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cache[owner]
	return ok
}

package preference

import (
	"context"
	"errors"
	"fmt"

	"github.com/NordCoder/Herald/internal/domain/notification"
	domain "github.com/NordCoder/Herald/internal/domain/preference"
	"go.uber.org/zap"
)

type Service struct {
	repo  domain.Repo
	clock notification.Clock
	log   *zap.Logger
}

func NewService(repo domain.Repo, clock notification.Clock, log *zap.Logger) *Service {
	if clock == nil {
		clock = notification.SystemClock{}
	}
	return &Service{repo: repo, clock: clock, log: log.With(zap.String("component", "preference"))}
}

// Get returns the stored preferences, or the permissive defaults with isDefault set.
func (s *Service) Get(ctx context.Context, userID string) (p *domain.Preferences, isDefault bool, err error) {
	if userID == "" {
		return nil, false, fmt.Errorf("%w: user_id is required", domain.ErrInvalid)
	}
	p, err = s.repo.Get(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.Default(userID), true, nil
	case err != nil:
		return nil, false, fmt.Errorf("get preferences: %w", err)
	}
	return p, false, nil
}

// Lookup is the dispatcher's read: nil when the user has no record.
func (s *Service) Lookup(ctx context.Context, userID string) (*domain.Preferences, error) {
	p, err := s.repo.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// Update stores p, creating the record on first write. Devices are kept when the update
// leaves them out, since they are managed through RegisterDevice.
func (s *Service) Update(ctx context.Context, p *domain.Preferences) (*domain.Preferences, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Contact.Devices == nil {
		cur, err := s.repo.Get(ctx, p.UserID)
		switch {
		case err == nil:
			p.Contact.Devices = cur.Contact.Devices
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("get preferences: %w", err)
		}
	}
	p.UpdatedAt = s.clock.Now()
	if err := s.repo.Set(ctx, p); err != nil {
		return nil, fmt.Errorf("set preferences: %w", err)
	}
	return p, nil
}

// RegisterDevice adds a push token, creating the record if needed. It reports whether the
// token was new.
func (s *Service) RegisterDevice(ctx context.Context, userID, token string, platform domain.Platform) (bool, error) {
	if userID == "" || token == "" {
		return false, fmt.Errorf("%w: user_id and token are required", domain.ErrInvalid)
	}
	if !platform.Valid() {
		return false, fmt.Errorf("%w: unknown platform %q", domain.ErrInvalid, platform)
	}
	p, _, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	now := s.clock.Now()
	added := p.AddDevice(token, platform, now)
	p.UpdatedAt = now
	if err := s.repo.Set(ctx, p); err != nil {
		return false, fmt.Errorf("set preferences: %w", err)
	}
	s.log.Debug("device registered", zap.String("user_id", userID), zap.String("platform", string(platform)), zap.Bool("new", added))
	return added, nil
}

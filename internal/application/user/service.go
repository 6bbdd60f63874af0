package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/go-dead-mans-switch/internal/domain"
	"github.com/go-dead-mans-switch/internal/pkg/validate"
)

// ContactRequest is the body of PUT /v1/users/me.
type ContactRequest struct {
	Name  string  `json:"name" validate:"required,max=120"`
	Email string  `json:"email" validate:"required,email"`
	Phone *string `json:"phone" validate:"omitempty,e164"`
}

// ConfirmRequest marks contact channels as verified. Only operators call it.
type ConfirmRequest struct {
	Email bool `json:"email"`
	Phone bool `json:"phone"`
}

type Service interface {
	// SaveContact creates or updates the caller's contact record. Changing the
	// email or phone clears its confirmation.
	SaveContact(ctx context.Context, userID string, req ContactRequest) (*domain.User, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	Confirm(ctx context.Context, userID string, req ConfirmRequest) (*domain.User, error)
}

type userStore interface {
	Put(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type service struct {
	repo  userStore
	clock clock.Clock
}

func NewService(repo userStore, clk clock.Clock) Service {
	if clk == nil {
		clk = clock.New()
	}
	return &service{repo: repo, clock: clk}
}

func (s *service) SaveContact(ctx context.Context, userID string, req ContactRequest) (*domain.User, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	now := s.clock.Now().UTC()
	u, err := s.repo.Get(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		u = &domain.User{UserID: userID, CreatedAt: now}
	case err != nil:
		return nil, err
	}
	if u.Email != req.Email {
		u.EmailConfirmed = false
	}
	if phoneOf(u.Phone) != phoneOf(req.Phone) {
		u.PhoneConfirmed = false
	}
	u.Name = req.Name
	u.Email = req.Email
	u.Phone = req.Phone
	u.UpdatedAt = now
	if err := s.repo.Put(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

func (s *service) Confirm(ctx context.Context, userID string, req ConfirmRequest) (*domain.User, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.Phone && phoneOf(u.Phone) == "" {
		return nil, fmt.Errorf("user has no phone number: %w", domain.ErrBadRequest)
	}
	u.EmailConfirmed = u.EmailConfirmed || req.Email
	u.PhoneConfirmed = u.PhoneConfirmed || req.Phone
	u.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Put(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func phoneOf(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

package link

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-dead-mans-switch/internal/domain"
	"github.com/go-dead-mans-switch/internal/pkg/id"
)

type Service interface {
	Create(ctx context.Context, ownerID, switchID, beneficiaryUserID string) (*domain.Link, error)
	Revoke(ctx context.Context, ownerID, linkID string) error
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Link, error)
}

type linkStore interface {
	Put(ctx context.Context, l *domain.Link) error
	Get(ctx context.Context, linkID string) (*domain.Link, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Link, error)
	Revoke(ctx context.Context, linkID string, at time.Time) error
}

type switchReader interface {
	Get(ctx context.Context, switchID string) (*domain.Switch, error)
}

type userReader interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type service struct {
	links    linkStore
	switches switchReader
	users    userReader
	clock    clock.Clock
}

func NewService(links linkStore, switches switchReader, users userReader, clk clock.Clock) Service {
	if clk == nil {
		clk = clock.New()
	}
	return &service{links: links, switches: switches, users: users, clock: clk}
}

// Create lets beneficiaryUserID file death claims against the owner's switch.
func (s *service) Create(ctx context.Context, ownerID, switchID, beneficiaryUserID string) (*domain.Link, error) {
	if beneficiaryUserID == ownerID {
		return nil, fmt.Errorf("owner cannot be their own beneficiary: %w", domain.ErrBadRequest)
	}
	sw, err := s.switches.Get(ctx, switchID)
	if err != nil {
		return nil, err
	}
	if sw.OwnerID != ownerID {
		return nil, fmt.Errorf("switch belongs to another owner: %w", domain.ErrForbidden)
	}
	if _, err := s.users.Get(ctx, beneficiaryUserID); err != nil {
		return nil, fmt.Errorf("beneficiary account: %w", err)
	}
	existing, err := s.links.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, l := range existing {
		if l.Status == domain.LinkStatusActive && l.SwitchID == switchID && l.BeneficiaryID == beneficiaryUserID {
			return nil, fmt.Errorf("link already exists: %w", domain.ErrConflict)
		}
	}
	l := &domain.Link{
		LinkID:        id.New(),
		OwnerID:       ownerID,
		SwitchID:      switchID,
		BeneficiaryID: beneficiaryUserID,
		Status:        domain.LinkStatusActive,
		CreatedAt:     s.clock.Now().UTC(),
	}
	if err := s.links.Put(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Revoke blocks new claims on the link. A claim already in flight continues.
func (s *service) Revoke(ctx context.Context, ownerID, linkID string) error {
	l, err := s.links.Get(ctx, linkID)
	if err != nil {
		return err
	}
	if l.OwnerID != ownerID {
		return fmt.Errorf("link belongs to another owner: %w", domain.ErrForbidden)
	}
	return s.links.Revoke(ctx, linkID, s.clock.Now().UTC())
}

func (s *service) ListByOwner(ctx context.Context, ownerID string) ([]domain.Link, error) {
	return s.links.ListByOwner(ctx, ownerID)
}

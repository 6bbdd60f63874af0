// Package recovery exposes secret splitting and reconstruction, and lets a
// verified beneficiary recover an owner's key.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-dead-mans-switch/internal/domain"
	"github.com/go-dead-mans-switch/internal/pkg/seal"
	"github.com/go-dead-mans-switch/internal/pkg/secretshare"
)

type Gateway interface {
	SplitSecret(secret []byte) ([secretshare.NumShares]string, error)
	ReconstructSecret(shareA, shareB string) ([]byte, error)
	// RecoverKey combines the beneficiary's share with the switch's third
	// share. The claim must be in key_retrieval and belong to beneficiaryID.
	// An empty beneficiaryShare uses the share two held for the switch's
	// beneficiaries.
	RecoverKey(ctx context.Context, claimID, beneficiaryID, beneficiaryShare string) ([]byte, error)
}

type claimReader interface {
	Get(ctx context.Context, claimID string) (*domain.DeathClaim, error)
}

type linkReader interface {
	Get(ctx context.Context, linkID string) (*domain.Link, error)
}

type switchReader interface {
	Get(ctx context.Context, switchID string) (*domain.Switch, error)
}

type beneficiaryLister interface {
	ListBySwitch(ctx context.Context, switchID string) ([]domain.Beneficiary, error)
}

type shareOpener interface {
	Open(sealed, binding string) (string, error)
}

type service struct {
	engine   secretshare.Engine
	claims   claimReader
	links    linkReader
	switches switchReader
	bens     beneficiaryLister
	sealer   shareOpener
}

type ServiceDeps struct {
	Engine     secretshare.Engine
	ClaimRepo  claimReader
	LinkRepo   linkReader
	SwitchRepo      switchReader
	BeneficiaryRepo beneficiaryLister
	Sealer          shareOpener
}

func NewService(deps ServiceDeps) Gateway {
	return &service{
		engine:   deps.Engine,
		claims:   deps.ClaimRepo,
		links:    deps.LinkRepo,
		switches: deps.SwitchRepo,
		bens:     deps.BeneficiaryRepo,
		sealer:   deps.Sealer,
	}
}

func (s *service) SplitSecret(secret []byte) ([secretshare.NumShares]string, error) {
	var out [secretshare.NumShares]string
	shares, err := s.engine.Split(secret)
	if err != nil {
		return out, err
	}
	for i, sh := range shares {
		out[i] = sh.String()
	}
	return out, nil
}

func (s *service) ReconstructSecret(shareA, shareB string) ([]byte, error) {
	a, err := secretshare.Parse(shareA)
	if err != nil {
		return nil, err
	}
	b, err := secretshare.Parse(shareB)
	if err != nil {
		return nil, err
	}
	return s.engine.Reconstruct(a, b)
}

func (s *service) RecoverKey(ctx context.Context, claimID, beneficiaryID, beneficiaryShare string) ([]byte, error) {
	c, err := s.claims.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if c.BeneficiaryID != beneficiaryID {
		return nil, fmt.Errorf("claim %s: %w", claimID, domain.ErrClaimNotAuthorized)
	}
	if c.CurrentStage != domain.StageKeyRetrieval || c.Status != domain.ClaimStatusApproved {
		return nil, fmt.Errorf("claim %s at stage %s: %w", claimID, c.CurrentStage, domain.ErrInvalidStageTransition)
	}
	link, err := s.links.Get(ctx, c.LinkID)
	if err != nil {
		return nil, err
	}
	sw, err := s.switches.Get(ctx, link.SwitchID)
	if err != nil {
		return nil, err
	}
	shareThree, err := s.sealer.Open(sw.ShareThreeEncrypted, seal.ShareBinding(sw.SwitchID, "", 3))
	if err != nil {
		slog.Error("open switch share", "switch_id", sw.SwitchID, "err", err)
		return nil, fmt.Errorf("switch share unavailable: %w", err)
	}
	if beneficiaryShare == "" {
		if beneficiaryShare, err = s.heldShare(ctx, sw.SwitchID, c.BeneficiaryID); err != nil {
			return nil, err
		}
	}
	return s.ReconstructSecret(beneficiaryShare, shareThree)
}

// heldShare opens the share two stored for the switch. Every beneficiary row
// seals the same share; the row registered to userID is preferred.
func (s *service) heldShare(ctx context.Context, switchID, userID string) (string, error) {
	if s.bens == nil {
		return "", fmt.Errorf("beneficiary share is required: %w", domain.ErrBadRequest)
	}
	list, err := s.bens.ListBySwitch(ctx, switchID)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", fmt.Errorf("switch %s has no beneficiaries: %w", switchID, domain.ErrNotFound)
	}
	b := list[0]
	for _, cand := range list {
		if cand.UserID == userID {
			b = cand
			break
		}
	}
	share, err := s.sealer.Open(b.ShareTwoEncrypted, seal.ShareBinding(switchID, b.BeneficiaryID, 2))
	if err != nil {
		slog.Error("open beneficiary share", "switch_id", switchID, "beneficiary_id", b.BeneficiaryID, "err", err)
		return "", fmt.Errorf("beneficiary share unavailable: %w", err)
	}
	return share, nil
}

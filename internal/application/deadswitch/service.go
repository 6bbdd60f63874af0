// Package deadswitch manages an owner's switches: creation with key
// splitting, check-ins, inspection and removal.
package deadswitch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-dead-mans-switch/internal/domain"
	"github.com/go-dead-mans-switch/internal/pkg/id"
	"github.com/go-dead-mans-switch/internal/pkg/seal"
	"github.com/go-dead-mans-switch/internal/pkg/secretshare"
)

// BeneficiaryInput names one recipient of share two.
type BeneficiaryInput struct {
	Name   string
	Email  string
	UserID string
}

// CreateInput describes a new switch. Key is the owner's file key; it is split
// and never stored whole. File, when set, is the already-encrypted file.
type CreateInput struct {
	IntervalDays      int
	Key               []byte
	EncryptedFileHash string
	File              io.Reader
	Beneficiaries     []BeneficiaryInput
}

// Created is returned once: OwnerShare is not recoverable afterwards.
type Created struct {
	Switch        *domain.Switch       `json:"switch"`
	Beneficiaries []domain.Beneficiary `json:"beneficiaries"`
	OwnerShare    string               `json:"owner_share"`
}

// View is a switch with its beneficiaries and computed deadline.
type View struct {
	Switch        *domain.Switch       `json:"switch"`
	Beneficiaries []domain.Beneficiary `json:"beneficiaries"`
	Deadline      time.Time            `json:"deadline"`
}

type Service interface {
	Create(ctx context.Context, ownerID string, in CreateInput) (*Created, error)
	CheckIn(ctx context.Context, ownerID, switchID string) (*domain.Switch, error)
	Get(ctx context.Context, ownerID, switchID string) (*View, error)
	List(ctx context.Context, ownerID string) ([]domain.Switch, error)
	Delete(ctx context.Context, ownerID, switchID string) error
}

type switchStore interface {
	Put(ctx context.Context, s *domain.Switch) error
	Get(ctx context.Context, switchID string) (*domain.Switch, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Switch, error)
	CheckIn(ctx context.Context, switchID string, at time.Time) error
	Delete(ctx context.Context, switchID string) error
}

type beneficiaryStore interface {
	Put(ctx context.Context, b *domain.Beneficiary) error
	ListBySwitch(ctx context.Context, switchID string) ([]domain.Beneficiary, error)
	DeleteBySwitch(ctx context.Context, switchID string) error
}

type fileStore interface {
	Upload(ctx context.Context, key string, r io.Reader) error
	Delete(ctx context.Context, key string) error
}

type shareSealer interface {
	Seal(plaintext, binding string) (string, error)
}

type service struct {
	switches      switchStore
	beneficiaries beneficiaryStore
	files         fileStore
	objectKey     func(switchID string) string
	sealer        shareSealer
	engine        secretshare.Engine
	clock         clock.Clock
	gracePeriod   int
}

type ServiceDeps struct {
	SwitchRepo      switchStore
	BeneficiaryRepo beneficiaryStore
	Files           fileStore // optional
	ObjectKey       func(switchID string) string
	Sealer          shareSealer
	Engine          secretshare.Engine
	Clock           clock.Clock
	GracePeriodDays int
}

func NewService(deps ServiceDeps) Service {
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	objectKey := deps.ObjectKey
	if objectKey == nil {
		objectKey = func(switchID string) string { return "switches/" + switchID + "/file.enc" }
	}
	return &service{
		switches:      deps.SwitchRepo,
		beneficiaries: deps.BeneficiaryRepo,
		files:         deps.Files,
		objectKey:     objectKey,
		sealer:        deps.Sealer,
		engine:        deps.Engine,
		clock:         clk,
		gracePeriod:   deps.GracePeriodDays,
	}
}

func (s *service) Create(ctx context.Context, ownerID string, in CreateInput) (*Created, error) {
	if !domain.IsAllowedInterval(in.IntervalDays) {
		return nil, fmt.Errorf("interval must be one of %v days: %w", domain.AllowedIntervalDays, domain.ErrBadRequest)
	}
	if len(in.Key) == 0 {
		return nil, fmt.Errorf("key is required: %w", domain.ErrBadRequest)
	}
	if len(in.Beneficiaries) == 0 {
		return nil, fmt.Errorf("at least one beneficiary is required: %w", domain.ErrBadRequest)
	}
	if in.File == nil && in.EncryptedFileHash == "" {
		return nil, fmt.Errorf("encrypted file or its hash is required: %w", domain.ErrBadRequest)
	}

	shares, err := s.engine.Split(in.Key)
	if err != nil {
		return nil, fmt.Errorf("split key: %w", err)
	}
	now := s.clock.Now().UTC()
	sw := &domain.Switch{
		SwitchID:          id.New(),
		OwnerID:           ownerID,
		LastCheckIn:       now,
		IntervalDays:      in.IntervalDays,
		EncryptedFileHash: in.EncryptedFileHash,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if sw.ShareOneEncrypted, err = s.sealer.Seal(shares[0].String(), seal.ShareBinding(sw.SwitchID, "", 1)); err != nil {
		return nil, err
	}
	if sw.ShareThreeEncrypted, err = s.sealer.Seal(shares[2].String(), seal.ShareBinding(sw.SwitchID, "", 3)); err != nil {
		return nil, err
	}

	if in.File != nil {
		if err := s.uploadFile(ctx, sw, in.File); err != nil {
			return nil, err
		}
	}

	// The switch row goes last; until it exists nothing can trigger.
	shareTwo := shares[1].String()
	out := &Created{Switch: sw, OwnerShare: shares[0].String()}
	for _, bi := range in.Beneficiaries {
		b := domain.Beneficiary{
			BeneficiaryID: id.New(),
			SwitchID:      sw.SwitchID,
			UserID:        bi.UserID,
			Name:          bi.Name,
			Email:         bi.Email,
			CreatedAt:     now,
		}
		if b.ShareTwoEncrypted, err = s.sealer.Seal(shareTwo, seal.ShareBinding(sw.SwitchID, b.BeneficiaryID, 2)); err != nil {
			s.rollback(ctx, sw, len(out.Beneficiaries) > 0)
			return nil, err
		}
		if err := s.beneficiaries.Put(ctx, &b); err != nil {
			s.rollback(ctx, sw, true)
			return nil, fmt.Errorf("store beneficiary: %w", err)
		}
		out.Beneficiaries = append(out.Beneficiaries, b)
	}

	if err := s.switches.Put(ctx, sw); err != nil {
		s.rollback(ctx, sw, true)
		return nil, err
	}
	slog.Info("switch created", "switch_id", sw.SwitchID, "interval_days", sw.IntervalDays, "beneficiaries", len(out.Beneficiaries))
	return out, nil
}

// rollback removes what a failed Create already wrote. Cleanup errors are
// logged; the rows are unreachable without the switch row.
func (s *service) rollback(ctx context.Context, sw *domain.Switch, beneficiaries bool) {
	if beneficiaries {
		if err := s.beneficiaries.DeleteBySwitch(ctx, sw.SwitchID); err != nil {
			slog.Warn("roll back beneficiaries", "switch_id", sw.SwitchID, "err", err)
		}
	}
	s.discardFile(ctx, sw)
}

// uploadFile stores the encrypted file and checks it against the declared hash.
func (s *service) uploadFile(ctx context.Context, sw *domain.Switch, r io.Reader) error {
	if s.files == nil {
		return fmt.Errorf("file storage not configured: %w", domain.ErrBadRequest)
	}
	key := s.objectKey(sw.SwitchID)
	h := sha256.New()
	if err := s.files.Upload(ctx, key, io.TeeReader(r, h)); err != nil {
		return fmt.Errorf("upload encrypted file: %w", err)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	sw.EncryptedFileKey = key
	if sw.EncryptedFileHash == "" {
		sw.EncryptedFileHash = sum
		return nil
	}
	if sw.EncryptedFileHash != sum {
		s.discardFile(ctx, sw)
		return fmt.Errorf("encrypted file does not match declared hash: %w", domain.ErrBadRequest)
	}
	return nil
}

func (s *service) discardFile(ctx context.Context, sw *domain.Switch) {
	if s.files == nil || sw.EncryptedFileKey == "" {
		return
	}
	if err := s.files.Delete(ctx, sw.EncryptedFileKey); err != nil {
		slog.Warn("delete encrypted file", "switch_id", sw.SwitchID, "err", err)
	}
}

func (s *service) owned(ctx context.Context, ownerID, switchID string) (*domain.Switch, error) {
	sw, err := s.switches.Get(ctx, switchID)
	if err != nil {
		return nil, err
	}
	if sw.OwnerID != ownerID {
		return nil, fmt.Errorf("switch belongs to another owner: %w", domain.ErrForbidden)
	}
	return sw, nil
}

func (s *service) CheckIn(ctx context.Context, ownerID, switchID string) (*domain.Switch, error) {
	sw, err := s.owned(ctx, ownerID, switchID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	if err := s.switches.CheckIn(ctx, switchID, now); err != nil {
		return nil, err
	}
	sw.LastCheckIn = now
	sw.UpdatedAt = now
	return sw, nil
}

func (s *service) Get(ctx context.Context, ownerID, switchID string) (*View, error) {
	sw, err := s.owned(ctx, ownerID, switchID)
	if err != nil {
		return nil, err
	}
	bens, err := s.beneficiaries.ListBySwitch(ctx, switchID)
	if err != nil {
		return nil, err
	}
	return &View{Switch: sw, Beneficiaries: bens, Deadline: sw.Deadline(s.gracePeriod)}, nil
}

func (s *service) List(ctx context.Context, ownerID string) ([]domain.Switch, error) {
	return s.switches.ListByOwner(ctx, ownerID)
}

func (s *service) Delete(ctx context.Context, ownerID, switchID string) error {
	sw, err := s.owned(ctx, ownerID, switchID)
	if err != nil {
		return err
	}
	if err := s.beneficiaries.DeleteBySwitch(ctx, switchID); err != nil {
		return err
	}
	s.discardFile(ctx, sw)
	return s.switches.Delete(ctx, switchID)
}

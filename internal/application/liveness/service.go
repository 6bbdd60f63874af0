// Package liveness watches switches for missed check-ins and releases the
// beneficiaries' shares when a deadline passes.
package liveness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-dead-mans-switch/internal/domain"
	"github.com/go-dead-mans-switch/internal/infrastructure/notify"
	"github.com/go-dead-mans-switch/internal/pkg/seal"
	"github.com/go-dead-mans-switch/internal/pkg/secretshare"
)

// ScanReport summarises one pass over the switches.
type ScanReport struct {
	Scanned   int `json:"scanned"`
	Triggered int `json:"triggered"`
	Failed    int `json:"failed"`
}

type Monitor interface {
	// Scan triggers recovery for every non-triggered switch past its deadline.
	Scan(ctx context.Context) (ScanReport, error)
	// TriggerRecovery marks sw as triggered and notifies its beneficiaries. A
	// switch that is already triggered, or whose owner checked in after sw was
	// read, is left alone.
	TriggerRecovery(ctx context.Context, sw *domain.Switch) error
	// ResendBeneficiary retries the notification of one pending beneficiary.
	ResendBeneficiary(ctx context.Context, ownerID, switchID, beneficiaryID string) error
	// RetryUndelivered retries every pending beneficiary of triggered switches
	// and returns how many were delivered.
	RetryUndelivered(ctx context.Context) (int, error)
}

type switchStore interface {
	Get(ctx context.Context, switchID string) (*domain.Switch, error)
	ListActive(ctx context.Context) ([]domain.Switch, error)
	ListTriggered(ctx context.Context) ([]domain.Switch, error)
	MarkTriggered(ctx context.Context, switchID string, seen, at time.Time) error
}

type beneficiaryStore interface {
	Get(ctx context.Context, switchID, beneficiaryID string) (*domain.Beneficiary, error)
	ListBySwitch(ctx context.Context, switchID string) ([]domain.Beneficiary, error)
	MarkNotified(ctx context.Context, switchID, beneficiaryID string, at time.Time) error
	RecordDeliveryError(ctx context.Context, switchID, beneficiaryID, msg string) error
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type fileLinker interface {
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type shareOpener interface {
	Open(sealed, binding string) (string, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, subjectID string, msg notify.Message) notify.Result
}

type service struct {
	switches      switchStore
	beneficiaries beneficiaryStore
	users         userStore
	files         fileLinker
	sealer        shareOpener
	dispatcher    dispatcher
	clock         clock.Clock
	gracePeriod   int
	presignTTL    time.Duration
}

type ServiceDeps struct {
	SwitchRepo      switchStore
	BeneficiaryRepo beneficiaryStore
	UserRepo        userStore
	Files           fileLinker // optional
	Sealer          shareOpener
	Dispatcher      dispatcher
	Clock           clock.Clock
	GracePeriodDays int
	PresignTTL      time.Duration
}

func NewService(deps ServiceDeps) Monitor {
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &service{
		switches:      deps.SwitchRepo,
		beneficiaries: deps.BeneficiaryRepo,
		users:         deps.UserRepo,
		files:         deps.Files,
		sealer:        deps.Sealer,
		dispatcher:    deps.Dispatcher,
		clock:         clk,
		gracePeriod:   deps.GracePeriodDays,
		presignTTL:    deps.PresignTTL,
	}
}

func (s *service) Scan(ctx context.Context) (ScanReport, error) {
	var report ScanReport
	switches, err := s.switches.ListActive(ctx)
	if err != nil {
		return report, fmt.Errorf("list active switches: %w", err)
	}
	now := s.clock.Now()
	for i := range switches {
		sw := &switches[i]
		report.Scanned++
		if sw.RecoveryTriggered || !sw.Expired(now, s.gracePeriod) {
			continue
		}
		fired, err := s.trigger(ctx, sw)
		if err != nil {
			report.Failed++
			slog.Error("trigger recovery", "switch_id", sw.SwitchID, "err", err)
			continue
		}
		if fired {
			report.Triggered++
		}
	}
	return report, nil
}

func (s *service) TriggerRecovery(ctx context.Context, sw *domain.Switch) error {
	_, err := s.trigger(ctx, sw)
	return err
}

// trigger reports whether this call flipped the switch.
func (s *service) trigger(ctx context.Context, sw *domain.Switch) (bool, error) {
	now := s.clock.Now().UTC()
	if err := s.switches.MarkTriggered(ctx, sw.SwitchID, sw.LastCheckIn, now); err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyTriggered):
			slog.Info("recovery already triggered", "switch_id", sw.SwitchID)
			return false, nil
		case errors.Is(err, domain.ErrCheckedIn):
			slog.Info("owner checked in before trigger", "switch_id", sw.SwitchID)
			return false, nil
		}
		return false, err
	}
	sw.RecoveryTriggered = true
	sw.TriggeredAt = &now
	slog.Info("recovery triggered", "switch_id", sw.SwitchID, "last_check_in", sw.LastCheckIn)

	_, err := s.notifyPending(ctx, sw)
	return true, err
}

func (s *service) ResendBeneficiary(ctx context.Context, ownerID, switchID, beneficiaryID string) error {
	sw, err := s.switches.Get(ctx, switchID)
	if err != nil {
		return err
	}
	if sw.OwnerID != ownerID {
		return fmt.Errorf("switch belongs to another owner: %w", domain.ErrForbidden)
	}
	if !sw.RecoveryTriggered {
		return fmt.Errorf("recovery not triggered: %w", domain.ErrConflict)
	}
	b, err := s.beneficiaries.Get(ctx, switchID, beneficiaryID)
	if err != nil {
		return err
	}
	if b.NotifiedAt != nil {
		return fmt.Errorf("beneficiary already notified: %w", domain.ErrConflict)
	}
	env := s.envelope(ctx, sw)
	if res := s.deliver(ctx, sw, b, env); !res.Success {
		return fmt.Errorf("%s: %w", res.Error, domain.ErrDeliveryFailed)
	}
	return nil
}

func (s *service) RetryUndelivered(ctx context.Context) (int, error) {
	switches, err := s.switches.ListTriggered(ctx)
	if err != nil {
		return 0, fmt.Errorf("list triggered switches: %w", err)
	}
	total := 0
	for i := range switches {
		n, err := s.notifyPending(ctx, &switches[i])
		total += n
		if err != nil {
			slog.Error("retry undelivered", "switch_id", switches[i].SwitchID, "err", err)
		}
	}
	return total, nil
}

// envelope is the part of a recovery message shared by every beneficiary.
type envelope struct {
	ownerName   string
	downloadURL string
}

func (s *service) envelope(ctx context.Context, sw *domain.Switch) envelope {
	env := envelope{ownerName: "The owner"}
	if owner, err := s.users.Get(ctx, sw.OwnerID); err == nil && owner.Name != "" {
		env.ownerName = owner.Name
	} else if err != nil {
		slog.Warn("owner lookup", "switch_id", sw.SwitchID, "err", err)
	}
	if s.files != nil && sw.EncryptedFileKey != "" {
		url, err := s.files.PresignedURL(ctx, sw.EncryptedFileKey, s.presignTTL)
		if err != nil {
			slog.Warn("presign encrypted file", "switch_id", sw.SwitchID, "err", err)
		} else {
			env.downloadURL = url
		}
	}
	return env
}

// notifyPending sends to every beneficiary without notified_at. Each send is
// independent: one failure never stops the others.
func (s *service) notifyPending(ctx context.Context, sw *domain.Switch) (int, error) {
	list, err := s.beneficiaries.ListBySwitch(ctx, sw.SwitchID)
	if err != nil {
		return 0, fmt.Errorf("list beneficiaries: %w", err)
	}
	var pending []*domain.Beneficiary
	for i := range list {
		if list[i].NotifiedAt == nil {
			pending = append(pending, &list[i])
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}
	env := s.envelope(ctx, sw)
	delivered := 0
	for _, b := range pending {
		if s.deliver(ctx, sw, b, env).Success {
			delivered++
		}
	}
	return delivered, nil
}

func (s *service) deliver(ctx context.Context, sw *domain.Switch, b *domain.Beneficiary, env envelope) notify.Result {
	share, err := s.openShare(b.ShareTwoEncrypted, seal.ShareBinding(sw.SwitchID, b.BeneficiaryID, 2))
	var switchShare string
	if err == nil {
		switchShare, err = s.openShare(sw.ShareThreeEncrypted, seal.ShareBinding(sw.SwitchID, "", 3))
	}
	if err != nil {
		s.recordFailure(ctx, sw.SwitchID, b.BeneficiaryID, "stored share unreadable")
		slog.Error("open beneficiary share", "switch_id", sw.SwitchID, "beneficiary_id", b.BeneficiaryID, "err", err)
		return notify.Result{Error: "stored share unreadable"}
	}

	res := s.dispatcher.Dispatch(ctx, sw.SwitchID, notify.Message{
		Channel:   notify.ChannelEmail,
		Recipient: b.Email,
		Template:  notify.TemplateRecoveryShare,
		Payload: map[string]string{
			"beneficiary_name": b.Name,
			"owner_name":       env.ownerName,
			"last_check_in":    sw.LastCheckIn.UTC().Format("2006-01-02"),
			"share":            share,
			"switch_share":     switchShare,
			"file_hash":        sw.EncryptedFileHash,
			"download_url":     env.downloadURL,
		},
	})
	if !res.Success {
		s.recordFailure(ctx, sw.SwitchID, b.BeneficiaryID, res.Error)
		return res
	}
	if err := s.beneficiaries.MarkNotified(ctx, sw.SwitchID, b.BeneficiaryID, s.clock.Now().UTC()); err != nil {
		slog.Error("mark beneficiary notified", "switch_id", sw.SwitchID, "beneficiary_id", b.BeneficiaryID, "err", err)
	}
	return res
}

// openShare unseals a stored share and checks that it parses.
func (s *service) openShare(sealed, binding string) (string, error) {
	share, err := s.sealer.Open(sealed, binding)
	if err != nil {
		return "", err
	}
	if _, err := secretshare.Parse(share); err != nil {
		return "", err
	}
	return share, nil
}

func (s *service) recordFailure(ctx context.Context, switchID, beneficiaryID, msg string) {
	if err := s.beneficiaries.RecordDeliveryError(ctx, switchID, beneficiaryID, msg); err != nil {
		slog.Error("record delivery error", "switch_id", switchID, "beneficiary_id", beneficiaryID, "err", err)
	}
}

package liveness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-dead-mans-switch/internal/domain"
	"github.com/go-dead-mans-switch/internal/infrastructure/notify"
	"github.com/go-dead-mans-switch/internal/pkg/seal"
	"github.com/go-dead-mans-switch/internal/pkg/secretshare"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeSwitches struct {
	mu       sync.Mutex
	items    map[string]*domain.Switch
	triggers int
	// beforeTrigger runs once before the next MarkTriggered, to simulate a
	// concurrent check-in.
	beforeTrigger func()
}

func (f *fakeSwitches) checkIn(id string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[id].LastCheckIn = at
}

func (f *fakeSwitches) Get(_ context.Context, id string) (*domain.Switch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sw, ok := f.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *sw
	return &cp, nil
}

func (f *fakeSwitches) list(triggered bool) []domain.Switch {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Switch
	for _, sw := range f.items {
		if sw.RecoveryTriggered == triggered {
			out = append(out, *sw)
		}
	}
	return out
}

func (f *fakeSwitches) ListActive(context.Context) ([]domain.Switch, error)    { return f.list(false), nil }
func (f *fakeSwitches) ListTriggered(context.Context) ([]domain.Switch, error) { return f.list(true), nil }

func (f *fakeSwitches) MarkTriggered(_ context.Context, id string, seen, at time.Time) error {
	if hook := f.beforeTrigger; hook != nil {
		f.beforeTrigger = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sw := f.items[id]
	if sw.RecoveryTriggered {
		return fmt.Errorf("switch %s: %w", id, domain.ErrAlreadyTriggered)
	}
	if !sw.LastCheckIn.Equal(seen) {
		return fmt.Errorf("switch %s: %w", id, domain.ErrCheckedIn)
	}
	sw.RecoveryTriggered = true
	sw.TriggeredAt = &at
	f.triggers++
	return nil
}

type fakeBeneficiaries struct {
	mu     sync.Mutex
	items  map[string][]*domain.Beneficiary
	marked int
}

func (f *fakeBeneficiaries) find(switchID, id string) *domain.Beneficiary {
	for _, b := range f.items[switchID] {
		if b.BeneficiaryID == id {
			return b
		}
	}
	return nil
}

func (f *fakeBeneficiaries) Get(_ context.Context, switchID, id string) (*domain.Beneficiary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.find(switchID, id)
	if b == nil {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBeneficiaries) ListBySwitch(_ context.Context, switchID string) ([]domain.Beneficiary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Beneficiary
	for _, b := range f.items[switchID] {
		out = append(out, *b)
	}
	return out, nil
}

func (f *fakeBeneficiaries) MarkNotified(_ context.Context, switchID, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.find(switchID, id)
	if b.NotifiedAt != nil {
		return domain.ErrConflict
	}
	b.NotifiedAt = &at
	b.LastDeliveryError = ""
	f.marked++
	return nil
}

func (f *fakeBeneficiaries) RecordDeliveryError(_ context.Context, switchID, id, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.find(switchID, id).LastDeliveryError = msg
	return nil
}

type fakeUsers map[string]*domain.User

func (f fakeUsers) Get(_ context.Context, id string) (*domain.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

type fakeFiles struct{ err error }

func (f fakeFiles) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://files.example/" + key, f.err
}

type mockDispatcher struct{ n *notify.Mock }

func (d mockDispatcher) Dispatch(ctx context.Context, _ string, msg notify.Message) notify.Result {
	return d.n.Send(ctx, msg)
}

// --- fixture ---

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc      Monitor
	clk      *clock.Mock
	switches *fakeSwitches
	bens     *fakeBeneficiaries
	notifier *notify.Mock
	share    string
}

func newFixture(t *testing.T, beneficiaryEmails ...string) *fixture {
	t.Helper()
	sealer, err := seal.New(make([]byte, 32))
	require.NoError(t, err)
	shares, err := secretshare.Split([]byte("file-key"))
	require.NoError(t, err)
	shareTwo := shares[1].String()
	sealedThree, err := sealer.Seal(shares[2].String(), seal.ShareBinding("sw-1", "", 3))
	require.NoError(t, err)

	sw := &domain.Switch{
		SwitchID:            "sw-1",
		OwnerID:             "owner-1",
		LastCheckIn:         t0,
		IntervalDays:        30,
		EncryptedFileHash:   "deadbeef",
		EncryptedFileKey:    "switches/sw-1/file.enc",
		ShareThreeEncrypted: sealedThree,
	}
	bens := &fakeBeneficiaries{items: map[string][]*domain.Beneficiary{}}
	for i, email := range beneficiaryEmails {
		bid := fmt.Sprintf("ben-%d", i+1)
		sealed, err := sealer.Seal(shareTwo, seal.ShareBinding(sw.SwitchID, bid, 2))
		require.NoError(t, err)
		bens.items[sw.SwitchID] = append(bens.items[sw.SwitchID], &domain.Beneficiary{
			BeneficiaryID: bid, SwitchID: sw.SwitchID, Name: "Ben", Email: email, ShareTwoEncrypted: sealed,
		})
	}
	switches := &fakeSwitches{items: map[string]*domain.Switch{sw.SwitchID: sw}}
	clk := clock.NewMock()
	clk.Set(t0)
	n := notify.NewMock(nil)

	svc := NewService(ServiceDeps{
		SwitchRepo:      switches,
		BeneficiaryRepo: bens,
		UserRepo:        fakeUsers{"owner-1": {UserID: "owner-1", Name: "Alice"}},
		Files:           fakeFiles{},
		Sealer:          sealer,
		Dispatcher:      mockDispatcher{n},
		Clock:           clk,
		GracePeriodDays: 7,
		PresignTTL:      time.Hour,
	})
	return &fixture{svc: svc, clk: clk, switches: switches, bens: bens, notifier: n, share: shareTwo}
}

// --- tests ---

func TestScan_DeadlineBoundary(t *testing.T) {
	f := newFixture(t, "ben@example.com")
	ctx := context.Background()

	f.clk.Set(t0.AddDate(0, 0, 37))
	report, err := f.svc.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, ScanReport{Scanned: 1}, report)
	assert.Empty(t, f.notifier.Sent())

	f.clk.Set(t0.AddDate(0, 0, 38))
	report, err = f.svc.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, ScanReport{Scanned: 1, Triggered: 1}, report)
	assert.True(t, f.switches.items["sw-1"].RecoveryTriggered)
	assert.Len(t, f.notifier.Sent(), 1)
}

func TestScan_OneSecondPastDeadlineTriggers(t *testing.T) {
	f := newFixture(t, "ben@example.com")
	f.clk.Set(t0.AddDate(0, 0, 37).Add(time.Second))
	report, err := f.svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Triggered)
}

func TestScan_RepeatedScansNotifyOnce(t *testing.T) {
	f := newFixture(t, "a@example.com", "b@example.com")
	ctx := context.Background()
	f.clk.Set(t0.AddDate(0, 0, 60))

	for i := 0; i < 3; i++ {
		_, err := f.svc.Scan(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.switches.triggers)
	assert.Len(t, f.notifier.Sent(), 2)
}

func TestScan_CheckInAfterReadPreventsTrigger(t *testing.T) {
	f := newFixture(t, "ben@example.com")
	now := t0.AddDate(0, 0, 38)
	f.clk.Set(now)
	f.switches.beforeTrigger = func() { f.switches.checkIn("sw-1", now) }

	report, err := f.svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanReport{Scanned: 1}, report)
	assert.False(t, f.switches.items["sw-1"].RecoveryTriggered)
	assert.Equal(t, 0, f.switches.triggers)
	assert.Empty(t, f.notifier.Sent())
}

func TestTriggerRecovery_SecondCallIsNoOp(t *testing.T) {
	f := newFixture(t, "a@example.com")
	ctx := context.Background()
	sw, err := f.switches.Get(ctx, "sw-1")
	require.NoError(t, err)

	require.NoError(t, f.svc.TriggerRecovery(ctx, sw))
	stale := *sw
	stale.RecoveryTriggered = false
	require.NoError(t, f.svc.TriggerRecovery(ctx, &stale))

	assert.Equal(t, 1, f.switches.triggers)
	assert.Len(t, f.notifier.Sent(), 1)
}

func TestTriggerRecovery_MessageCarriesShareHashAndLink(t *testing.T) {
	f := newFixture(t, "a@example.com")
	ctx := context.Background()
	sw, _ := f.switches.Get(ctx, "sw-1")
	require.NoError(t, f.svc.TriggerRecovery(ctx, sw))

	sent := f.notifier.SentTo("a@example.com")
	require.Len(t, sent, 1)
	assert.Equal(t, notify.TemplateRecoveryShare, sent[0].Template)
	assert.Equal(t, f.share, sent[0].Payload["share"])
	key, err := secretshare.ReconstructStrings(sent[0].Payload["share"], sent[0].Payload["switch_share"])
	require.NoError(t, err)
	assert.Equal(t, "file-key", string(key))
	assert.Equal(t, "deadbeef", sent[0].Payload["file_hash"])
	assert.Equal(t, "https://files.example/switches/sw-1/file.enc", sent[0].Payload["download_url"])
	assert.Equal(t, "Alice", sent[0].Payload["owner_name"])
	assert.NotNil(t, f.bens.find("sw-1", "ben-1").NotifiedAt)
}

func TestTriggerRecovery_PartialFailureThenRetry(t *testing.T) {
	f := newFixture(t, "ok@example.com", "down@example.com")
	ctx := context.Background()
	f.notifier.FailFor("down@example.com", "mailbox unavailable")

	sw, _ := f.switches.Get(ctx, "sw-1")
	require.NoError(t, f.svc.TriggerRecovery(ctx, sw))

	assert.NotNil(t, f.bens.find("sw-1", "ben-1").NotifiedAt)
	failed := f.bens.find("sw-1", "ben-2")
	assert.Nil(t, failed.NotifiedAt)
	assert.Equal(t, "mailbox unavailable", failed.LastDeliveryError)
	assert.True(t, f.switches.items["sw-1"].RecoveryTriggered)

	n, err := f.svc.RetryUndelivered(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.notifier.Recover("down@example.com")
	n, err = f.svc.RetryUndelivered(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, f.notifier.SentTo("ok@example.com"), 1)
	assert.Len(t, f.notifier.SentTo("down@example.com"), 1)
	assert.Equal(t, 2, f.bens.marked)
}

func TestTriggerRecovery_UnreadableShareDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t, "a@example.com", "b@example.com")
	f.bens.find("sw-1", "ben-1").ShareTwoEncrypted = "tampered"
	ctx := context.Background()
	sw, _ := f.switches.Get(ctx, "sw-1")

	require.NoError(t, f.svc.TriggerRecovery(ctx, sw))
	assert.Empty(t, f.notifier.SentTo("a@example.com"))
	assert.Len(t, f.notifier.SentTo("b@example.com"), 1)
	assert.Equal(t, "stored share unreadable", f.bens.find("sw-1", "ben-1").LastDeliveryError)
}

func TestTriggerRecovery_UnreadableSwitchShareFailsDelivery(t *testing.T) {
	f := newFixture(t, "a@example.com")
	f.switches.items["sw-1"].ShareThreeEncrypted = "tampered"
	ctx := context.Background()
	sw, _ := f.switches.Get(ctx, "sw-1")

	require.NoError(t, f.svc.TriggerRecovery(ctx, sw))
	assert.Empty(t, f.notifier.Sent())
	b := f.bens.find("sw-1", "ben-1")
	assert.Nil(t, b.NotifiedAt)
	assert.Equal(t, "stored share unreadable", b.LastDeliveryError)
}

func TestResendBeneficiary(t *testing.T) {
	f := newFixture(t, "a@example.com")
	ctx := context.Background()

	err := f.svc.ResendBeneficiary(ctx, "owner-1", "sw-1", "ben-1")
	assert.True(t, errors.Is(err, domain.ErrConflict), "not yet triggered")

	f.notifier.FailFor("a@example.com", "bounce")
	sw, _ := f.switches.Get(ctx, "sw-1")
	require.NoError(t, f.svc.TriggerRecovery(ctx, sw))

	err = f.svc.ResendBeneficiary(ctx, "intruder", "sw-1", "ben-1")
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	err = f.svc.ResendBeneficiary(ctx, "owner-1", "sw-1", "ben-1")
	assert.ErrorContains(t, err, "bounce")
	assert.True(t, errors.Is(err, domain.ErrDeliveryFailed))

	f.notifier.Recover("a@example.com")
	require.NoError(t, f.svc.ResendBeneficiary(ctx, "owner-1", "sw-1", "ben-1"))

	err = f.svc.ResendBeneficiary(ctx, "owner-1", "sw-1", "ben-1")
	assert.True(t, errors.Is(err, domain.ErrConflict), "already notified")
}

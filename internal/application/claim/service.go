// Package claim runs the death-claim verification state machine: repeated
// owner emails, then SMS, then key retrieval, unless the owner responds.
package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-dead-mans-switch/internal/domain"
	"github.com/go-dead-mans-switch/internal/infrastructure/notify"
	"github.com/go-dead-mans-switch/internal/pkg/id"
	pkgtoken "github.com/go-dead-mans-switch/internal/pkg/token"
	"github.com/go-dead-mans-switch/internal/pkg/validate"
)

// respondAttempts bounds retries when an owner response races a scheduled
// advance on the same claim.
const respondAttempts = 3

const defaultRejectionReason = "owner confirmed alive"

// AdvanceReport summarises one AdvanceAll pass.
type AdvanceReport struct {
	Considered int `json:"considered"`
	Advanced   int `json:"advanced"`
	Failed     int `json:"failed"`
}

type StateMachine interface {
	Submit(ctx context.Context, beneficiaryID, linkID string) (*domain.DeathClaim, error)
	// Advance applies at most one transition to the claim. It reports whether
	// a transition happened; a gated or lost race is not an error.
	Advance(ctx context.Context, claimID string, now time.Time) (bool, error)
	AdvanceAll(ctx context.Context, now time.Time) (AdvanceReport, error)
	Respond(ctx context.Context, claimID, ownerID, reason string) (*domain.DeathClaim, error)
	RespondWithToken(ctx context.Context, token, reason string) (*domain.DeathClaim, error)
	MarkKeyRetrieved(ctx context.Context, claimID, beneficiaryID, txHash string) (*domain.DeathClaim, error)
	GetStatus(ctx context.Context, claimID, callerID string) (*domain.ClaimStatusView, error)
}

type claimStore interface {
	Create(ctx context.Context, c *domain.DeathClaim, ev *domain.VerificationEvent) error
	Transition(ctx context.Context, prev, next *domain.DeathClaim, events []domain.VerificationEvent) error
	Get(ctx context.Context, claimID string) (*domain.DeathClaim, error)
	ListActive(ctx context.Context) ([]domain.DeathClaim, error)
}

type eventStore interface {
	ListByClaim(ctx context.Context, claimID string) ([]domain.VerificationEvent, error)
}

type linkStore interface {
	Get(ctx context.Context, linkID string) (*domain.Link, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type tokenStore interface {
	Put(ctx context.Context, t *domain.ResponseToken) error
	Get(ctx context.Context, tokenHash string, now time.Time) (*domain.ResponseToken, error)
	Delete(ctx context.Context, tokenHash string) error
}

type dispatcher interface {
	Dispatch(ctx context.Context, subjectID string, msg notify.Message) notify.Result
}

type service struct {
	claims        claimStore
	events        eventStore
	links         linkStore
	users         userStore
	tokens        tokenStore
	dispatcher    dispatcher
	clock         clock.Clock
	emailInterval int
	phoneInterval int
	tokenTTL      time.Duration
	publicBaseURL string
}

type ServiceDeps struct {
	ClaimRepo         claimStore
	EventRepo         eventStore
	LinkRepo          linkStore
	UserRepo          userStore
	TokenRepo         tokenStore
	Dispatcher        dispatcher
	Clock             clock.Clock
	EmailIntervalDays int
	PhoneIntervalDays int
	ResponseTokenTTL  time.Duration
	PublicBaseURL     string
}

func NewService(deps ServiceDeps) StateMachine {
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &service{
		claims:        deps.ClaimRepo,
		events:        deps.EventRepo,
		links:         deps.LinkRepo,
		users:         deps.UserRepo,
		tokens:        deps.TokenRepo,
		dispatcher:    deps.Dispatcher,
		clock:         clk,
		emailInterval: deps.EmailIntervalDays,
		phoneInterval: deps.PhoneIntervalDays,
		tokenTTL:      deps.ResponseTokenTTL,
		publicBaseURL: deps.PublicBaseURL,
	}
}

func (s *service) Submit(ctx context.Context, beneficiaryID, linkID string) (*domain.DeathClaim, error) {
	link, err := s.links.Get(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if link.BeneficiaryID != beneficiaryID || link.Status != domain.LinkStatusActive {
		return nil, fmt.Errorf("link %s: %w", linkID, domain.ErrClaimNotAuthorized)
	}
	if link.ActiveClaimID != "" {
		return nil, fmt.Errorf("link %s: %w", linkID, domain.ErrDuplicateActiveClaim)
	}
	owner, err := s.users.Get(ctx, link.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}

	now := s.clock.Now().UTC()
	c := &domain.DeathClaim{
		ClaimID:                id.New(),
		LinkID:                 link.LinkID,
		OwnerID:                link.OwnerID,
		BeneficiaryID:          beneficiaryID,
		Status:                 domain.ClaimStatusEmailVerification,
		CurrentStage:           domain.StageEmailLevel,
		EmailVerificationCount: 1,
		LastEmailSentAt:        &now,
		SubmittedAt:            now,
		UpdatedAt:              now,
	}
	ev := s.event(c.ClaimID, domain.EventClaimSubmitted, domain.StageEmailLevel, now, map[string]string{
		"attempt":   "1",
		"recipient": owner.Email,
	})
	if err := s.claims.Create(ctx, c, &ev); err != nil {
		return nil, err
	}
	slog.Info("claim submitted", "claim_id", c.ClaimID, "link_id", linkID)

	s.sendOwnerCheck(ctx, c, owner, notify.ChannelEmail, 1)
	s.notifyBeneficiary(ctx, c, notify.TemplateClaimSubmitted, nil)
	return c, nil
}

func (s *service) Advance(ctx context.Context, claimID string, now time.Time) (bool, error) {
	c, err := s.claims.Get(ctx, claimID)
	if err != nil {
		return false, err
	}
	now = now.UTC()
	switch {
	case c.Terminal():
		return false, nil
	case c.CurrentStage == domain.StageEmailLevel:
		if !due(c.LastEmailSentAt, s.emailInterval, now) {
			return false, nil
		}
		if c.EmailVerificationCount < domain.MaxEmailVerifications {
			return s.resend(ctx, c, notify.ChannelEmail, now)
		}
		return s.escalate(ctx, c, now)
	case c.CurrentStage == domain.StagePhoneLevel:
		if !due(c.LastPhoneSentAt, s.phoneInterval, now) {
			return false, nil
		}
		if c.PhoneVerificationCount < domain.MaxPhoneVerifications {
			return s.resend(ctx, c, notify.ChannelSMS, now)
		}
		return s.complete(ctx, c, now, domain.StagePhoneLevel)
	default:
		// key_retrieval waits for the beneficiary.
		return false, nil
	}
}

// due reports whether the cadence window after last has elapsed.
func due(last *time.Time, intervalDays int, now time.Time) bool {
	return last == nil || !now.Before(last.AddDate(0, 0, intervalDays))
}

// resend sends the next message of the current level.
func (s *service) resend(ctx context.Context, c *domain.DeathClaim, channel string, now time.Time) (bool, error) {
	owner, err := s.users.Get(ctx, c.OwnerID)
	if err != nil {
		return false, fmt.Errorf("load owner: %w", err)
	}
	next := c.Clone()
	next.UpdatedAt = now
	var ev domain.VerificationEvent
	var attempt int
	if channel == notify.ChannelEmail {
		next.EmailVerificationCount++
		next.LastEmailSentAt = &now
		attempt = next.EmailVerificationCount
		ev = s.event(c.ClaimID, domain.EventEmailSent, domain.StageEmailLevel, now, map[string]string{
			"attempt": strconv.Itoa(attempt), "recipient": owner.Email,
		})
	} else {
		next.PhoneVerificationCount++
		next.LastPhoneSentAt = &now
		attempt = next.PhoneVerificationCount
		ev = s.event(c.ClaimID, domain.EventPhoneSent, domain.StagePhoneLevel, now, map[string]string{
			"attempt": strconv.Itoa(attempt), "recipient": phoneOf(owner),
		})
	}
	if ok, err := s.commit(ctx, c, next, ev); !ok {
		return false, err
	}
	s.sendOwnerCheck(ctx, next, owner, channel, attempt)
	return true, nil
}

// escalate leaves email_level once every email went unanswered. Owners without
// a verified phone skip straight to key retrieval.
func (s *service) escalate(ctx context.Context, c *domain.DeathClaim, now time.Time) (bool, error) {
	owner, err := s.users.Get(ctx, c.OwnerID)
	if err != nil {
		return false, fmt.Errorf("load owner: %w", err)
	}
	if !owner.HasVerifiedPhone() {
		return s.complete(ctx, c, now, domain.StageEmailLevel)
	}

	next := c.Clone()
	next.Status = domain.ClaimStatusPhoneVerification
	next.CurrentStage = domain.StagePhoneLevel
	next.PhoneVerificationCount = 1
	next.LastPhoneSentAt = &now
	next.UpdatedAt = now
	ev := s.event(c.ClaimID, domain.EventPhoneSent, domain.StagePhoneLevel, now, map[string]string{
		"attempt": "1", "recipient": phoneOf(owner),
	})
	if ok, err := s.commit(ctx, c, next, ev); !ok {
		return false, err
	}
	s.notifyBeneficiary(ctx, next, notify.TemplateClaimEscalated, map[string]string{"stage": next.CurrentStage})
	s.sendOwnerCheck(ctx, next, owner, notify.ChannelSMS, 1)
	return true, nil
}

// complete authorizes key retrieval. from is the level being left; leaving
// email_level directly records the phone skip.
func (s *service) complete(ctx context.Context, c *domain.DeathClaim, now time.Time, from string) (bool, error) {
	next := c.Clone()
	next.Status = domain.ClaimStatusApproved
	next.CurrentStage = domain.StageKeyRetrieval
	next.VerifiedAt = &now
	next.UpdatedAt = now
	var events []domain.VerificationEvent
	if from == domain.StageEmailLevel {
		events = append(events, s.event(c.ClaimID, domain.EventPhoneSkipped, domain.StagePhoneLevel, now,
			map[string]string{"reason": "no verified phone"}))
	}
	events = append(events, s.event(c.ClaimID, domain.EventVerificationComplete, domain.StageKeyRetrieval, now, map[string]string{
		"email_attempts": strconv.Itoa(c.EmailVerificationCount),
		"phone_attempts": strconv.Itoa(c.PhoneVerificationCount),
	}))
	if ok, err := s.commit(ctx, c, next, events...); !ok {
		return false, err
	}
	slog.Info("claim verified", "claim_id", c.ClaimID)
	s.notifyBeneficiary(ctx, next, notify.TemplateVerificationComplete, nil)
	return true, nil
}

// commit writes the transition. A lost race reports (false, nil).
func (s *service) commit(ctx context.Context, prev, next *domain.DeathClaim, events ...domain.VerificationEvent) (bool, error) {
	err := s.claims.Transition(ctx, prev, next, events)
	if errors.Is(err, domain.ErrConflict) {
		slog.Debug("claim transition lost race", "claim_id", prev.ClaimID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *service) AdvanceAll(ctx context.Context, now time.Time) (AdvanceReport, error) {
	var report AdvanceReport
	active, err := s.claims.ListActive(ctx)
	if err != nil {
		return report, fmt.Errorf("list active claims: %w", err)
	}
	for i := range active {
		report.Considered++
		advanced, err := s.Advance(ctx, active[i].ClaimID, now)
		if err != nil {
			report.Failed++
			slog.Error("advance claim", "claim_id", active[i].ClaimID, "err", err)
			continue
		}
		if advanced {
			report.Advanced++
		}
	}
	return report, nil
}

func (s *service) Respond(ctx context.Context, claimID, ownerID, reason string) (*domain.DeathClaim, error) {
	if reason == "" {
		reason = defaultRejectionReason
	}
	for attempt := 0; attempt < respondAttempts; attempt++ {
		c, err := s.claims.Get(ctx, claimID)
		if err != nil {
			return nil, err
		}
		if c.OwnerID != ownerID {
			return nil, fmt.Errorf("claim %s: %w", claimID, domain.ErrClaimNotAuthorized)
		}
		if c.Terminal() {
			return nil, fmt.Errorf("claim %s is closed: %w", claimID, domain.ErrInvalidStageTransition)
		}

		now := s.clock.Now().UTC()
		next := c.Clone()
		next.Status = domain.ClaimStatusRejected
		next.RejectionReason = reason
		next.RespondedAt = &now
		next.UpdatedAt = now
		ev := s.event(c.ClaimID, domain.EventOwnerResponded, c.CurrentStage, now, map[string]string{"reason": reason})

		ok, err := s.commit(ctx, c, next, ev)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		slog.Info("claim rejected by owner", "claim_id", claimID)
		s.notifyBeneficiary(ctx, next, notify.TemplateClaimRejected, map[string]string{"reason": reason})
		return next, nil
	}
	return nil, fmt.Errorf("claim %s kept changing: %w", claimID, domain.ErrConflict)
}

func (s *service) RespondWithToken(ctx context.Context, token, reason string) (*domain.DeathClaim, error) {
	hash := pkgtoken.Hash(token)
	t, err := s.tokens.Get(ctx, hash, s.clock.Now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("invalid or expired response token: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}
	c, err := s.Respond(ctx, t.ClaimID, t.OwnerID, reason)
	if err != nil && !errors.Is(err, domain.ErrInvalidStageTransition) {
		return nil, err
	}
	// Single use. A closed claim has no further use for the token either.
	if delErr := s.tokens.Delete(ctx, hash); delErr != nil {
		slog.Warn("delete response token", "claim_id", t.ClaimID, "err", delErr)
	}
	return c, err
}

func (s *service) MarkKeyRetrieved(ctx context.Context, claimID, beneficiaryID, txHash string) (*domain.DeathClaim, error) {
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
	if !validate.IsTxHash(txHash) {
		return nil, fmt.Errorf("tx hash must be 0x-prefixed 32-byte hex: %w", domain.ErrBadRequest)
	}

	now := s.clock.Now().UTC()
	next := c.Clone()
	next.CurrentStage = domain.StageCompleted
	next.KeyRetrievedAt = &now
	next.KeyRetrievalTxHash = txHash
	next.UpdatedAt = now
	ev := s.event(c.ClaimID, domain.EventKeyRetrieved, domain.StageCompleted, now, map[string]string{"tx_hash": txHash})

	ok, err := s.commit(ctx, c, next, ev)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("claim %s changed: %w", claimID, domain.ErrInvalidStageTransition)
	}
	slog.Info("key retrieval recorded", "claim_id", claimID)
	s.notifyBeneficiary(ctx, next, notify.TemplateKeyRetrieved, map[string]string{"tx_hash": txHash})
	return next, nil
}

func (s *service) GetStatus(ctx context.Context, claimID, callerID string) (*domain.ClaimStatusView, error) {
	c, err := s.claims.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if callerID != c.OwnerID && callerID != c.BeneficiaryID {
		return nil, fmt.Errorf("claim %s: %w", claimID, domain.ErrClaimNotAuthorized)
	}
	events, err := s.events.ListByClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	return &domain.ClaimStatusView{Claim: c, Events: events}, nil
}

func (s *service) event(claimID, eventType, level string, at time.Time, details map[string]string) domain.VerificationEvent {
	return domain.VerificationEvent{
		EventID:           id.NewAt(at),
		ClaimID:           claimID,
		EventType:         eventType,
		VerificationLevel: level,
		Details:           details,
		CreatedAt:         at,
	}
}

// sendOwnerCheck issues a response token and asks the owner to reject the
// claim. Failures are recorded by the dispatcher; the transition stands.
func (s *service) sendOwnerCheck(ctx context.Context, c *domain.DeathClaim, owner *domain.User, channel string, attempt int) {
	responseURL, err := s.issueToken(ctx, c)
	if err != nil {
		slog.Error("issue response token", "claim_id", c.ClaimID, "err", err)
	}
	payload := map[string]string{
		"owner_name":       owner.Name,
		"beneficiary_name": s.beneficiaryName(ctx, c),
		"attempt":          strconv.Itoa(attempt),
		"response_url":     responseURL,
	}
	msg := notify.Message{Channel: channel, Payload: payload}
	if channel == notify.ChannelEmail {
		msg.Recipient, msg.Template = owner.Email, notify.TemplateOwnerEmailCheck
	} else {
		msg.Recipient, msg.Template = phoneOf(owner), notify.TemplateOwnerSMSCheck
	}
	s.dispatcher.Dispatch(ctx, c.ClaimID, msg)
}

func (s *service) issueToken(ctx context.Context, c *domain.DeathClaim) (string, error) {
	tok, err := pkgtoken.NewResponseToken()
	if err != nil {
		return "", err
	}
	rt := &domain.ResponseToken{
		TokenHash: pkgtoken.Hash(tok),
		ClaimID:   c.ClaimID,
		OwnerID:   c.OwnerID,
		ExpiresAt: s.clock.Now().Add(s.tokenTTL).Unix(),
	}
	if err := s.tokens.Put(ctx, rt); err != nil {
		return "", err
	}
	return s.publicBaseURL + "/claims/respond?token=" + url.QueryEscape(tok), nil
}

func (s *service) notifyBeneficiary(ctx context.Context, c *domain.DeathClaim, template string, extra map[string]string) {
	b, err := s.users.Get(ctx, c.BeneficiaryID)
	if err != nil {
		slog.Warn("beneficiary lookup", "claim_id", c.ClaimID, "err", err)
		return
	}
	payload := map[string]string{"beneficiary_name": b.Name, "claim_id": c.ClaimID}
	for k, v := range extra {
		payload[k] = v
	}
	s.dispatcher.Dispatch(ctx, c.ClaimID, notify.Message{
		Channel:   notify.ChannelEmail,
		Recipient: b.Email,
		Template:  template,
		Payload:   payload,
	})
}

func (s *service) beneficiaryName(ctx context.Context, c *domain.DeathClaim) string {
	if b, err := s.users.Get(ctx, c.BeneficiaryID); err == nil && b.Name != "" {
		return b.Name
	}
	return "A beneficiary"
}

func phoneOf(u *domain.User) string {
	if u.Phone == nil {
		return ""
	}
	return *u.Phone
}

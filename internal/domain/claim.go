package domain

import "time"

// Claim statuses.
const (
	ClaimStatusEmailVerification = "email_verification"
	ClaimStatusPhoneVerification = "phone_verification"
	ClaimStatusApproved          = "approved"
	ClaimStatusRejected          = "rejected"
)

// Claim stages, in escalation order.
const (
	StageEmailLevel   = "email_level"
	StagePhoneLevel   = "phone_level"
	StageKeyRetrieval = "key_retrieval"
	StageCompleted    = "completed"
)

// Escalation limits per level.
const (
	MaxEmailVerifications = 3
	MaxPhoneVerifications = 2
)

// DeathClaim is a beneficiary's assertion that the owner has died. Stage and
// status only move forward, except the jump to rejected which is terminal.
type DeathClaim struct {
	ClaimID                string     `json:"id" dynamodbav:"claim_id"`
	LinkID                 string     `json:"link_id" dynamodbav:"link_id"`
	OwnerID                string     `json:"owner_id" dynamodbav:"owner_id"`
	BeneficiaryID          string     `json:"beneficiary_id" dynamodbav:"beneficiary_id"`
	Status                 string     `json:"status" dynamodbav:"status"`
	CurrentStage           string     `json:"current_stage" dynamodbav:"current_stage"`
	EmailVerificationCount int        `json:"email_verification_count" dynamodbav:"email_verification_count"`
	PhoneVerificationCount int        `json:"phone_verification_count" dynamodbav:"phone_verification_count"`
	LastEmailSentAt        *time.Time `json:"last_email_sent_at,omitempty" dynamodbav:"last_email_sent_at"`
	LastPhoneSentAt        *time.Time `json:"last_phone_sent_at,omitempty" dynamodbav:"last_phone_sent_at"`
	VerifiedAt             *time.Time `json:"verified_at,omitempty" dynamodbav:"verified_at"`
	KeyRetrievedAt         *time.Time `json:"key_retrieved_at,omitempty" dynamodbav:"key_retrieved_at"`
	KeyRetrievalTxHash     string     `json:"key_retrieval_tx_hash,omitempty" dynamodbav:"key_retrieval_tx_hash"`
	RespondedAt            *time.Time `json:"responded_at,omitempty" dynamodbav:"responded_at"`
	RejectionReason        string     `json:"rejection_reason,omitempty" dynamodbav:"rejection_reason"`
	SubmittedAt            time.Time  `json:"submitted_at" dynamodbav:"submitted_at"`
	UpdatedAt              time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// Terminal reports whether no further transition is possible.
func (c *DeathClaim) Terminal() bool {
	return c.Status == ClaimStatusRejected || c.CurrentStage == StageCompleted
}

// Clone returns a copy safe to mutate while the original is kept as the
// expected prior state of a conditional write.
func (c *DeathClaim) Clone() *DeathClaim {
	cp := *c
	return &cp
}

// Verification event types.
const (
	EventClaimSubmitted       = "claim_submitted"
	EventEmailSent            = "email_verification_sent"
	EventPhoneSent            = "phone_verification_sent"
	EventPhoneSkipped         = "phone_verification_skipped"
	EventVerificationComplete = "verification_complete"
	EventOwnerResponded       = "owner_responded"
	EventKeyRetrieved         = "key_retrieved"
)

// VerificationEvent is one append-only row of a claim's audit timeline.
type VerificationEvent struct {
	EventID           string            `json:"id" dynamodbav:"event_id"`
	ClaimID           string            `json:"claim_id" dynamodbav:"claim_id"`
	EventType         string            `json:"event_type" dynamodbav:"event_type"`
	VerificationLevel string            `json:"verification_level" dynamodbav:"verification_level"`
	Details           map[string]string `json:"details,omitempty" dynamodbav:"details"`
	CreatedAt         time.Time         `json:"created" dynamodbav:"created_at"`
}

// ClaimStatusView is the read model returned by getClaimStatus.
type ClaimStatusView struct {
	Claim  *DeathClaim         `json:"claim"`
	Events []VerificationEvent `json:"events"`
}

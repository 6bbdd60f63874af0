package domain

import "time"

const (
	LinkStatusActive  = "active"
	LinkStatusRevoked = "revoked"
)

// Link is the owner-to-beneficiary relationship a death claim is filed against.
// It names the switch whose third share a verified claim unlocks.
// ActiveClaimID is set while a non-terminal claim exists for the link.
type Link struct {
	LinkID        string     `json:"id" dynamodbav:"link_id"`
	OwnerID       string     `json:"owner_id" dynamodbav:"owner_id"`
	SwitchID      string     `json:"switch_id" dynamodbav:"switch_id"`
	BeneficiaryID string     `json:"beneficiary_id" dynamodbav:"beneficiary_id"`
	Status        string     `json:"status" dynamodbav:"status"`
	ActiveClaimID string     `json:"active_claim_id,omitempty" dynamodbav:"active_claim_id,omitempty"`
	CreatedAt     time.Time  `json:"created" dynamodbav:"created_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty" dynamodbav:"revoked_at"`
}

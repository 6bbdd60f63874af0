package dynamo

// DynamoDB attribute names used in expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldSwitchID          = "switch_id"
	fieldBeneficiaryID     = "beneficiary_id"
	fieldOwnerID           = "owner_id"
	fieldClaimID           = "claim_id"
	fieldLinkID            = "link_id"
	fieldEventID           = "event_id"
	fieldSubjectID         = "subject_id"
	fieldTokenHash         = "token_hash"
	fieldExpiresAt         = "expires_at"
	fieldStatus            = "status"
	fieldCurrentStage      = "current_stage"
	fieldEmailCount        = "email_verification_count"
	fieldPhoneCount        = "phone_verification_count"
	fieldRecoveryTriggered = "recovery_triggered"
	fieldTriggeredAt       = "triggered_at"
	fieldLastCheckIn       = "last_check_in"
	fieldNotifiedAt        = "notified_at"
	fieldLastDeliveryError = "last_delivery_error"
	fieldActiveClaimID     = "active_claim_id"
	fieldRevokedAt         = "revoked_at"
	fieldUpdatedAt         = "updated_at"
	fieldCreatedAt         = "created_at"
	fieldUserID            = "user_id"
)

package domain

// ResponseToken lets an owner answer a verification message by link.
// PK: token_hash. ExpiresAt is a Unix timestamp used as DynamoDB TTL, but
// expiry is also checked on read since TTL deletion is lazy.
type ResponseToken struct {
	TokenHash string `json:"-" dynamodbav:"token_hash"`
	ClaimID   string `json:"claim_id" dynamodbav:"claim_id"`
	OwnerID   string `json:"owner_id" dynamodbav:"owner_id"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"`
}

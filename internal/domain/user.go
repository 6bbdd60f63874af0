package domain

import "time"

// User is the contact record for an owner or a beneficiary account.
type User struct {
	UserID         string    `json:"id" dynamodbav:"user_id"`
	Name           string    `json:"name" dynamodbav:"name"`
	Email          string    `json:"email" dynamodbav:"email"`
	Phone          *string   `json:"phone" dynamodbav:"phone"`
	EmailConfirmed bool      `json:"email_confirmed" dynamodbav:"email_confirmed"`
	PhoneConfirmed bool      `json:"phone_confirmed" dynamodbav:"phone_confirmed"`
	CreatedAt      time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated" dynamodbav:"updated_at"`
}

// HasVerifiedPhone reports whether SMS verification can reach the user.
func (u *User) HasVerifiedPhone() bool {
	return u.Phone != nil && *u.Phone != "" && u.PhoneConfirmed
}

// Caller roles carried in the bearer token.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

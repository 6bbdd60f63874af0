package domain

import "time"

// AllowedIntervalDays is the fixed set of check-in cadences an owner may pick.
var AllowedIntervalDays = []int{7, 14, 30, 60, 90, 180, 365}

// IsAllowedInterval reports whether days is one of AllowedIntervalDays.
func IsAllowedInterval(days int) bool {
	for _, d := range AllowedIntervalDays {
		if d == days {
			return true
		}
	}
	return false
}

// Switch is an owner's dead man's switch. RecoveryTriggered only ever moves
// from false to true.
type Switch struct {
	SwitchID            string     `json:"id" dynamodbav:"switch_id"`
	OwnerID             string     `json:"owner_id" dynamodbav:"owner_id"`
	LastCheckIn         time.Time  `json:"last_check_in" dynamodbav:"last_check_in"`
	IntervalDays        int        `json:"interval_days" dynamodbav:"interval_days"`
	EncryptedFileHash   string     `json:"encrypted_file_hash" dynamodbav:"encrypted_file_hash"`
	EncryptedFileKey    string     `json:"-" dynamodbav:"encrypted_file_key"`
	ShareOneEncrypted   string     `json:"-" dynamodbav:"share_one_encrypted"`
	ShareThreeEncrypted string     `json:"-" dynamodbav:"share_three_encrypted"`
	RecoveryTriggered   bool       `json:"recovery_triggered" dynamodbav:"recovery_triggered"`
	TriggeredAt         *time.Time `json:"triggered_at,omitempty" dynamodbav:"triggered_at"`
	CreatedAt           time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt           time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// Deadline is the last instant at which the switch is still considered alive.
func (s *Switch) Deadline(gracePeriodDays int) time.Time {
	return s.LastCheckIn.AddDate(0, 0, s.IntervalDays+gracePeriodDays)
}

// Expired reports whether now is strictly past the deadline.
func (s *Switch) Expired(now time.Time, gracePeriodDays int) bool {
	return now.After(s.Deadline(gracePeriodDays))
}

// Beneficiary receives share two of the owner's key when the switch triggers.
type Beneficiary struct {
	BeneficiaryID     string     `json:"id" dynamodbav:"beneficiary_id"`
	SwitchID          string     `json:"switch_id" dynamodbav:"switch_id"`
	UserID            string     `json:"user_id,omitempty" dynamodbav:"user_id"`
	Name              string     `json:"name" dynamodbav:"name"`
	Email             string     `json:"email" dynamodbav:"email"`
	ShareTwoEncrypted string     `json:"-" dynamodbav:"share_two_encrypted"`
	NotifiedAt        *time.Time `json:"notified_at,omitempty" dynamodbav:"notified_at"`
	LastDeliveryError string     `json:"last_delivery_error,omitempty" dynamodbav:"last_delivery_error"`
	CreatedAt         time.Time  `json:"created" dynamodbav:"created_at"`
}

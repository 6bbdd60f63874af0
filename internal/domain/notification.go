package domain

import "time"

// Delivery records the outcome of one notifier call.
type Delivery struct {
	DeliveryID string    `json:"id" dynamodbav:"delivery_id"`
	SubjectID  string    `json:"subject_id" dynamodbav:"subject_id"` // switch or claim
	Recipient  string    `json:"recipient" dynamodbav:"recipient"`
	Channel    string    `json:"channel" dynamodbav:"channel"`
	Template   string    `json:"template" dynamodbav:"template"`
	Success    bool      `json:"success" dynamodbav:"success"`
	MessageID  string    `json:"message_id,omitempty" dynamodbav:"message_id"`
	Error      string    `json:"error,omitempty" dynamodbav:"error"`
	CreatedAt  time.Time `json:"created" dynamodbav:"created_at"`
}

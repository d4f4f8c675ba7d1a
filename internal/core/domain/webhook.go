package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookStatus represents the delivery state of an order event.
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "PENDING"
	WebhookStatusDelivered WebhookStatus = "DELIVERED"
	WebhookStatusFailed    WebhookStatus = "FAILED"
)

// WebhookDelivery tracks one order event through its delivery attempts.
type WebhookDelivery struct {
	ID          uuid.UUID     `json:"id"`
	OrderID     string        `json:"order_id"`
	EventType   string        `json:"event_type"`
	URL         string        `json:"url"`
	Payload     string        `json:"payload"` // signed JSON body
	HTTPStatus  *int          `json:"http_status"`
	Attempt     int           `json:"attempt"`
	Status      WebhookStatus `json:"status"`
	NextRetryAt *time.Time    `json:"next_retry_at"`
	LastError   *string       `json:"last_error"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/domain"
)

// WebhookRepo implements ports.WebhookDeliveryRepository.
type WebhookRepo struct {
	pool Pool
}

// NewWebhookRepo creates a PostgreSQL-backed webhook delivery log.
func NewWebhookRepo(pool Pool) *WebhookRepo {
	return &WebhookRepo{pool: pool}
}

// Create records a new delivery before its first attempt.
func (r *WebhookRepo) Create(ctx context.Context, d *domain.WebhookDelivery) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO webhook_deliveries
			(id, order_id, event_type, url, payload, http_status, attempt, status, next_retry_at, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		d.ID, d.OrderID, d.EventType, d.URL,
		d.Payload, d.HTTPStatus, d.Attempt, string(d.Status),
		d.NextRetryAt, d.LastError, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

// Update stores the outcome of the latest attempt.
func (r *WebhookRepo) Update(ctx context.Context, d *domain.WebhookDelivery) error {
	d.UpdatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx,
		`UPDATE webhook_deliveries
		 SET http_status = $1, attempt = $2, status = $3, next_retry_at = $4, last_error = $5, updated_at = $6
		 WHERE id = $7`,
		d.HTTPStatus, d.Attempt, string(d.Status),
		d.NextRetryAt, d.LastError, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook delivery %s: %w", d.ID, err)
	}
	return nil
}

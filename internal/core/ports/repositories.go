package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"

	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// OrderRepository defines persistence operations for orders.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type OrderRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.Order, error)
	Upsert(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	UpdateState(ctx context.Context, tx pgx.Tx, id string, state domain.OrderState, disputeClaim *string) error
	List(ctx context.Context, params OrderListParams) ([]domain.Order, int64, error)
}

// OrderListParams holds filter + pagination for listing orders.
type OrderListParams struct {
	ProfileID string
	Type      domain.OrderType
	State     *domain.OrderState
	Page      int
	PageSize  int
}

// Normalize applies pagination defaults: page 1, page size 20 (max 100).
func (p *OrderListParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > 100 {
		p.PageSize = 20
	}
}

// PaymentTransactionRepository defines persistence for payment address transactions.
type PaymentTransactionRepository interface {
	ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentTransaction, error)
	ListByOrderTx(ctx context.Context, tx pgx.Tx, orderID string) ([]domain.PaymentTransaction, error)
	Upsert(ctx context.Context, tx pgx.Tx, transaction *domain.PaymentTransaction) error
	// DeleteMissing removes the order's transactions whose txid is not in keep.
	DeleteMissing(ctx context.Context, tx pgx.Tx, orderID string, keep []string) (int64, error)
}

// ProfileRepository defines persistence operations for local profiles.
type ProfileRepository interface {
	Create(ctx context.Context, profile *domain.Profile) error
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
	GetByUsername(ctx context.Context, username string) (*domain.Profile, error)
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// WebhookDeliveryRepository records order event deliveries and their attempts.
type WebhookDeliveryRepository interface {
	Create(ctx context.Context, delivery *domain.WebhookDelivery) error
	Update(ctx context.Context, delivery *domain.WebhookDelivery) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

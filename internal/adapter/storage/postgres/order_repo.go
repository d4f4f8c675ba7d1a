package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/domain"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, buyer_id, vendor_id, moderator_id, state, contract, dispute_claim, refund_transaction, created_at, updated_at`

// OrderRepo implements ports.OrderRepository.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// GetByID fetches an order without its payment transactions.
func (r *OrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return o, nil
}

// GetByIDForUpdate fetches an order with a row-level lock (SELECT ... FOR UPDATE).
// Must be called within a transaction.
func (r *OrderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	o, err := scanOrder(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order for update: %w", err)
	}
	return o, nil
}

// Upsert inserts the order or replaces its parties, state, contract and refund.
func (r *OrderRepo) Upsert(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	query := `INSERT INTO orders (id, buyer_id, vendor_id, moderator_id, state, contract, dispute_claim, refund_transaction, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			buyer_id = EXCLUDED.buyer_id,
			vendor_id = EXCLUDED.vendor_id,
			moderator_id = EXCLUDED.moderator_id,
			state = EXCLUDED.state,
			contract = EXCLUDED.contract,
			refund_transaction = EXCLUDED.refund_transaction,
			updated_at = EXCLUDED.updated_at`

	refund, err := refundBytes(o.RefundTransaction)
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}
	_, err = tx.Exec(ctx, query,
		o.ID, o.BuyerID, o.VendorID, o.ModeratorID, string(o.State),
		contractBytes(o.Contract), o.DisputeClaim, refund, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}
	return nil
}

// UpdateState changes the order state. A nil disputeClaim keeps the stored claim.
func (r *OrderRepo) UpdateState(ctx context.Context, tx pgx.Tx, id string, state domain.OrderState, disputeClaim *string) error {
	query := `UPDATE orders SET state = $1, dispute_claim = COALESCE($2, dispute_claim), updated_at = NOW() WHERE id = $3`
	tag, err := tx.Exec(ctx, query, string(state), disputeClaim, id)
	if err != nil {
		return fmt.Errorf("update order state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update order state: order %s not found", id)
	}
	return nil
}

// List returns the orders where the profile is the buyer (purchases) or the
// vendor (sales), newest first, plus the total count.
func (r *OrderRepo) List(ctx context.Context, params ports.OrderListParams) ([]domain.Order, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	switch params.Type {
	case domain.OrderTypeSale:
		conditions = append(conditions, fmt.Sprintf("vendor_id = $%d", argIdx))
	case domain.OrderTypePurchase:
		conditions = append(conditions, fmt.Sprintf("buyer_id = $%d", argIdx))
	default:
		return nil, 0, fmt.Errorf("list orders: unknown order type %q", params.Type)
	}
	args = append(args, params.ProfileID)
	argIdx++

	if params.State != nil {
		conditions = append(conditions, fmt.Sprintf("state = $%d", argIdx))
		args = append(args, string(*params.State))
		argIdx++
	}

	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int64
	countQuery := "SELECT COUNT(*) FROM orders" + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 20
	}
	offset := (params.Page - 1) * params.PageSize

	dataQuery := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, total, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	o := &domain.Order{}
	var state string
	var contract, refund []byte
	err := row.Scan(
		&o.ID, &o.BuyerID, &o.VendorID, &o.ModeratorID, &state,
		&contract, &o.DisputeClaim, &refund, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.State = domain.OrderState(state)
	if len(contract) > 0 {
		c, err := domain.ParseContract(contract)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", o.ID, err)
		}
		o.Contract = c
	}
	if len(refund) > 0 {
		t, err := parseRefund(o.ID, refund)
		if err != nil {
			return nil, fmt.Errorf("order %s refund: %w", o.ID, err)
		}
		o.RefundTransaction = t
	}
	return o, nil
}

func contractBytes(c *domain.Contract) []byte {
	if c == nil || len(c.Raw) == 0 {
		return nil
	}
	return c.Raw
}

// refundRecord is the stored form of an order's refund transaction.
type refundRecord struct {
	TxID      string          `json:"txid"`
	Value     decimal.Decimal `json:"value"`
	Height    int64           `json:"height"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func refundBytes(t *domain.PaymentTransaction) ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(refundRecord{
		TxID:      t.TxID,
		Value:     t.Value,
		Height:    t.Height,
		Timestamp: t.Timestamp,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	})
}

func parseRefund(orderID string, raw []byte) (*domain.PaymentTransaction, error) {
	var rec refundRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &domain.PaymentTransaction{
		OrderID:   orderID,
		TxID:      rec.TxID,
		Value:     rec.Value,
		Height:    rec.Height,
		Timestamp: rec.Timestamp,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Values are NUMERIC in the database and travel as text so no precision is lost.
const paymentTxColumns = `order_id, txid, value::text, height, timestamp, created_at, updated_at`

// PaymentTxRepo implements ports.PaymentTransactionRepository.
type PaymentTxRepo struct {
	pool Pool
}

// NewPaymentTxRepo creates a new PaymentTxRepo.
func NewPaymentTxRepo(pool Pool) *PaymentTxRepo {
	return &PaymentTxRepo{pool: pool}
}

// ListByOrder returns the order's payment address transactions in the order
// they were first recorded.
func (r *PaymentTxRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentTransaction, error) {
	query := `SELECT ` + paymentTxColumns + ` FROM payment_transactions WHERE order_id = $1 ORDER BY seq`
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payment transactions: %w", err)
	}
	return collectPaymentTxs(rows)
}

// ListByOrderTx is ListByOrder inside a transaction.
func (r *PaymentTxRepo) ListByOrderTx(ctx context.Context, tx pgx.Tx, orderID string) ([]domain.PaymentTransaction, error) {
	query := `SELECT ` + paymentTxColumns + ` FROM payment_transactions WHERE order_id = $1 ORDER BY seq`
	rows, err := tx.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payment transactions: %w", err)
	}
	return collectPaymentTxs(rows)
}

// Upsert records a transaction or updates its value, height and timestamp.
// The original recording position is kept.
func (r *PaymentTxRepo) Upsert(ctx context.Context, tx pgx.Tx, t *domain.PaymentTransaction) error {
	query := `INSERT INTO payment_transactions (order_id, txid, value, height, timestamp, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
		ON CONFLICT (order_id, txid) DO UPDATE SET
			value = EXCLUDED.value,
			height = EXCLUDED.height,
			timestamp = EXCLUDED.timestamp,
			updated_at = EXCLUDED.updated_at`

	_, err := tx.Exec(ctx, query,
		t.OrderID, t.TxID, t.Value.String(), t.Height, t.Timestamp, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert payment transaction %s: %w", t.TxID, err)
	}
	return nil
}

// DeleteMissing drops the order's transactions that are absent from keep.
func (r *PaymentTxRepo) DeleteMissing(ctx context.Context, tx pgx.Tx, orderID string, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	query := `DELETE FROM payment_transactions WHERE order_id = $1 AND NOT (txid = ANY($2))`
	tag, err := tx.Exec(ctx, query, orderID, keep)
	if err != nil {
		return 0, fmt.Errorf("delete stale payment transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectPaymentTxs(rows pgx.Rows) ([]domain.PaymentTransaction, error) {
	defer rows.Close()

	txs := []domain.PaymentTransaction{}
	for rows.Next() {
		var t domain.PaymentTransaction
		var value string
		if err := rows.Scan(
			&t.OrderID, &t.TxID, &value, &t.Height, &t.Timestamp, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payment transaction row: %w", err)
		}
		v, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("payment transaction %s value %q: %w", t.TxID, value, err)
		}
		t.Value = v
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment transaction rows: %w", err)
	}
	return txs, nil
}

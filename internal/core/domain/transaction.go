package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentTransaction is a transaction observed on an order's payment address.
// Positive values move money into the payment address, negative values move it
// out (refunds, release of escrow to the vendor).
type PaymentTransaction struct {
	OrderID   string          `json:"order_id"`
	TxID      string          `json:"txid"`
	Value     decimal.Decimal `json:"value"`
	Height    int64           `json:"height"` // 0 = unconfirmed
	Timestamp *time.Time      `json:"timestamp,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IsIncoming returns true if the transaction pays into the payment address.
func (t *PaymentTransaction) IsIncoming() bool {
	return t.Value.IsPositive()
}

// IsConfirmed returns true if the transaction has been mined into a block.
func (t *PaymentTransaction) IsConfirmed() bool {
	return t.Height > 0
}
